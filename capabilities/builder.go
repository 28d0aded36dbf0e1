package capabilities

import (
	"context"
	"log"
	"strings"

	"github.com/pdok/tilecaps/dimension"
	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/mapslicehelp"
	"github.com/pdok/tilecaps/matrixset"
	"github.com/pdok/tilecaps/ows"
	"github.com/pdok/tilecaps/processing"
	"github.com/pdok/tilecaps/source"
	"github.com/pdok/tilecaps/tms20"

	"github.com/iancoleman/strcase"
	"github.com/paulmach/orb"
)

const (
	ServiceType    = "OGC WMTS"
	DefaultVersion = "1.0.0"
	defaultWorkers = 4
)

// Metadata describes the service itself. Titles and abstracts are keyed by language.
type Metadata struct {
	// Version served when a request names none, DefaultVersion when empty
	DefaultVersion  string
	DefaultLanguage string
	Titles          map[string]string
	Abstracts       map[string]string
	Keywords        []string
	ProviderName    string
	ProviderSite    string
	// BaseURL of the service, used in operation and resource URLs
	BaseURL string
	// Embedded tile matrix sets published even when no pyramid uses them
	TileMatrixSets []string
}

func (m Metadata) text(texts map[string]string, language string) string {
	if t, ok := texts[language]; ok {
		return t
	}
	return texts[m.DefaultLanguage]
}

// DocumentBuilder produces a document and the registry that belongs to it.
type DocumentBuilder interface {
	Build(ctx context.Context, key Key) (*Document, *matrixset.Registry, error)
}

type Builder struct {
	source   source.Source
	math     geo.MathProvider
	metadata Metadata
	workers  int
	logger   *log.Logger
}

type BuilderOption func(*Builder)

// WithWorkers bounds the number of layers harvested concurrently.
func WithWorkers(workers int) BuilderOption {
	return func(b *Builder) {
		b.workers = workers
	}
}

func WithLogger(logger *log.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

func NewBuilder(src source.Source, math geo.MathProvider, metadata Metadata, options ...BuilderOption) *Builder {
	b := &Builder{
		source:   src,
		math:     math,
		metadata: metadata,
		workers:  defaultWorkers,
		logger:   log.Default(),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// harvestedPyramid is everything a rebuild needs from one pyramid
type harvestedPyramid struct {
	pyramid    *source.Pyramid
	tms        *tms20.TileMatrixSet
	dimensions []dimension.Dimension
}

type harvestedLayer struct {
	layer    source.Layer
	pyramids []harvestedPyramid
}

// Build lists the layers of the source and harvests them concurrently. A layer
// that fails is logged and left out. Deduplication runs in layer order, so the
// exposed identifiers only depend on the source's layer and pyramid order.
func (b *Builder) Build(ctx context.Context, key Key) (*Document, *matrixset.Registry, error) {
	layers, err := b.source.Layers(ctx)
	if err != nil {
		return nil, nil, ows.Upstream("layers", err)
	}
	harvested, errs := processing.Map(ctx, b.workers, layers, b.harvest)

	dedup := matrixset.NewDeduplicator()
	content := &Content{Layers: make([]Layer, 0, len(layers))}
	omitted := 0
	for i, h := range harvested {
		if errs[i] != nil {
			b.logger.Printf("omitting layer %s: %v", layers[i].Name, errs[i])
			omitted++
			continue
		}
		content.Layers = append(content.Layers, b.layerCapability(h, dedup))
	}

	for _, id := range b.metadata.TileMatrixSets {
		tms, err := tms20.LoadEmbeddedTileMatrixSet(id)
		if err != nil {
			b.logger.Printf("cannot publish tile matrix set %s: %v", id, err)
			continue
		}
		dedup.Declare(&tms)
	}
	content.TileMatrixSets = dedup.Sets()
	annotateWellKnownScaleSets(content.TileMatrixSets)

	b.logger.Printf("built capabilities %s/%s: %d layers, %d omitted, %d tile matrix sets",
		key.Version, key.Language, len(content.Layers), omitted, len(content.TileMatrixSets))
	return b.document(key, content), dedup.Registry(), nil
}

func (b *Builder) harvest(ctx context.Context, layer source.Layer) (harvestedLayer, error) {
	h := harvestedLayer{layer: layer}
	pyramids, err := b.source.Pyramids(ctx, layer.Name)
	if err != nil {
		return h, ows.Upstream(layer.Name, err)
	}
	if len(pyramids) == 0 {
		return h, ows.NotTiled(layer.Name)
	}
	for _, p := range pyramids {
		tms, err := matrixset.FromPyramid(p, b.math)
		if err != nil {
			return h, ows.Upstream(layer.Name, err)
		}
		dims, err := dimension.Extract(p, b.math)
		if err != nil {
			return h, ows.Upstream(layer.Name, err)
		}
		h.pyramids = append(h.pyramids, harvestedPyramid{pyramid: p, tms: tms, dimensions: dims})
	}
	return h, nil
}

func (b *Builder) layerCapability(h harvestedLayer, dedup *matrixset.Deduplicator) Layer {
	l := Layer{
		Name:     h.layer.Name,
		Title:    h.layer.Title,
		Abstract: h.layer.Abstract,
		Keywords: h.layer.Keywords,
	}
	var links []string
	var formats []source.TileFormat
	var dimensionLists [][]dimension.Dimension
	nativeBoxes := make(map[string]int)
	var wgs84 *orb.Bound
	for _, hp := range h.pyramids {
		links = append(links, dedup.Add(hp.pyramid.ID, hp.tms))
		formats = append(formats, hp.pyramid.Format)
		dimensionLists = append(dimensionLists, hp.dimensions)

		if bb := hp.tms.BoundingBox; bb != nil {
			crsCode := hp.tms.CRSCode()
			native := BoundingBox{CRS: crsCode, LowerCorner: bb.LowerLeft, UpperCorner: bb.UpperRight}
			if i, ok := nativeBoxes[crsCode]; ok {
				l.BoundingBoxes[i] = union(l.BoundingBoxes[i], native)
			} else {
				nativeBoxes[crsCode] = len(l.BoundingBoxes)
				l.BoundingBoxes = append(l.BoundingBoxes, native)
			}
		}

		reprojected, err := b.math.Reproject(hp.pyramid.Envelope, geo.CRS84)
		if err != nil {
			b.logger.Printf("no WGS84 bounding box for pyramid %s of layer %s: %v", hp.pyramid.ID, h.layer.Name, err)
			continue
		}
		bound, err := reprojected.Horizontal()
		if err != nil {
			continue
		}
		if wgs84 == nil {
			wgs84 = &bound
		} else {
			extended := wgs84.Union(bound)
			wgs84 = &extended
		}
	}
	if wgs84 != nil {
		l.WGS84BoundingBox = &BoundingBox{
			CRS:         geo.CRS84.Code,
			LowerCorner: [2]float64{wgs84.Min.X(), wgs84.Min.Y()},
			UpperCorner: [2]float64{wgs84.Max.X(), wgs84.Max.Y()},
		}
	}
	l.TileMatrixSetLinks = mapslicehelp.Distinct(links)
	l.Formats = mapslicehelp.Distinct(formats)
	l.Dimensions = dimension.Merge(dimensionLists...)
	for _, format := range l.Formats {
		l.ResourceURLs = append(l.ResourceURLs, ResourceURL{
			Format:       format.MIME,
			ResourceType: "tile",
			Template:     tileTemplate(b.metadata.BaseURL, l.Name, l.Dimensions, format),
		})
	}
	return l
}

// tileTemplate returns the RESTful tile URL template of a layer, e.g.
// https://example.com/wmts/top/{Time}/{TileMatrixSet}/{TileMatrix}/{TileCol}/{TileRow}.png
func tileTemplate(baseURL, layer string, dims []dimension.Dimension, format source.TileFormat) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSuffix(baseURL, "/"))
	sb.WriteString("/" + layer)
	for _, d := range dims {
		sb.WriteString("/{" + strcase.ToCamel(d.Name) + "}")
	}
	sb.WriteString("/{TileMatrixSet}/{TileMatrix}/{TileCol}/{TileRow}")
	if format.Extension != "" {
		sb.WriteString("." + format.Extension)
	}
	return sb.String()
}

func union(a, b BoundingBox) BoundingBox {
	ab := orb.Bound{Min: orb.Point(a.LowerCorner), Max: orb.Point(a.UpperCorner)}
	bb := orb.Bound{Min: orb.Point(b.LowerCorner), Max: orb.Point(b.UpperCorner)}
	u := ab.Union(bb)
	return BoundingBox{CRS: a.CRS, LowerCorner: u.Min, UpperCorner: u.Max}
}

// annotateWellKnownScaleSets marks sets that follow an embedded well-known tile matrix set
func annotateWellKnownScaleSets(sets []*tms20.TileMatrixSet) {
	ids, err := tms20.EmbeddedTileMatrixSetIDs()
	if err != nil {
		return
	}
	var wellKnown []tms20.TileMatrixSet
	for _, id := range ids {
		tms, err := tms20.LoadEmbeddedTileMatrixSet(id)
		if err == nil && tms.WellKnownScaleSet != "" {
			wellKnown = append(wellKnown, tms)
		}
	}
	for _, tms := range sets {
		if tms.WellKnownScaleSet != "" {
			continue
		}
		for i := range wellKnown {
			if tms.Conforms(&wellKnown[i]) {
				tms.WellKnownScaleSet = wellKnown[i].WellKnownScaleSet
				break
			}
		}
	}
}

func (b *Builder) document(key Key, content *Content) *Document {
	language := key.Language
	if language == "" {
		language = b.metadata.DefaultLanguage
	}
	baseURL := strings.TrimSuffix(b.metadata.BaseURL, "/")
	return &Document{
		Version:  key.Version,
		Language: language,
		ServiceIdentification: &Identification{
			Title:              b.metadata.text(b.metadata.Titles, language),
			Abstract:           b.metadata.text(b.metadata.Abstracts, language),
			Keywords:           b.metadata.Keywords,
			ServiceType:        ServiceType,
			ServiceTypeVersion: key.Version,
		},
		ServiceProvider: &Provider{Name: b.metadata.ProviderName, Site: b.metadata.ProviderSite},
		OperationsMetadata: []Operation{
			{Name: "GetCapabilities", URL: baseURL + "?"},
			{Name: "GetTile", URL: baseURL + "?"},
		},
		Contents: content,
	}
}
