package capabilities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdok/tilecaps/dimension"
	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/ows"
	"github.com/pdok/tilecaps/source"
	"github.com/pdok/tilecaps/source/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const worldMercator = 20037508.3427892

var (
	discard = log.New(io.Discard, "", 0)
	png     = source.TileFormat{MIME: "image/png", Extension: "png"}
	days    = geo.NewTemporal("days", "time", time.Unix(0, 0), 24*time.Hour)
)

// countingSource counts the calls made to the wrapped source and can fail
// selected layers.
type countingSource struct {
	source.Source
	layerCalls   atomic.Int64
	pyramidCalls atomic.Int64
	failing      map[string]error
}

func (s *countingSource) Layers(ctx context.Context) ([]source.Layer, error) {
	s.layerCalls.Add(1)
	return s.Source.Layers(ctx)
}

func (s *countingSource) Pyramids(ctx context.Context, layer string) ([]*source.Pyramid, error) {
	s.pyramidCalls.Add(1)
	if err, ok := s.failing[layer]; ok {
		return nil, err
	}
	return s.Source.Pyramids(ctx, layer)
}

func mercatorPyramid(id string, size uint) *source.Pyramid {
	resolution := 2 * worldMercator / float64(256*size)
	return &source.Pyramid{
		ID:       id,
		CRS:      geo.EPSG3857,
		Envelope: geo.NewEnvelope(geo.EPSG3857, []float64{-worldMercator, -worldMercator}, []float64{worldMercator, worldMercator}),
		Format:   png,
		Levels: []source.Level{{
			ID:         "0",
			Resolution: resolution,
			Slices: []source.Slice{{
				ID: id + "/0", Corner: []float64{-worldMercator, worldMercator},
				GridWidth: size, GridHeight: size, TileWidth: 256, TileHeight: 256,
			}},
		}},
		Tiles: memory.NewTiles(),
	}
}

func rdPyramid(id string) *source.Pyramid {
	return &source.Pyramid{
		ID:       id,
		CRS:      geo.EPSG28992,
		Envelope: geo.NewEnvelope(geo.EPSG28992, []float64{-285401.92, 22598.08}, []float64{595401.92, 903401.92}),
		Format:   source.TileFormat{MIME: "image/jpeg", Extension: "jpg"},
		Levels: []source.Level{{
			ID: "0", Resolution: 3440.64,
			Slices: []source.Slice{{
				ID: id + "/0", Corner: []float64{-285401.92, 903401.92},
				GridWidth: 1, GridHeight: 1, TileWidth: 256, TileHeight: 256,
			}},
		}},
	}
}

func timePyramid(id string) *source.Pyramid {
	crs := geo.NewCompound("", geo.EPSG3857, days)
	p := mercatorPyramid(id, 1)
	p.CRS = crs
	p.Envelope = geo.NewEnvelope(crs, []float64{-worldMercator, -worldMercator, 19000}, []float64{worldMercator, worldMercator, 19001})
	p.Levels[0].Slices = []source.Slice{
		{ID: id + "/t1", Corner: []float64{-worldMercator, worldMercator, 19000}, GridWidth: 1, GridHeight: 1, TileWidth: 256, TileHeight: 256},
		{ID: id + "/t2", Corner: []float64{-worldMercator, worldMercator, 19001}, GridWidth: 1, GridHeight: 1, TileWidth: 256, TileHeight: 256},
	}
	return p
}

func testMetadata() Metadata {
	return Metadata{
		DefaultLanguage: "en",
		Titles:          map[string]string{"en": "Tiles", "nl": "Tegels"},
		Abstracts:       map[string]string{"en": "Tiled maps"},
		ProviderName:    "PDOK",
		BaseURL:         "https://example.com/wmts/",
	}
}

func TestBuilder_sharedTileMatrixSet(t *testing.T) {
	mem := memory.New()
	mem.Put(source.Layer{Name: "A"}, mercatorPyramid("pyramidA", 1))
	mem.Put(source.Layer{Name: "B"}, mercatorPyramid("pyramidB", 1))

	doc, registry, err := NewBuilder(mem, geo.NewProvider(), testMetadata(), WithLogger(discard)).Build(context.Background(), Key{Version: DefaultVersion})
	require.NoError(t, err)

	require.Len(t, doc.Contents.Layers, 2)
	a, b := doc.Contents.Layers[0], doc.Contents.Layers[1]
	require.Len(t, a.TileMatrixSetLinks, 1)
	assert.Equal(t, a.TileMatrixSetLinks, b.TileMatrixSetLinks)

	exposed := a.TileMatrixSetLinks[0]
	require.Len(t, doc.Contents.TileMatrixSets, 1)
	tms := doc.Contents.TileMatrixSets[0]
	assert.Equal(t, exposed, tms.ID)
	assert.Equal(t, "EPSG:3857", tms.CRSCode())
	require.Len(t, tms.TileMatrices, 1)
	assert.Equal(t, "0", tms.TileMatrices[0].ID)
	assert.InDelta(t, 559082264.0287178, tms.TileMatrices[0].ScaleDenominator, 1e-3)
	assert.Equal(t, uint(1), tms.TileMatrices[0].MatrixWidth)
	assert.Equal(t, uint(256), tms.TileMatrices[0].TileWidth)
	assert.Equal(t, "http://www.opengis.net/def/wkss/OGC/1.0/GoogleMapsCompatible", tms.WellKnownScaleSet)

	pyramids, ok := registry.Lookup(exposed)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"pyramidA", "pyramidB"}, pyramids)
}

func TestBuilder_layerCapability(t *testing.T) {
	mem := memory.New()
	mem.Put(source.Layer{Name: "mixed", Title: "Mixed", Keywords: []string{"k"}}, mercatorPyramid("m1", 1), rdPyramid("rd"), mercatorPyramid("m2", 2))
	mem.Put(source.Layer{Name: "timed"}, timePyramid("t"))

	doc, registry, err := NewBuilder(mem, geo.NewProvider(), testMetadata(), WithLogger(discard)).Build(context.Background(), Key{Version: DefaultVersion})
	require.NoError(t, err)

	mixed, ok := doc.Layer("mixed")
	require.True(t, ok)
	assert.Equal(t, "Mixed", mixed.Title)
	assert.Equal(t, []string{"m1", "rd", "m2"}, mixed.TileMatrixSetLinks)
	assert.Equal(t, []source.TileFormat{png, {MIME: "image/jpeg", Extension: "jpg"}}, mixed.Formats)
	require.Len(t, mixed.BoundingBoxes, 2)
	assert.Equal(t, "EPSG:3857", mixed.BoundingBoxes[0].CRS)
	assert.Equal(t, "EPSG:28992", mixed.BoundingBoxes[1].CRS)
	// EPSG:28992 cannot be reprojected, the mercator pyramids still give a WGS84 box
	require.NotNil(t, mixed.WGS84BoundingBox)
	assert.InDelta(t, -180, mixed.WGS84BoundingBox.LowerCorner[0], 1e-6)
	assert.InDelta(t, 85.0511287798066, mixed.WGS84BoundingBox.UpperCorner[1], 1e-6)
	require.Len(t, mixed.ResourceURLs, 2)
	assert.Equal(t, "https://example.com/wmts/mixed/{TileMatrixSet}/{TileMatrix}/{TileCol}/{TileRow}.png", mixed.ResourceURLs[0].Template)
	assert.Empty(t, mixed.Dimensions)

	timed, ok := doc.Layer("timed")
	require.True(t, ok)
	require.Len(t, timed.Dimensions, 1)
	assert.Equal(t, dimension.Dimension{
		Name: "time", UOM: "ISO8601", Default: "2022-01-09T00:00:00.000Z", Current: true,
		Values: []string{"2022-01-08T00:00:00.000Z", "2022-01-09T00:00:00.000Z"},
	}, timed.Dimensions[0])
	assert.Equal(t, "https://example.com/wmts/timed/{Time}/{TileMatrixSet}/{TileMatrix}/{TileCol}/{TileRow}.png", timed.ResourceURLs[0].Template)
	// same horizontal tiling as m1
	assert.Equal(t, []string{"m1"}, timed.TileMatrixSetLinks)
	pyramids, _ := registry.Lookup("m1")
	assert.Equal(t, []string{"m1", "t"}, pyramids)

	for _, id := range doc.TileMatrixSetIDs() {
		_, ok := registry.Lookup(id)
		assert.True(t, ok, id)
	}
}

func TestBuilder_failingLayersAreOmitted(t *testing.T) {
	mem := memory.New()
	mem.Put(source.Layer{Name: "ok"}, mercatorPyramid("ok", 1))
	mem.Put(source.Layer{Name: "untiled"})
	mem.Put(source.Layer{Name: "broken"}, mercatorPyramid("broken", 1))
	bad := mercatorPyramid("bad", 1)
	bad.Levels = append(bad.Levels, bad.Levels[0])
	mem.Put(source.Layer{Name: "duplicateLevels"}, bad)
	src := &countingSource{Source: mem, failing: map[string]error{"broken": errors.New("disk on fire")}}

	doc, registry, err := NewBuilder(src, geo.NewProvider(), testMetadata(), WithLogger(discard), WithWorkers(2)).Build(context.Background(), Key{Version: DefaultVersion})
	require.NoError(t, err)
	require.Len(t, doc.Contents.Layers, 1)
	assert.Equal(t, "ok", doc.Contents.Layers[0].Name)
	assert.Equal(t, []string{"ok"}, registry.IDs())
	assert.Equal(t, int64(4), src.pyramidCalls.Load())
}

func TestBuilder_sourceFailure(t *testing.T) {
	_, _, err := NewBuilder(failingSource{}, geo.NewProvider(), testMetadata(), WithLogger(discard)).Build(context.Background(), Key{Version: DefaultVersion})
	require.Error(t, err)
	assert.Equal(t, ows.NoApplicableCode, ows.AsFault(err).Code)
}

type failingSource struct{}

func (failingSource) Layers(context.Context) ([]source.Layer, error) {
	return nil, errors.New("catalog unavailable")
}

func (failingSource) Pyramids(context.Context, string) ([]*source.Pyramid, error) {
	return nil, errors.New("catalog unavailable")
}

func TestBuilder_metadata(t *testing.T) {
	metadata := testMetadata()
	metadata.TileMatrixSets = []string{"NetherlandsRDNewQuad", "DoesNotExist"}
	builder := NewBuilder(memory.New(), geo.NewProvider(), metadata, WithLogger(discard))

	tests := []struct {
		language     string
		wantLanguage string
		wantTitle    string
		wantAbstract string
	}{
		{language: "", wantLanguage: "en", wantTitle: "Tiles", wantAbstract: "Tiled maps"},
		{language: "nl", wantLanguage: "nl", wantTitle: "Tegels", wantAbstract: "Tiled maps"},
		{language: "fr", wantLanguage: "fr", wantTitle: "Tiles", wantAbstract: "Tiled maps"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("language %q", tt.language), func(t *testing.T) {
			doc, registry, err := builder.Build(context.Background(), Key{Version: DefaultVersion, Language: tt.language})
			require.NoError(t, err)
			assert.Equal(t, tt.wantLanguage, doc.Language)
			assert.Equal(t, tt.wantTitle, doc.ServiceIdentification.Title)
			assert.Equal(t, tt.wantAbstract, doc.ServiceIdentification.Abstract)
			assert.Equal(t, ServiceType, doc.ServiceIdentification.ServiceType)
			assert.Equal(t, "PDOK", doc.ServiceProvider.Name)
			assert.Equal(t, "https://example.com/wmts?", doc.OperationsMetadata[0].URL)

			assert.Equal(t, []string{"NetherlandsRDNewQuad"}, doc.TileMatrixSetIDs())
			pyramids, ok := registry.Lookup("NetherlandsRDNewQuad")
			assert.True(t, ok)
			assert.Empty(t, pyramids)
		})
	}
}

func TestBuilder_deterministicAcrossWorkers(t *testing.T) {
	mem := memory.New()
	for i := 0; i < 12; i++ {
		mem.Put(source.Layer{Name: fmt.Sprintf("layer%02d", i)}, mercatorPyramid("p", uint(1+i%3)))
	}
	var want []string
	for _, workers := range []int{1, 3, 12} {
		doc, _, err := NewBuilder(mem, geo.NewProvider(), testMetadata(), WithLogger(discard), WithWorkers(workers)).Build(context.Background(), Key{Version: DefaultVersion})
		require.NoError(t, err)
		var links []string
		for _, l := range doc.Contents.Layers {
			links = append(links, l.TileMatrixSetLinks...)
		}
		if want == nil {
			want = links
			continue
		}
		assert.Equal(t, want, links, "workers %d", workers)
	}
	assert.Equal(t, []string{"p", "p_1", "p_2"}, want[:3])
	assert.Equal(t, "p", want[3])
}
