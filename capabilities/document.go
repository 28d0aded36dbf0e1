// Package capabilities builds the WMTS capabilities document over every
// exposed layer and caches it together with the matching matrix set bindings.
package capabilities

import (
	"strings"

	"github.com/pdok/tilecaps/dimension"
	"github.com/pdok/tilecaps/ows"
	"github.com/pdok/tilecaps/source"
	"github.com/pdok/tilecaps/tms20"
)

// Key selects one cached document.
type Key struct {
	Version  string
	Language string
}

type Section string

const (
	All                   Section = "All"
	ServiceIdentification Section = "ServiceIdentification"
	ServiceProvider       Section = "ServiceProvider"
	OperationsMetadata    Section = "OperationsMetadata"
	Contents              Section = "Contents"
)

var sections = map[string]Section{
	strings.ToLower(string(All)):                   All,
	strings.ToLower(string(ServiceIdentification)): ServiceIdentification,
	strings.ToLower(string(ServiceProvider)):       ServiceProvider,
	strings.ToLower(string(OperationsMetadata)):    OperationsMetadata,
	strings.ToLower(string(Contents)):              Contents,
}

// Document is a capabilities document. A published document is never modified.
type Document struct {
	Version               string
	Language              string
	ServiceIdentification *Identification
	ServiceProvider       *Provider
	OperationsMetadata    []Operation
	Contents              *Content
}

type Identification struct {
	Title              string
	Abstract           string
	Keywords           []string
	ServiceType        string
	ServiceTypeVersion string
}

type Provider struct {
	Name string
	Site string
}

type Operation struct {
	Name string
	// URL of the KVP binding
	URL string
}

type Content struct {
	Layers         []Layer
	TileMatrixSets []*tms20.TileMatrixSet
}

// Layer is one exposed layer.
type Layer struct {
	Name     string
	Title    string
	Abstract string
	Keywords []string
	// one per distinct CRS of the layer's pyramids
	BoundingBoxes []BoundingBox
	// nil when no envelope could be reprojected
	WGS84BoundingBox *BoundingBox
	Formats          []source.TileFormat
	ResourceURLs     []ResourceURL
	Dimensions       []dimension.Dimension
	// exposed tile matrix set identifiers
	TileMatrixSetLinks []string
}

type BoundingBox struct {
	CRS         string
	LowerCorner [2]float64
	UpperCorner [2]float64
}

type ResourceURL struct {
	Format       string
	ResourceType string
	Template     string
}

// Layer returns the layer with the given name.
func (d *Document) Layer(name string) (*Layer, bool) {
	if d.Contents == nil {
		return nil, false
	}
	for i := range d.Contents.Layers {
		if d.Contents.Layers[i].Name == name {
			return &d.Contents.Layers[i], true
		}
	}
	return nil, false
}

// TileMatrixSetIDs lists the exposed identifiers of the published tile matrix sets.
func (d *Document) TileMatrixSetIDs() []string {
	if d.Contents == nil {
		return nil
	}
	ids := make([]string, 0, len(d.Contents.TileMatrixSets))
	for _, tms := range d.Contents.TileMatrixSets {
		ids = append(ids, tms.ID)
	}
	return ids
}

// LinksTo reports whether the layer uses the given exposed tile matrix set.
func (l *Layer) LinksTo(exposedID string) bool {
	for _, link := range l.TileMatrixSetLinks {
		if link == exposedID {
			return true
		}
	}
	return false
}

// WithSections returns the document limited to the requested sections. Without
// sections, or when "All" is requested, d itself is returned. Section names are
// case-insensitive; an unknown one is an InvalidParameterValue fault.
func (d *Document) WithSections(requested []string) (*Document, error) {
	selected := make(map[Section]bool, len(requested))
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		section, ok := sections[strings.ToLower(name)]
		if !ok {
			return nil, ows.InvalidParameter("sections", "unknown section %q", name)
		}
		selected[section] = true
	}
	if len(selected) == 0 || selected[All] {
		return d, nil
	}

	limited := &Document{Version: d.Version, Language: d.Language}
	if selected[ServiceIdentification] {
		limited.ServiceIdentification = d.ServiceIdentification
	}
	if selected[ServiceProvider] {
		limited.ServiceProvider = d.ServiceProvider
	}
	if selected[OperationsMetadata] {
		limited.OperationsMetadata = d.OperationsMetadata
	}
	if selected[Contents] {
		limited.Contents = d.Contents
	}
	return limited, nil
}
