// Package geo holds the coordinate reference system model consumed by the tiling engine
// and the math provider contract (reprojection, decomposition, scale denominators).
package geo

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind classifies a single (non-compound) coordinate reference system.
type Kind int

const (
	Horizontal Kind = iota
	Temporal
	Vertical
	Parametric
)

func (k Kind) String() string {
	switch k {
	case Horizontal:
		return "horizontal"
	case Temporal:
		return "temporal"
	case Vertical:
		return "vertical"
	case Parametric:
		return "parametric"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Axis of a coordinate reference system. Unit is a short token such as "m", "deg" or "day".
type Axis struct {
	Name string
	Unit string
}

// CRS is either a single coordinate reference system (Kind + Axes) or a compound one
// (Components, in axis order). Horizontal axes are always ordered x/y (easting or longitude first).
type CRS struct {
	Code       string
	Kind       Kind
	Axes       []Axis
	Components []*CRS
	// Epoch and Step define a temporal axis: value v means Epoch + v*Step.
	Epoch time.Time
	Step  time.Duration
}

// Dimension is the number of axes.
func (c *CRS) Dimension() int {
	if c == nil {
		return 0
	}
	if c.IsCompound() {
		n := 0
		for _, component := range c.Components {
			n += component.Dimension()
		}
		return n
	}
	return len(c.Axes)
}

func (c *CRS) IsCompound() bool {
	return c != nil && len(c.Components) > 0
}

// HorizontalIndex returns the index of the first horizontal axis and the horizontal component.
func (c *CRS) HorizontalIndex() (int, *CRS, bool) {
	if c == nil {
		return 0, nil, false
	}
	if !c.IsCompound() {
		return 0, c, c.Kind == Horizontal
	}
	idx := 0
	for _, component := range c.Components {
		if i, h, ok := component.HorizontalIndex(); ok {
			return idx + i, h, true
		}
		idx += component.Dimension()
	}
	return 0, nil, false
}

func (c *CRS) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.Code
}

var (
	EPSG3857  = &CRS{Code: "EPSG:3857", Kind: Horizontal, Axes: []Axis{{"Easting", "m"}, {"Northing", "m"}}}
	EPSG4326  = &CRS{Code: "EPSG:4326", Kind: Horizontal, Axes: []Axis{{"Longitude", "deg"}, {"Latitude", "deg"}}}
	CRS84     = &CRS{Code: "CRS:84", Kind: Horizontal, Axes: []Axis{{"Longitude", "deg"}, {"Latitude", "deg"}}}
	EPSG3395  = &CRS{Code: "EPSG:3395", Kind: Horizontal, Axes: []Axis{{"Easting", "m"}, {"Northing", "m"}}}
	EPSG3035  = &CRS{Code: "EPSG:3035", Kind: Horizontal, Axes: []Axis{{"Easting", "m"}, {"Northing", "m"}}}
	EPSG28992 = &CRS{Code: "EPSG:28992", Kind: Horizontal, Axes: []Axis{{"Easting", "m"}, {"Northing", "m"}}}
)

var wellKnown = map[string]*CRS{
	"EPSG:3857":   EPSG3857,
	"EPSG:900913": EPSG3857,
	"EPSG:4326":   EPSG4326,
	"CRS:84":      CRS84,
	"OGC:CRS84":   CRS84,
	"EPSG:3395":   EPSG3395,
	"EPSG:3035":   EPSG3035,
	"EPSG:28992":  EPSG28992,
}

var (
	codeRegex    = regexp.MustCompile(`^(?i)([a-z]+):(\d+|CRS\d+)$`)
	codeRegexURN = regexp.MustCompile(`^(?i)urn:ogc:def:crs:([^:]+):[^:]*:([^:]+)$`)
	codeRegexURL = regexp.MustCompile(`^(?i)https?://.+/def/crs/([^/]+)/[^/]+/([^/]+)$`)
)

// NormalizeCode turns "urn:ogc:def:crs:EPSG::3857", "http://www.opengis.net/def/crs/EPSG/0/3857"
// and "epsg:3857" into "EPSG:3857". Unrecognized input is returned trimmed.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	for _, re := range []*regexp.Regexp{codeRegex, codeRegexURN, codeRegexURL} {
		if parts := re.FindStringSubmatch(code); parts != nil {
			return strings.ToUpper(parts[1]) + ":" + strings.ToUpper(parts[2])
		}
	}
	return code
}

// Lookup returns a built-in horizontal CRS by code.
func Lookup(code string) (*CRS, bool) {
	normalized := NormalizeCode(code)
	if normalized == "OGC:CRS84" {
		return CRS84, true
	}
	crs, ok := wellKnown[normalized]
	return crs, ok
}

// NewProjected returns a horizontal CRS in metres for codes without a built-in definition.
func NewProjected(code string) *CRS {
	return &CRS{Code: NormalizeCode(code), Kind: Horizontal, Axes: []Axis{{"Easting", "m"}, {"Northing", "m"}}}
}

// NewGeographic returns a horizontal CRS in degrees for codes without a built-in definition.
func NewGeographic(code string) *CRS {
	return &CRS{Code: NormalizeCode(code), Kind: Horizontal, Axes: []Axis{{"Longitude", "deg"}, {"Latitude", "deg"}}}
}

func NewTemporal(code, axisName string, epoch time.Time, step time.Duration) *CRS {
	return &CRS{Code: code, Kind: Temporal, Axes: []Axis{{axisName, step.String()}}, Epoch: epoch.UTC(), Step: step}
}

func NewVertical(code, axisName, unit string) *CRS {
	return &CRS{Code: code, Kind: Vertical, Axes: []Axis{{axisName, unit}}}
}

func NewParametric(code, axisName, unit string) *CRS {
	return &CRS{Code: code, Kind: Parametric, Axes: []Axis{{axisName, unit}}}
}

// NewCompound joins components in axis order. The code defaults to the component codes joined by "+".
func NewCompound(code string, components ...*CRS) *CRS {
	if code == "" {
		codes := make([]string, 0, len(components))
		for _, component := range components {
			codes = append(codes, component.Code)
		}
		code = strings.Join(codes, "+")
	}
	return &CRS{Code: code, Components: components}
}
