package geo

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// GenericCRSCode is reported for horizontal systems without a usable code.
const GenericCRSCode = "Unknown"

const (
	// standardized rendering pixel size (0.28mm) of OGC scale denominators
	standardPixelSize = 0.00028
	metersPerDegree   = 2 * math.Pi * 6378137 / 360
	maxMercatorLat    = 85.0511287798066
)

var (
	ErrUnsupportedTransform = errors.New("unsupported transformation")
	ErrNotTemporal          = errors.New("not a temporal crs")

	standardCodeRegex = regexp.MustCompile(`^[A-Z]+:[0-9A-Z]+$`)
)

// MathProvider is the geometry/CRS collaborator of the tiling engine.
type MathProvider interface {
	// Reproject transforms the horizontal part of env into target.
	Reproject(env Envelope, target *CRS) (Envelope, error)
	// Decompose maps the first axis index of every single component to that component.
	Decompose(crs *CRS) (*orderedmap.OrderedMap[int, *CRS], error)
	// ScaleDenominator converts a horizontal pixel resolution (CRS units per pixel).
	ScaleDenominator(crs *CRS, resolution float64) (float64, error)
	// HorizontalCRSCode falls back to GenericCRSCode.
	HorizontalCRSCode(crs *CRS) string
	ToReferenceTime(component *CRS, value float64) (time.Time, error)
	FromReferenceTime(component *CRS, t time.Time) (float64, error)
}

// Provider is the built-in MathProvider. It reprojects between geographic
// (EPSG:4326, CRS:84) and Web Mercator (EPSG:3857) only.
type Provider struct{}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Decompose(crs *CRS) (*orderedmap.OrderedMap[int, *CRS], error) {
	if crs == nil {
		return nil, errors.New("cannot decompose nil crs")
	}
	components := orderedmap.New[int, *CRS]()
	var walk func(c *CRS, idx int) int
	walk = func(c *CRS, idx int) int {
		if !c.IsCompound() {
			components.Set(idx, c)
			return idx + c.Dimension()
		}
		for _, component := range c.Components {
			idx = walk(component, idx)
		}
		return idx
	}
	walk(crs, 0)
	return components, nil
}

func (p *Provider) HorizontalCRSCode(crs *CRS) string {
	_, h, ok := crs.HorizontalIndex()
	if !ok {
		return GenericCRSCode
	}
	code := NormalizeCode(h.Code)
	if standardCodeRegex.MatchString(code) {
		return code
	}
	return GenericCRSCode
}

func (p *Provider) ScaleDenominator(crs *CRS, resolution float64) (float64, error) {
	_, h, ok := crs.HorizontalIndex()
	if !ok {
		return 0, fmt.Errorf("crs %v has no horizontal component", crs)
	}
	if resolution <= 0 {
		return 0, fmt.Errorf("resolution must be positive, got %v", resolution)
	}
	metersPerUnit, err := metersPerUnit(h)
	if err != nil {
		return 0, err
	}
	return resolution * metersPerUnit / standardPixelSize, nil
}

func metersPerUnit(h *CRS) (float64, error) {
	if len(h.Axes) == 0 {
		return 0, fmt.Errorf("crs %v has no axes", h)
	}
	switch h.Axes[0].Unit {
	case "m", "metre", "meter":
		return 1, nil
	case "deg", "degree":
		return metersPerDegree, nil
	case "ft", "foot":
		return 0.3048, nil
	}
	return 0, fmt.Errorf("unsupported unit %q of crs %v", h.Axes[0].Unit, h)
}

func (p *Provider) Reproject(env Envelope, target *CRS) (Envelope, error) {
	b, err := env.Horizontal()
	if err != nil {
		return Envelope{}, err
	}
	_, source, _ := env.CRS.HorizontalIndex()
	_, dest, ok := target.HorizontalIndex()
	if !ok {
		return Envelope{}, fmt.Errorf("target %v: %w", target, ErrUnsupportedTransform)
	}
	from, to := family(source), family(dest)
	switch {
	case NormalizeCode(source.Code) == NormalizeCode(dest.Code):
		return FromBound(dest, b), nil
	case from == "" || to == "":
		return Envelope{}, fmt.Errorf("%v to %v: %w", source, dest, ErrUnsupportedTransform)
	case from == to:
		return FromBound(dest, b), nil
	case from == "mercator":
		return FromBound(dest, projectBound(b, project.Mercator.ToWGS84)), nil
	default:
		clamped := orb.Bound{
			Min: orb.Point{b.Min.X(), math.Max(b.Min.Y(), -maxMercatorLat)},
			Max: orb.Point{b.Max.X(), math.Min(b.Max.Y(), maxMercatorLat)},
		}
		return FromBound(dest, projectBound(clamped, project.WGS84.ToMercator)), nil
	}
}

func family(h *CRS) string {
	switch NormalizeCode(h.Code) {
	case "EPSG:4326", "CRS:84", "OGC:CRS84":
		return "geographic"
	case "EPSG:3857", "EPSG:900913":
		return "mercator"
	}
	return ""
}

func projectBound(b orb.Bound, proj orb.Projection) orb.Bound {
	lower := proj(b.Min)
	return orb.Bound{Min: lower, Max: lower}.Extend(proj(b.Max))
}

func (p *Provider) ToReferenceTime(component *CRS, value float64) (time.Time, error) {
	if component == nil || component.Kind != Temporal || component.Step <= 0 {
		return time.Time{}, fmt.Errorf("%v: %w", component, ErrNotTemporal)
	}
	offset := time.Duration(math.Round(value * float64(component.Step)))
	return component.Epoch.Add(offset).UTC(), nil
}

func (p *Provider) FromReferenceTime(component *CRS, t time.Time) (float64, error) {
	if component == nil || component.Kind != Temporal || component.Step <= 0 {
		return 0, fmt.Errorf("%v: %w", component, ErrNotTemporal)
	}
	return float64(t.Sub(component.Epoch)) / float64(component.Step), nil
}
