// Package dimension derives the non-spatial axes (time, elevation and custom
// axes) of a pyramid and the slice values available along them.
package dimension

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/mapslicehelp"
	"github.com/pdok/tilecaps/source"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	Time      = "time"
	Elevation = "elevation"
	// ISO8601 is the unit of measure of time dimensions
	ISO8601 = "ISO8601"
	// TimeFormat is the profile of ISO 8601 every time value is written in
	TimeFormat = "2006-01-02T15:04:05.000Z"
)

// accepted layouts of requested time values, tried in order
var timeLayouts = []string{TimeFormat, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// Dimension is a non-spatial axis as exposed on a layer.
type Dimension struct {
	Name    string
	UOM     string
	Default string
	// Current is set on time dimensions, of which the default is the latest value
	Current bool
	Values  []string
}

// Axis is one extra axis of a CRS.
type Axis struct {
	Name string
	UOM  string
	// Index of the axis in the full CRS, which is also its position in slice corners
	Index     int
	Component *geo.CRS
	math      geo.MathProvider
}

func (a Axis) Temporal() bool {
	return a.Component.Kind == geo.Temporal
}

// Axes lists the one-dimensional components of crs, skipping the horizontal pair.
func Axes(crs *geo.CRS, math geo.MathProvider) ([]Axis, error) {
	components, err := math.Decompose(crs)
	if err != nil {
		return nil, fmt.Errorf("could not decompose %v: %w", crs, err)
	}
	var axes []Axis
	for p := components.Oldest(); p != nil; p = p.Next() {
		component := p.Value
		if component.Dimension() != 1 {
			continue
		}
		axis := Axis{Index: p.Key, Component: component, math: math}
		switch component.Kind {
		case geo.Temporal:
			axis.Name, axis.UOM = Time, ISO8601
		case geo.Vertical:
			axis.Name, axis.UOM = Elevation, component.Axes[0].Unit
		default:
			axis.Name, axis.UOM = component.Axes[0].Name, component.Axes[0].Unit
		}
		axes = append(axes, axis)
	}
	return axes, nil
}

// Token formats a coordinate along a as it is exposed.
func (a Axis) Token(value float64) (string, error) {
	if !a.Temporal() {
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	}
	t, err := a.math.ToReferenceTime(a.Component, value)
	if err != nil {
		return "", err
	}
	return t.UTC().Format(TimeFormat), nil
}

// Canonical rewrites a requested value into the token vocabulary of a.
func (a Axis) Canonical(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if !a.Temporal() {
		v, err := strconv.ParseFloat(requested, 64)
		if err != nil {
			return "", fmt.Errorf("malformed %s value %q", a.Name, requested)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	t, err := parseTime(requested)
	if err != nil {
		return "", err
	}
	return t.Format(TimeFormat), nil
}

// Coordinate converts a requested value into a coordinate along a.
func (a Axis) Coordinate(requested string) (float64, error) {
	if !a.Temporal() {
		v, err := strconv.ParseFloat(strings.TrimSpace(requested), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed %s value %q", a.Name, requested)
		}
		return v, nil
	}
	t, err := parseTime(strings.TrimSpace(requested))
	if err != nil {
		return 0, err
	}
	return a.math.FromReferenceTime(a.Component, t)
}

func parseTime(requested string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, requested); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed time value %q", requested)
}

// Extract reads the slice values of every extra axis of p, across all its levels.
func Extract(p *source.Pyramid, math geo.MathProvider) ([]Dimension, error) {
	axes, err := Axes(p.CRS, math)
	if err != nil {
		return nil, err
	}
	dimensions := make([]Dimension, 0, len(axes))
	for _, axis := range axes {
		values := orderedmap.New[string, struct{}]()
		var latest float64
		var latestToken string
		for _, level := range p.Levels {
			for _, slice := range level.Slices {
				if axis.Index >= len(slice.Corner) {
					return nil, fmt.Errorf("slice %s of pyramid %s has no coordinate for axis %s", slice.ID, p.ID, axis.Name)
				}
				value := slice.Corner[axis.Index]
				token, err := axis.Token(value)
				if err != nil {
					return nil, fmt.Errorf("could not format %s value %v of pyramid %s: %w", axis.Name, value, p.ID, err)
				}
				if latestToken == "" || value > latest {
					latest, latestToken = value, token
				}
				values.Set(token, struct{}{})
			}
		}
		d := Dimension{Name: axis.Name, UOM: axis.UOM, Values: mapslicehelp.OrderedMapKeys(values)}
		if len(d.Values) > 0 {
			d.Default = d.Values[0]
		}
		if axis.Temporal() {
			d.Default = latestToken
			d.Current = true
		}
		dimensions = append(dimensions, d)
	}
	return dimensions, nil
}

// Merge unions dimensions of the same name, keeping the order of first appearance.
func Merge(dimensionLists ...[]Dimension) []Dimension {
	merged := orderedmap.New[string, *orderedmap.OrderedMap[string, struct{}]]()
	firsts := make(map[string]Dimension)
	for _, dimensions := range dimensionLists {
		for _, d := range dimensions {
			values, ok := merged.Get(d.Name)
			if !ok {
				values = orderedmap.New[string, struct{}]()
				merged.Set(d.Name, values)
				firsts[d.Name] = d
			}
			for _, v := range d.Values {
				values.Set(v, struct{}{})
			}
			if d.Name == Time && d.Default > firsts[d.Name].Default {
				// fixed width ISO profile, so lexical order is chronological
				first := firsts[d.Name]
				first.Default = d.Default
				firsts[d.Name] = first
			}
		}
	}
	result := make([]Dimension, 0, merged.Len())
	for p := merged.Oldest(); p != nil; p = p.Next() {
		d := firsts[p.Key]
		d.Values = mapslicehelp.OrderedMapKeys(p.Value)
		result = append(result, d)
	}
	return result
}
