package geo

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Envelope is an axis aligned n-dimensional box in CRS.
type Envelope struct {
	CRS *CRS
	Min []float64
	Max []float64
}

func NewEnvelope(crs *CRS, min, max []float64) Envelope {
	return Envelope{
		CRS: crs,
		Min: append([]float64(nil), min...),
		Max: append([]float64(nil), max...),
	}
}

// FromBound returns a 2D envelope for a horizontal CRS.
func FromBound(crs *CRS, b orb.Bound) Envelope {
	return NewEnvelope(crs, []float64{b.Min.X(), b.Min.Y()}, []float64{b.Max.X(), b.Max.Y()})
}

func (e Envelope) Dimension() int {
	return len(e.Min)
}

// Horizontal returns the horizontal part of the envelope.
func (e Envelope) Horizontal() (orb.Bound, error) {
	idx, _, ok := e.CRS.HorizontalIndex()
	if !ok {
		return orb.Bound{}, fmt.Errorf("crs %v has no horizontal component", e.CRS)
	}
	if idx+1 >= len(e.Min) || idx+1 >= len(e.Max) {
		return orb.Bound{}, fmt.Errorf("envelope has %d axes, horizontal component starts at %d", len(e.Min), idx)
	}
	return orb.Bound{
		Min: orb.Point{e.Min[idx], e.Min[idx+1]},
		Max: orb.Point{e.Max[idx], e.Max[idx+1]},
	}, nil
}

// Narrow returns a copy with the range along axis collapsed to value.
func (e Envelope) Narrow(axis int, value float64) Envelope {
	narrowed := NewEnvelope(e.CRS, e.Min, e.Max)
	if axis >= 0 && axis < len(narrowed.Min) {
		narrowed.Min[axis] = value
		narrowed.Max[axis] = value
	}
	return narrowed
}
