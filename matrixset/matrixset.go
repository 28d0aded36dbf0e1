// Package matrixset derives tile matrix sets from pyramids, folds equal ones
// together and keeps track of which pyramids every published set stands for.
package matrixset

import (
	"errors"
	"fmt"

	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/source"
	"github.com/pdok/tilecaps/tms20"

	"github.com/umpc/go-sortedmap"
)

var ErrNoMatrices = errors.New("pyramid has no level with slices")

// FromPyramid derives the tile matrix set of p. Every level with at least one
// slice becomes a tile matrix; its first slice provides grid, tile size and origin.
// The identifier of the result is left empty.
func FromPyramid(p *source.Pyramid, math geo.MathProvider) (*tms20.TileMatrixSet, error) {
	hIdx, _, ok := p.CRS.HorizontalIndex()
	if !ok {
		return nil, fmt.Errorf("crs %v of pyramid %s has no horizontal component", p.CRS, p.ID)
	}
	crs := tms20.NewCodeCRS(math.HorizontalCRSCode(p.CRS))

	// descending scale denominator, ties broken by identifier
	matrices := sortedmap.New(len(p.Levels), func(x, y interface{}) bool {
		a, b := x.(tms20.TileMatrix), y.(tms20.TileMatrix)
		if a.ScaleDenominator != b.ScaleDenominator {
			return a.ScaleDenominator > b.ScaleDenominator
		}
		return a.ID < b.ID
	})
	for _, level := range p.Levels {
		if len(level.Slices) == 0 {
			continue
		}
		first := level.Slices[0]
		if hIdx+1 >= len(first.Corner) {
			return nil, fmt.Errorf("slice %s of pyramid %s has no horizontal corner", first.ID, p.ID)
		}
		scale, err := math.ScaleDenominator(p.CRS, level.Resolution)
		if err != nil {
			return nil, fmt.Errorf("level %s of pyramid %s: %w", level.ID, p.ID, err)
		}
		tm := tms20.TileMatrix{
			ID:               level.ID,
			ScaleDenominator: scale,
			CellSize:         level.Resolution,
			CornerOfOrigin:   tms20.TopLeft,
			PointOfOrigin:    tms20.TwoDPoint{first.Corner[hIdx], first.Corner[hIdx+1]},
			TileWidth:        first.TileWidth,
			TileHeight:       first.TileHeight,
			MatrixWidth:      first.GridWidth,
			MatrixHeight:     first.GridHeight,
		}
		if !matrices.Insert(level.ID, tm) {
			return nil, fmt.Errorf("pyramid %s has duplicate level %s", p.ID, level.ID)
		}
	}
	if matrices.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", p.ID, ErrNoMatrices)
	}

	tms := &tms20.TileMatrixSet{
		CRS:          crs,
		TileMatrices: make([]tms20.TileMatrix, 0, matrices.Len()),
	}
	byID := matrices.Map()
	for _, key := range matrices.Keys() {
		tms.TileMatrices = append(tms.TileMatrices, byID[key].(tms20.TileMatrix))
	}
	if b, err := p.Envelope.Horizontal(); err == nil {
		tms.BoundingBox = &tms20.TwoDBoundingBox{
			LowerLeft:  tms20.TwoDPoint{b.Min.X(), b.Min.Y()},
			UpperRight: tms20.TwoDPoint{b.Max.X(), b.Max.Y()},
			CRS:        crs,
		}
	}
	return tms, nil
}
