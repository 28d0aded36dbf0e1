// Package tile resolves tile requests against the published tile matrix set
// bindings and the pyramids of a layer.
package tile

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"github.com/pdok/tilecaps/capabilities"
	"github.com/pdok/tilecaps/dimension"
	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/mapslicehelp"
	"github.com/pdok/tilecaps/mathhelp"
	"github.com/pdok/tilecaps/ows"
	"github.com/pdok/tilecaps/source"
	"github.com/pdok/tilecaps/tms20"

	"github.com/go-spatial/geom"
)

type Request struct {
	// Key of the capabilities document whose bindings apply
	Key           capabilities.Key
	Layer         string
	TileMatrixSet string
	TileMatrix    string
	Column        int64
	Row           int64
	// Format is optional, either a MIME type or a file extension
	Format string
	// Dimensions maps dimension names ("time", "elevation" or a custom axis,
	// optionally prefixed with "dim_") to a single requested value
	Dimensions map[string]string
	// Extra holds the other parameters of a request. Those naming an axis of the
	// pyramid select along it like Dimensions, the rest are ignored.
	Extra map[string]string
}

type Result struct {
	Layer         string
	PyramidID     string
	TileMatrixSet string
	TileMatrix    string
	// Level holding the slice, a sibling of TileMatrix at the same scale when
	// dimension values live there
	Level   string
	SliceID string
	Column  uint
	Row     uint
	Format  source.TileFormat
	// Extent of the tile in the pyramid's horizontal CRS
	Extent geom.Extent
	// Envelope of the pyramid narrowed to the requested dimension values
	Envelope geo.Envelope
	// Missing is set when the tile resolved but holds no data
	Missing bool
	Data    []byte
}

type Resolver struct {
	cache  *capabilities.Cache
	source source.Source
	math   geo.MathProvider
	logger *log.Logger
}

func NewResolver(cache *capabilities.Cache, src source.Source, math geo.MathProvider, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{cache: cache, source: src, math: math, logger: logger}
}

// Resolve finds the tile of a request. Every failure is an *ows.Fault; a tile
// without data is a Result with Missing set.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	bound, err := r.boundPyramids(ctx, req)
	if err != nil {
		return nil, err
	}

	p, err := r.pyramid(ctx, req, bound)
	if err != nil {
		return nil, err
	}

	level, ok := p.Level(req.TileMatrix)
	if !ok {
		return nil, ows.InvalidParameter("tilematrix", "unknown tile matrix %q in tile matrix set %q", req.TileMatrix, req.TileMatrixSet)
	}

	level, slice, envelope, err := r.selectSlice(p, level, req)
	if err != nil {
		return nil, err
	}

	if !mathhelp.WithinGrid(req.Column, slice.GridWidth) {
		return nil, ows.OutOfRange("column", req.Column, slice.GridWidth)
	}
	if !mathhelp.WithinGrid(req.Row, slice.GridHeight) {
		return nil, ows.OutOfRange("row", req.Row, slice.GridHeight)
	}
	col, row := uint(req.Column), uint(req.Row)

	result := &Result{
		Layer:         req.Layer,
		PyramidID:     p.ID,
		TileMatrixSet: req.TileMatrixSet,
		TileMatrix:    req.TileMatrix,
		Level:         level.ID,
		SliceID:       slice.ID,
		Column:        col,
		Row:           row,
		Format:        p.Format,
		Envelope:      envelope,
	}
	if extent, ok := sliceMatrix(p, level, slice).TileExtent(col, row); ok {
		result.Extent = extent
	}

	tile, err := p.TileAt(ctx, level, slice, col, row)
	if err != nil {
		return nil, ows.Upstream(req.Layer, err)
	}
	if tile.Status == source.Missing {
		result.Missing = true
		return result, nil
	}
	result.Data = tile.Data
	return result, nil
}

// boundPyramids looks up the pyramids bound to the requested tile matrix set in
// the current snapshot. Only the snapshot pointer is fetched under the cache lock.
func (r *Resolver) boundPyramids(ctx context.Context, req Request) (map[string]any, error) {
	snapshot, err := r.cache.Get(ctx, req.Key)
	if err != nil {
		return nil, ows.AsFault(err)
	}
	pyramidIDs, ok := snapshot.Registry.Lookup(req.TileMatrixSet)
	if !ok {
		return nil, ows.InvalidParameter("tilematrixset", "unknown tile matrix set %q", req.TileMatrixSet)
	}
	if len(pyramidIDs) == 0 {
		// a published set without bound pyramids, the identifier may name a pyramid itself
		return mapslicehelp.AsKeys([]string{req.TileMatrixSet}), nil
	}
	if l, ok := snapshot.Document.Layer(req.Layer); ok && !l.LinksTo(req.TileMatrixSet) {
		return nil, ows.InvalidParameter("tilematrixset", "layer %q does not use tile matrix set %q", req.Layer, req.TileMatrixSet)
	}
	return mapslicehelp.AsKeys(pyramidIDs), nil
}

func (r *Resolver) pyramid(ctx context.Context, req Request, bound map[string]any) (*source.Pyramid, error) {
	pyramids, err := r.source.Pyramids(ctx, req.Layer)
	switch {
	case errors.Is(err, source.ErrLayerNotFound):
		return nil, ows.InvalidParameter("layer", "unknown layer %q", req.Layer)
	case err != nil:
		return nil, ows.Upstream(req.Layer, err)
	case len(pyramids) == 0:
		return nil, ows.NotTiled(req.Layer)
	}

	var selected *source.Pyramid
	for _, p := range pyramids {
		if _, ok := bound[p.ID]; ok {
			selected = p
			break
		}
	}
	if selected == nil {
		return nil, ows.InvalidParameter("tilematrixset", "layer %q has no pyramid for tile matrix set %q", req.Layer, req.TileMatrixSet)
	}
	if req.Format != "" && !strings.EqualFold(req.Format, selected.Format.MIME) &&
		!strings.EqualFold(strings.TrimPrefix(req.Format, "."), selected.Format.Extension) {
		return nil, ows.InvalidParameter("format", "layer %q is served as %s", req.Layer, selected.Format.MIME)
	}
	return selected, nil
}

type override struct {
	param string
	axis  dimension.Axis
	token string
}

// selectSlice picks the slice among the levels at the scale of the requested one
// whose values match the overrides exactly. An axis without override is not
// constrained, except time, which then selects the latest value like the
// published default. Only overridden axes narrow the envelope.
func (r *Resolver) selectSlice(p *source.Pyramid, level *source.Level, req Request) (*source.Level, *source.Slice, geo.Envelope, error) {
	envelope := p.Envelope
	if len(level.Slices) == 0 {
		return nil, nil, envelope, ows.InvalidParameter("tilematrix", "tile matrix %q holds no data", req.TileMatrix)
	}
	axes, err := dimension.Axes(p.CRS, r.math)
	if err != nil {
		return nil, nil, envelope, ows.Upstream(req.Layer, err)
	}
	overrides, err := overridesOf(axes, req)
	if err != nil {
		return nil, nil, envelope, err
	}

	candidates := sameScale(p, level)
	constrained := make(map[int]bool, len(overrides))
	for _, o := range overrides {
		coordinate, err := o.axis.Coordinate(o.token)
		if err != nil {
			return nil, nil, envelope, ows.InvalidParameter(o.param, "%v", err)
		}
		envelope = envelope.Narrow(o.axis.Index, coordinate)
		constrained[o.axis.Index] = true

		var matching []candidate
		for _, c := range candidates {
			if o.axis.Index >= len(c.slice.Corner) {
				continue
			}
			token, err := o.axis.Token(c.slice.Corner[o.axis.Index])
			if err != nil {
				return nil, nil, envelope, ows.Upstream(req.Layer, err)
			}
			if token == o.token {
				matching = append(matching, c)
			}
		}
		if len(matching) == 0 {
			return nil, nil, envelope, ows.InvalidParameter(o.param, "no data for %s %s in tile matrix %q", o.axis.Name, o.token, req.TileMatrix)
		}
		candidates = matching
	}

	for _, axis := range axes {
		if !axis.Temporal() || constrained[axis.Index] {
			continue
		}
		candidates = latestAlong(candidates, axis.Index)
	}
	return candidates[0].level, candidates[0].slice, envelope, nil
}

type candidate struct {
	level *source.Level
	slice *source.Slice
}

// sameScale lists the slices of level first, then those of the other levels
// with the same resolution.
func sameScale(p *source.Pyramid, level *source.Level) []candidate {
	var candidates []candidate
	for i := range level.Slices {
		candidates = append(candidates, candidate{level: level, slice: &level.Slices[i]})
	}
	for i := range p.Levels {
		if p.Levels[i].ID == level.ID || p.Levels[i].Resolution != level.Resolution {
			continue
		}
		for j := range p.Levels[i].Slices {
			candidates = append(candidates, candidate{level: &p.Levels[i], slice: &p.Levels[i].Slices[j]})
		}
	}
	return candidates
}

// latestAlong keeps the candidates with the highest coordinate along axis.
// Without any coordinate on that axis the candidates are returned as they are.
func latestAlong(candidates []candidate, axis int) []candidate {
	var kept []candidate
	var latest float64
	for _, c := range candidates {
		if axis >= len(c.slice.Corner) {
			continue
		}
		v := c.slice.Corner[axis]
		switch {
		case len(kept) == 0 || v > latest:
			kept, latest = []candidate{c}, v
		case v == latest:
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return candidates
	}
	return kept
}

// overridesOf matches requested dimensions to axes, ordered by parameter name.
// Unknown dimensions are faults, unknown extra parameters are skipped.
func overridesOf(axes []dimension.Axis, req Request) ([]override, error) {
	lenient := make(map[string]bool, len(req.Extra))
	values := make(map[string]string, len(req.Dimensions)+len(req.Extra))
	for param, value := range req.Extra {
		lenient[param] = true
		values[param] = value
	}
	for param, value := range req.Dimensions {
		lenient[param] = false
		values[param] = value
	}
	params := make([]string, 0, len(values))
	for param := range values {
		params = append(params, param)
	}
	sort.Strings(params)

	overrides := make([]override, 0, len(params))
	seen := make(map[int]bool, len(params))
	for _, param := range params {
		name := strings.TrimPrefix(strings.ToLower(param), "dim_")
		var axis *dimension.Axis
		for i := range axes {
			if strings.EqualFold(axes[i].Name, name) {
				axis = &axes[i]
				break
			}
		}
		switch {
		case axis == nil && lenient[param]:
			continue
		case axis == nil:
			return nil, ows.InvalidParameter(param, "layer has no dimension %q", param)
		case seen[axis.Index] && lenient[param]:
			continue
		}
		token, err := axis.Canonical(values[param])
		if err != nil {
			return nil, ows.InvalidParameter(param, "%v", err)
		}
		seen[axis.Index] = true
		overrides = append(overrides, override{param: param, axis: *axis, token: token})
	}
	return overrides, nil
}

// sliceMatrix describes the grid of a slice as a tile matrix
func sliceMatrix(p *source.Pyramid, level *source.Level, slice *source.Slice) *tms20.TileMatrix {
	tm := &tms20.TileMatrix{
		ID:             level.ID,
		CellSize:       level.Resolution,
		CornerOfOrigin: tms20.TopLeft,
		TileWidth:      slice.TileWidth,
		TileHeight:     slice.TileHeight,
		MatrixWidth:    slice.GridWidth,
		MatrixHeight:   slice.GridHeight,
	}
	if hIdx, _, ok := p.CRS.HorizontalIndex(); ok && hIdx+1 < len(slice.Corner) {
		tm.PointOfOrigin = tms20.TwoDPoint{slice.Corner[hIdx], slice.Corner[hIdx+1]}
	}
	return tm
}
