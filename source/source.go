// Package source describes where tiled layers come from: layers, the pyramids
// backing them and the tiles inside those pyramids.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdok/tilecaps/geo"
)

var ErrLayerNotFound = errors.New("layer not found")

// Source yields the layers that can be exposed and the pyramids behind them.
type Source interface {
	Layers(ctx context.Context) ([]Layer, error)
	// Pyramids returns ErrLayerNotFound (wrapped) for unknown layers.
	// A known layer without pyramids returns an empty slice.
	Pyramids(ctx context.Context, layer string) ([]*Pyramid, error)
}

type Layer struct {
	Name     string
	Title    string
	Abstract string
	Keywords []string
}

// TileFormat is the encoding of every tile in a pyramid.
type TileFormat struct {
	MIME      string
	Extension string
}

func (f TileFormat) String() string {
	return f.MIME
}

// Pyramid is a multi-resolution tiling of one dataset.
type Pyramid struct {
	ID       string
	CRS      *geo.CRS
	Envelope geo.Envelope
	Format   TileFormat
	// Levels ordered as the source stores them, usually coarsest first
	Levels []Level
	Tiles  TileReader
}

// Level is one zoom level. Every slice of a level shares its resolution and
// differs only along the non-horizontal axes of the pyramid's CRS.
type Level struct {
	ID string
	// CRS units per pixel along the horizontal axes
	Resolution float64
	Slices     []Slice
}

type Slice struct {
	ID string
	// Corner holds one coordinate per CRS axis: the top-left corner for the
	// horizontal axes, the slice position for the other axes.
	Corner     []float64
	GridWidth  uint
	GridHeight uint
	TileWidth  uint
	TileHeight uint
}

type TileStatus int

const (
	Present TileStatus = iota
	Missing
)

func (s TileStatus) String() string {
	if s == Missing {
		return "missing"
	}
	return "present"
}

type Tile struct {
	Status TileStatus
	Data   []byte
}

// TileReader reads single tiles. A tile without data is not an error but a
// Tile with status Missing.
type TileReader interface {
	ReadTile(ctx context.Context, level *Level, slice *Slice, col, row uint) (Tile, error)
}

// Level returns the level with the given identifier.
func (p *Pyramid) Level(id string) (*Level, bool) {
	for i := range p.Levels {
		if p.Levels[i].ID == id {
			return &p.Levels[i], true
		}
	}
	return nil, false
}

// TileAt reads the tile at col, row of a slice of one of p's levels.
func (p *Pyramid) TileAt(ctx context.Context, level *Level, slice *Slice, col, row uint) (Tile, error) {
	if p.Tiles == nil {
		return Tile{Status: Missing}, nil
	}
	if col >= slice.GridWidth || row >= slice.GridHeight {
		return Tile{}, fmt.Errorf("tile %d/%d outside grid %dx%d of slice %s", col, row, slice.GridWidth, slice.GridHeight, slice.ID)
	}
	tile, err := p.Tiles.ReadTile(ctx, level, slice, col, row)
	if err != nil {
		return Tile{}, fmt.Errorf("could not read tile %s/%d/%d of pyramid %s: %w", slice.ID, col, row, p.ID, err)
	}
	return tile, nil
}
