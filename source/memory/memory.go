// Package memory is a Source kept entirely in memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pdok/tilecaps/source"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type layerEntry struct {
	layer    source.Layer
	pyramids []*source.Pyramid
}

// Source keeps layers in insertion order.
type Source struct {
	mu     sync.RWMutex
	layers *orderedmap.OrderedMap[string, layerEntry]
}

func New() *Source {
	return &Source{layers: orderedmap.New[string, layerEntry]()}
}

// Put adds or replaces a layer. A replaced layer keeps its position.
func (s *Source) Put(layer source.Layer, pyramids ...*source.Pyramid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers.Set(layer.Name, layerEntry{layer: layer, pyramids: pyramids})
}

func (s *Source) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, present := s.layers.Delete(name)
	return present
}

func (s *Source) Layers(_ context.Context) ([]source.Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	layers := make([]source.Layer, 0, s.layers.Len())
	for p := s.layers.Oldest(); p != nil; p = p.Next() {
		layers = append(layers, p.Value.layer)
	}
	return layers, nil
}

func (s *Source) Pyramids(_ context.Context, layer string) ([]*source.Pyramid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.layers.Get(layer)
	if !ok {
		return nil, fmt.Errorf("%s: %w", layer, source.ErrLayerNotFound)
	}
	return append([]*source.Pyramid(nil), entry.pyramids...), nil
}

type tileKey struct {
	slice    string
	col, row uint
}

// Tiles is a TileReader over tiles stored per slice identifier.
type Tiles struct {
	mu    sync.RWMutex
	tiles map[tileKey][]byte
}

func NewTiles() *Tiles {
	return &Tiles{tiles: make(map[tileKey][]byte)}
}

// Put stores data for a tile. Nil data removes the tile.
func (t *Tiles) Put(sliceID string, col, row uint, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := tileKey{slice: sliceID, col: col, row: row}
	if data == nil {
		delete(t.tiles, key)
		return
	}
	t.tiles[key] = data
}

// ReadTile reports every tile of a nil *Tiles as missing.
func (t *Tiles) ReadTile(_ context.Context, _ *source.Level, slice *source.Slice, col, row uint) (source.Tile, error) {
	if t == nil {
		return source.Tile{Status: source.Missing}, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, ok := t.tiles[tileKey{slice: slice.ID, col: col, row: row}]
	if !ok {
		return source.Tile{Status: source.Missing}, nil
	}
	return source.Tile{Status: source.Present, Data: data}, nil
}
