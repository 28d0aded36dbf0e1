package matrixset

import (
	"fmt"

	"github.com/pdok/tilecaps/tms20"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Deduplicator assigns exposed identifiers to the tile matrix sets of one
// rebuild. The outcome only depends on the order of the Add calls.
type Deduplicator struct {
	sets     *orderedmap.OrderedMap[string, *tms20.TileMatrixSet]
	registry *RegistryBuilder
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		sets:     orderedmap.New[string, *tms20.TileMatrixSet](),
		registry: NewRegistryBuilder(),
	}
}

// Add registers the tile matrix set of a pyramid and returns its exposed identifier:
// the identifier of an equal set added before, else pyramidID itself if still
// free, else pyramidID suffixed with the smallest free "_N".
func (d *Deduplicator) Add(pyramidID string, tms *tms20.TileMatrixSet) string {
	for p := d.sets.Oldest(); p != nil; p = p.Next() {
		if p.Value.Equal(tms) {
			d.registry.Bind(p.Key, pyramidID)
			return p.Key
		}
	}

	exposedID := pyramidID
	for n := 1; d.taken(exposedID); n++ {
		exposedID = fmt.Sprintf("%s_%d", pyramidID, n)
	}
	stored := tms.Clone()
	stored.ID = exposedID
	d.sets.Set(exposedID, &stored)
	d.registry.Bind(exposedID, pyramidID)
	return exposedID
}

// Declare publishes a set that no pyramid is bound to, unless its identifier is
// already taken. It reports whether the set was added.
func (d *Deduplicator) Declare(tms *tms20.TileMatrixSet) bool {
	if d.taken(tms.ID) {
		return false
	}
	stored := tms.Clone()
	d.sets.Set(stored.ID, &stored)
	d.registry.Declare(stored.ID)
	return true
}

func (d *Deduplicator) taken(id string) bool {
	_, ok := d.sets.Get(id)
	return ok
}

// Sets returns the registered sets in registration order.
func (d *Deduplicator) Sets() []*tms20.TileMatrixSet {
	sets := make([]*tms20.TileMatrixSet, 0, d.sets.Len())
	for p := d.sets.Oldest(); p != nil; p = p.Next() {
		sets = append(sets, p.Value)
	}
	return sets
}

// Registry freezes the bindings collected so far.
func (d *Deduplicator) Registry() *Registry {
	return d.registry.Build()
}
