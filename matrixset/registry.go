package matrixset

import (
	"github.com/pdok/tilecaps/mapslicehelp"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry binds exposed tile matrix set identifiers to the pyramids they stand
// for. It is never modified after Build.
type Registry struct {
	ids      []string
	bindings map[string][]string
}

// Lookup returns the pyramid identifiers bound to an exposed identifier. A
// declared set without pyramids yields an empty slice and true.
func (r *Registry) Lookup(exposedID string) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	pyramids, ok := r.bindings[exposedID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), pyramids...), true
}

// IDs lists the exposed identifiers in registration order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.ids...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}

type RegistryBuilder struct {
	bindings *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, struct{}]]
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{bindings: orderedmap.New[string, *orderedmap.OrderedMap[string, struct{}]]()}
}

// Declare adds an entry without binding a pyramid to it.
func (b *RegistryBuilder) Declare(exposedID string) {
	if _, ok := b.bindings.Get(exposedID); !ok {
		b.bindings.Set(exposedID, orderedmap.New[string, struct{}]())
	}
}

func (b *RegistryBuilder) Bind(exposedID, pyramidID string) {
	b.Declare(exposedID)
	pyramids, _ := b.bindings.Get(exposedID)
	pyramids.Set(pyramidID, struct{}{})
}

// Build returns an immutable copy, the builder can still be used afterwards.
func (b *RegistryBuilder) Build() *Registry {
	r := &Registry{
		ids:      mapslicehelp.OrderedMapKeys(b.bindings),
		bindings: make(map[string][]string, b.bindings.Len()),
	}
	for p := b.bindings.Oldest(); p != nil; p = p.Next() {
		r.bindings[p.Key] = mapslicehelp.OrderedMapKeys(p.Value)
	}
	return r
}
