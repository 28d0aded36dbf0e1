package mapslicehelp

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/constraints"
)

func AsKeys[T constraints.Ordered](elements []T) map[T]any {
	mapped := make(map[T]any, len(elements))
	for _, element := range elements {
		mapped[element] = struct{}{}
	}
	return mapped
}

func OrderedMapKeys[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []K {
	l := make([]K, m.Len())
	i := 0
	for p := m.Oldest(); p != nil; p = p.Next() {
		l[i] = p.Key
		i++
	}
	return l
}

// Distinct drops repeated elements, keeping the first occurrence of each.
func Distinct[T comparable](elements []T) []T {
	seen := orderedmap.New[T, struct{}]()
	for _, element := range elements {
		seen.Set(element, struct{}{})
	}
	return OrderedMapKeys(seen)
}
