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

// FirstIndexes maps every element to the index of its first occurrence
func FirstIndexes[T comparable](elements []T) map[T]int {
	indexes := make(map[T]int, len(elements))
	for i, element := range elements {
		if _, seen := indexes[element]; !seen {
			indexes[element] = i
		}
	}
	return indexes
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
