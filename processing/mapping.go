package processing

import (
	"github.com/pdok/appendfeatures/mapslicehelp"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FieldMapping maps a target field index to the index of the source field with the same name.
// Target fields without a source counterpart are absent.
type FieldMapping struct {
	*orderedmap.OrderedMap[int, int]
}

// BuildFieldMapping matches the target fields to the source fields by exact name.
// Values are copied as is later on, no attempt is made to reconcile the field types.
func BuildFieldMapping(target, source []Field) FieldMapping {
	sourceNames := make([]string, len(source))
	for i, f := range source {
		sourceNames[i] = f.Name
	}
	sourceIndexes := mapslicehelp.FirstIndexes(sourceNames)

	mapping := FieldMapping{orderedmap.New[int, int]()}
	for targetIdx, f := range target {
		if sourceIdx, ok := sourceIndexes[f.Name]; ok {
			mapping.Set(targetIdx, sourceIdx)
		}
	}
	return mapping
}

// Attributes picks the mapped values from the columns of a source feature
func (m FieldMapping) Attributes(columns []interface{}) map[int]interface{} {
	attrs := make(map[int]interface{}, m.Len())
	for p := m.Oldest(); p != nil; p = p.Next() {
		if p.Value < len(columns) {
			attrs[p.Key] = columns[p.Value]
		}
	}
	return attrs
}

// TargetNames returns the names of the mapped target fields in target order
func (m FieldMapping) TargetNames(target []Field) []string {
	indexes := mapslicehelp.OrderedMapKeys(m.OrderedMap)
	names := make([]string, len(indexes))
	for i, idx := range indexes {
		names[i] = target[idx].Name
	}
	return names
}
