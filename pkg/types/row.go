// Package types provides the core data types shared by the nutrisage
// ingestion, validation and cleaning packages.
package types

// FlatRow holds one raw (untyped) value per canonical column, in column
// order. A nil value marks an absent or unreachable field.
type FlatRow struct {
	names  []string
	values []any
}

// NewFlatRow builds a FlatRow. names and values must have equal length.
func NewFlatRow(names []string, values []any) FlatRow {
	return FlatRow{names: names, values: values}
}

// Len returns the number of columns.
func (r FlatRow) Len() int {
	return len(r.values)
}

// Names returns the column names in order.
func (r FlatRow) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// At returns the raw value of the i-th column.
func (r FlatRow) At(i int) any {
	return r.values[i]
}

// Get returns the raw value of the named column.
func (r FlatRow) Get(name string) (any, bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a column name to value map.
func (r FlatRow) Map() map[string]any {
	m := make(map[string]any, len(r.names))
	for i, n := range r.names {
		m[n] = r.values[i]
	}
	return m
}
