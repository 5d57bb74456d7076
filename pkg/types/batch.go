package types

import (
	"fmt"
	"sort"
)

// ColumnVector is the typed storage of one column of a Batch. Exactly one of
// the value slices is used, selected by Column.Kind. Valid marks non-null
// cells; list cells are never null.
type ColumnVector struct {
	Column  Column
	Floats  []float32
	Ints    []int64
	Strings []string
	Lists   [][]string
	Valid   []bool
}

// NewColumnVector allocates an empty vector for col.
func NewColumnVector(col Column, capacity int) ColumnVector {
	v := ColumnVector{Column: col, Valid: make([]bool, 0, capacity)}
	switch col.Kind {
	case KindFloat32:
		v.Floats = make([]float32, 0, capacity)
	case KindInt64:
		v.Ints = make([]int64, 0, capacity)
	case KindStringList:
		v.Lists = make([][]string, 0, capacity)
	default:
		v.Strings = make([]string, 0, capacity)
	}
	return v
}

// Len returns the number of cells.
func (v *ColumnVector) Len() int {
	return len(v.Valid)
}

// AppendNull appends a null cell. For list columns this appends an empty list.
func (v *ColumnVector) AppendNull() {
	switch v.Column.Kind {
	case KindFloat32:
		v.Floats = append(v.Floats, 0)
	case KindInt64:
		v.Ints = append(v.Ints, 0)
	case KindStringList:
		v.Lists = append(v.Lists, []string{})
		v.Valid = append(v.Valid, true)
		return
	default:
		v.Strings = append(v.Strings, "")
	}
	v.Valid = append(v.Valid, false)
}

// AppendFloat appends a float32 cell.
func (v *ColumnVector) AppendFloat(f float32) {
	v.Floats = append(v.Floats, f)
	v.Valid = append(v.Valid, true)
}

// AppendInt appends an int64 cell.
func (v *ColumnVector) AppendInt(i int64) {
	v.Ints = append(v.Ints, i)
	v.Valid = append(v.Valid, true)
}

// AppendString appends a string cell.
func (v *ColumnVector) AppendString(s string) {
	v.Strings = append(v.Strings, s)
	v.Valid = append(v.Valid, true)
}

// AppendList appends a list cell. A nil list is stored as an empty one.
func (v *ColumnVector) AppendList(l []string) {
	if l == nil {
		l = []string{}
	}
	v.Lists = append(v.Lists, l)
	v.Valid = append(v.Valid, true)
}

// IsNull reports whether cell i is null.
func (v *ColumnVector) IsNull(i int) bool {
	return !v.Valid[i]
}

// Value returns cell i as float32, int64, string or []string, or nil when
// the cell is null.
func (v *ColumnVector) Value(i int) any {
	if !v.Valid[i] {
		return nil
	}
	switch v.Column.Kind {
	case KindFloat32:
		return v.Floats[i]
	case KindInt64:
		return v.Ints[i]
	case KindStringList:
		return v.Lists[i]
	default:
		return v.Strings[i]
	}
}

// Number returns a numeric view of cell i for float and integer columns.
// ok is false for null cells and non-numeric columns.
func (v *ColumnVector) Number(i int) (float64, bool) {
	if !v.Valid[i] {
		return 0, false
	}
	switch v.Column.Kind {
	case KindFloat32:
		return float64(v.Floats[i]), true
	case KindInt64:
		return float64(v.Ints[i]), true
	default:
		return 0, false
	}
}

// NullCount returns the number of null cells.
func (v *ColumnVector) NullCount() int {
	n := 0
	for _, ok := range v.Valid {
		if !ok {
			n++
		}
	}
	return n
}

func (v *ColumnVector) take(idx []int) ColumnVector {
	out := NewColumnVector(v.Column, len(idx))
	for _, i := range idx {
		if !v.Valid[i] {
			out.AppendNull()
			continue
		}
		switch v.Column.Kind {
		case KindFloat32:
			out.AppendFloat(v.Floats[i])
		case KindInt64:
			out.AppendInt(v.Ints[i])
		case KindStringList:
			out.AppendList(v.Lists[i])
		default:
			out.AppendString(v.Strings[i])
		}
	}
	return out
}

// Batch is a columnar group of rows. Partitions, when non-nil, holds the
// partition values of each row and is aligned with the column vectors.
type Batch struct {
	Columns    []ColumnVector
	Partitions []PartitionValues
}

// NewBatch allocates an empty batch with one vector per column.
func NewBatch(cols []Column, capacity int) *Batch {
	b := &Batch{
		Columns:    make([]ColumnVector, len(cols)),
		Partitions: make([]PartitionValues, 0, capacity),
	}
	for i, c := range cols {
		b.Columns[i] = NewColumnVector(c, capacity)
	}
	return b
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	if len(b.Columns) > 0 {
		return b.Columns[0].Len()
	}
	return len(b.Partitions)
}

// ColumnNames returns the column names in order.
func (b *Batch) ColumnNames() []string {
	names := make([]string, len(b.Columns))
	for i := range b.Columns {
		names[i] = b.Columns[i].Column.Name
	}
	return names
}

// Column returns the vector of the named column.
func (b *Batch) Column(name string) (*ColumnVector, bool) {
	for i := range b.Columns {
		if b.Columns[i].Column.Name == name {
			return &b.Columns[i], true
		}
	}
	return nil, false
}

// AppendRow appends one row of already typed values in column order.
// Accepted cell values are nil, float32, float64, int, int64, string and
// []string.
func (b *Batch) AppendRow(values []any, pv PartitionValues) error {
	if len(values) != len(b.Columns) {
		return fmt.Errorf("types: row has %d values, batch has %d columns", len(values), len(b.Columns))
	}
	for i, val := range values {
		vec := &b.Columns[i]
		if val == nil {
			vec.AppendNull()
			continue
		}
		switch x := val.(type) {
		case float32:
			vec.AppendFloat(x)
		case float64:
			vec.AppendFloat(float32(x))
		case int:
			vec.AppendInt(int64(x))
		case int64:
			vec.AppendInt(x)
		case string:
			vec.AppendString(x)
		case []string:
			vec.AppendList(x)
		default:
			return fmt.Errorf("types: unsupported value %T for column %s", val, vec.Column.Name)
		}
	}
	b.Partitions = append(b.Partitions, pv)
	return nil
}

// Take returns a new batch holding the rows at idx, in that order.
func (b *Batch) Take(idx []int) *Batch {
	out := &Batch{Columns: make([]ColumnVector, len(b.Columns))}
	for i := range b.Columns {
		out.Columns[i] = b.Columns[i].take(idx)
	}
	if b.Partitions != nil {
		out.Partitions = make([]PartitionValues, 0, len(idx))
		for _, i := range idx {
			out.Partitions = append(out.Partitions, b.Partitions[i])
		}
	}
	return out
}

// Filter returns a new batch with the rows whose keep flag is set.
func (b *Batch) Filter(keep []bool) *Batch {
	idx := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return b.Take(idx)
}

// DropColumns returns a batch without the named columns, sharing the
// remaining vectors. missing lists requested names the batch does not have.
func (b *Batch) DropColumns(names ...string) (out *Batch, missing []string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
		if _, ok := b.Column(n); !ok {
			missing = append(missing, n)
		}
	}
	out = &Batch{Partitions: b.Partitions}
	for _, c := range b.Columns {
		if !drop[c.Column.Name] {
			out.Columns = append(out.Columns, c)
		}
	}
	return out, missing
}

// PartitionGroup is the subset of a batch that shares partition values.
type PartitionGroup struct {
	Values PartitionValues
	Batch  *Batch
}

// SplitByPartition groups rows by partition values. Groups are ordered by
// year then country; row order inside a group is preserved.
func (b *Batch) SplitByPartition() []PartitionGroup {
	if b.Partitions == nil {
		return []PartitionGroup{{Values: Unknown(), Batch: b}}
	}
	index := make(map[PartitionValues][]int)
	for i, pv := range b.Partitions {
		index[pv] = append(index[pv], i)
	}
	keys := make([]PartitionValues, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Year != keys[j].Year {
			return keys[i].Year < keys[j].Year
		}
		return keys[i].Country < keys[j].Country
	})
	groups := make([]PartitionGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, PartitionGroup{Values: k, Batch: b.Take(index[k])})
	}
	return groups
}

// NullCounts returns the number of null cells per column.
func (b *Batch) NullCounts() map[string]int {
	counts := make(map[string]int, len(b.Columns))
	for i := range b.Columns {
		counts[b.Columns[i].Column.Name] = b.Columns[i].NullCount()
	}
	return counts
}

// Concat returns a batch holding the rows of batches in order. Every batch
// must have the same column names and kinds. Rows of batches without
// partitions are tagged Unknown.
func Concat(batches ...*Batch) (*Batch, error) {
	if len(batches) == 0 {
		return &Batch{}, nil
	}
	first := batches[0]
	cols := make([]Column, len(first.Columns))
	total := 0
	for i := range first.Columns {
		cols[i] = first.Columns[i].Column
	}
	for _, b := range batches {
		if len(b.Columns) != len(cols) {
			return nil, fmt.Errorf("types: cannot concat batches with %d and %d columns", len(cols), len(b.Columns))
		}
		for i := range b.Columns {
			c := b.Columns[i].Column
			if c.Name != cols[i].Name || c.Kind != cols[i].Kind {
				return nil, fmt.Errorf("types: column %d is %s %s, expected %s %s", i, c.Name, c.Kind, cols[i].Name, cols[i].Kind)
			}
		}
		total += b.Len()
	}

	out := NewBatch(cols, total)
	for _, b := range batches {
		for i := range b.Columns {
			src, dst := &b.Columns[i], &out.Columns[i]
			dst.Floats = append(dst.Floats, src.Floats...)
			dst.Ints = append(dst.Ints, src.Ints...)
			dst.Strings = append(dst.Strings, src.Strings...)
			dst.Lists = append(dst.Lists, src.Lists...)
			dst.Valid = append(dst.Valid, src.Valid...)
		}
		if b.Partitions != nil {
			out.Partitions = append(out.Partitions, b.Partitions...)
			continue
		}
		for i := 0; i < b.Len(); i++ {
			out.Partitions = append(out.Partitions, Unknown())
		}
	}
	return out, nil
}
