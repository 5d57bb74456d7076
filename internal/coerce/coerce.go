// Package coerce casts flattened rows into typed columnar batches.
//
// Conversion failures are isolated to the cell: a value that cannot be
// represented in its column's kind becomes null, and no row is ever dropped.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// Coercer converts FlatRows to a Batch following the kinds of a contract.
type Coercer struct {
	columns []types.Column
}

// New creates a coercer for contract.
func New(contract *schema.Contract) *Coercer {
	return &Coercer{columns: contract.Columns()}
}

// Coerce builds a batch from rows and their partition values. It fails only
// when the inputs are misaligned: parts must match rows one to one and every
// row must have one value per contract column.
func (c *Coercer) Coerce(rows []types.FlatRow, parts []types.PartitionValues) (*types.Batch, error) {
	if len(rows) != len(parts) {
		return nil, fmt.Errorf("coerce: %d rows but %d partition values", len(rows), len(parts))
	}

	batch := types.NewBatch(c.columns, len(rows))
	for r, row := range rows {
		if row.Len() != len(c.columns) {
			return nil, fmt.Errorf("coerce: row %d: %w (%d != %d)", r, types.ErrWidthMismatch, row.Len(), len(c.columns))
		}
		for i := range c.columns {
			appendCell(&batch.Columns[i], row.At(i))
		}
	}
	batch.Partitions = append(batch.Partitions, parts...)
	return batch, nil
}

func appendCell(vec *types.ColumnVector, v any) {
	switch vec.Column.Kind {
	case types.KindFloat32:
		if f, ok := ToFloat32(v); ok {
			vec.AppendFloat(f)
		} else {
			vec.AppendNull()
		}
	case types.KindInt64:
		if i, ok := ToInt64(v); ok {
			vec.AppendInt(i)
		} else {
			vec.AppendNull()
		}
	case types.KindStringList:
		vec.AppendList(ToStringList(v))
	default:
		if s, ok := ToString(v); ok {
			vec.AppendString(s)
		} else {
			vec.AppendNull()
		}
	}
}

// ToFloat32 parses v as a finite float32.
func ToFloat32(v any) (float32, bool) {
	f, ok := toFloat64(v)
	if !ok {
		return 0, false
	}
	f32 := float32(f)
	if math.IsInf(float64(f32), 0) {
		return 0, false
	}
	return f32, true
}

// ToInt64 parses v as a number and rounds it to the nearest integer, ties
// to even. Values outside the int64 range are rejected.
func ToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return i, true
		}
	case int:
		return int64(x), true
	case int64:
		return x, true
	case int32:
		return int64(x), true
	}

	f, ok := toFloat64(v)
	if !ok {
		return 0, false
	}
	f = math.RoundToEven(f)
	// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToString renders v as a string. Absent values and the empty string are
// null.
func ToString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s := stringify(v)
	return s, s != ""
}

// ToStringList renders v as a list of strings. A sequence keeps its non-null
// elements, a non-empty scalar becomes a single-element list and anything
// else is the empty list. The result is never nil.
func ToStringList(v any) []string {
	switch x := v.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if e != nil {
				out = append(out, stringify(e))
			}
		}
		return out
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	case string:
		if x == "" {
			return []string{}
		}
		return []string{x}
	default:
		s := stringify(x)
		if s == "" {
			return []string{}
		}
		return []string{s}
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
