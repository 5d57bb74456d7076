package partition

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// ReadFragment materializes a fragment file as a Batch. When pv is non-nil
// every row is tagged with it; otherwise the batch carries no partitions.
// Float64 and int32 columns are narrowed/widened to the float32 and int64
// kinds.
func ReadFragment(ctx context.Context, path string, pv *types.PartitionValues) (*types.Batch, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to open fragment %s: %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to create arrow reader: %w", err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to read fragment %s: %w", path, err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	cols := make([]types.Column, schema.NumFields())
	for i, f := range schema.Fields() {
		kind, ok := kindOf(f.Type)
		if !ok {
			return nil, fmt.Errorf("partition: column %s has unsupported type %s", f.Name, f.Type)
		}
		cols[i] = types.Column{Name: f.Name, Path: []string{f.Name}, Kind: kind}
	}

	n := int(tbl.NumRows())
	batch := types.NewBatch(cols, n)
	for i := range cols {
		vec := &batch.Columns[i]
		for _, chunk := range tbl.Column(i).Data().Chunks() {
			if err := appendArrow(vec, chunk); err != nil {
				return nil, err
			}
		}
	}

	if pv != nil {
		for i := 0; i < n; i++ {
			batch.Partitions = append(batch.Partitions, *pv)
		}
	} else {
		batch.Partitions = nil
	}
	return batch, nil
}

func kindOf(dt arrow.DataType) (types.Kind, bool) {
	switch dt.ID() {
	case arrow.FLOAT32, arrow.FLOAT64:
		return types.KindFloat32, true
	case arrow.INT64, arrow.INT32:
		return types.KindInt64, true
	case arrow.STRING, arrow.LARGE_STRING:
		return types.KindString, true
	case arrow.LIST:
		elem := dt.(*arrow.ListType).Elem().ID()
		return types.KindStringList, elem == arrow.STRING || elem == arrow.LARGE_STRING
	default:
		return "", false
	}
}

func appendArrow(vec *types.ColumnVector, arr arrow.Array) error {
	switch a := arr.(type) {
	case *array.Float32:
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				vec.AppendNull()
			} else {
				vec.AppendFloat(a.Value(i))
			}
		}
	case *array.Float64:
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				vec.AppendNull()
			} else {
				vec.AppendFloat(float32(a.Value(i)))
			}
		}
	case *array.Int64:
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				vec.AppendNull()
			} else {
				vec.AppendInt(a.Value(i))
			}
		}
	case *array.Int32:
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				vec.AppendNull()
			} else {
				vec.AppendInt(int64(a.Value(i)))
			}
		}
	case *array.String:
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				vec.AppendNull()
			} else {
				vec.AppendString(a.Value(i))
			}
		}
	case *array.LargeString:
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				vec.AppendNull()
			} else {
				vec.AppendString(a.Value(i))
			}
		}
	case *array.List:
		values := a.ListValues()
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				vec.AppendList(nil)
				continue
			}
			start, end := a.ValueOffsets(i)
			list := make([]string, 0, end-start)
			for j := start; j < end; j++ {
				list = append(list, listElement(values, int(j)))
			}
			vec.AppendList(list)
		}
	default:
		return fmt.Errorf("partition: unsupported array %T for column %s", arr, vec.Column.Name)
	}
	return nil
}

func listElement(values arrow.Array, i int) string {
	switch v := values.(type) {
	case *array.String:
		return v.Value(i)
	case *array.LargeString:
		return v.Value(i)
	default:
		return ""
	}
}
