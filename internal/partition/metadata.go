package partition

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// FieldType is a column name with its physical type.
type FieldType struct {
	Name string
	Type types.PhysicalType
}

// Footer is the metadata of a fragment file, read without touching row
// data.
type Footer struct {
	NumRows int64
	Fields  []FieldType
}

// ReadFooter reads a fragment's row count and schema from its footer.
func ReadFooter(ctx context.Context, path string) (*Footer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to open fragment %s: %w", path, err)
	}
	defer f.Close()
	return ReadFooterFrom(f)
}

// ReadFooterFrom reads the footer of the Parquet file behind r. Only the
// tail of the file is read. r is not closed.
func ReadFooterFrom(r parquet.ReaderAtSeeker) (*Footer, error) {
	rdr, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to read fragment footer: %w", err)
	}

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to read fragment metadata: %w", err)
	}
	schema, err := fr.Schema()
	if err != nil {
		return nil, fmt.Errorf("partition: failed to read fragment schema: %w", err)
	}

	footer := &Footer{NumRows: rdr.NumRows(), Fields: make([]FieldType, 0, schema.NumFields())}
	for _, f := range schema.Fields() {
		footer.Fields = append(footer.Fields, FieldType{Name: f.Name, Type: PhysicalTypeOf(f.Type)})
	}
	return footer, nil
}

// ReadRowCount returns the row count recorded in a fragment's footer.
func ReadRowCount(path string) (int64, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return 0, fmt.Errorf("partition: failed to open fragment %s: %w", path, err)
	}
	defer rdr.Close()
	return rdr.NumRows(), nil
}

// PhysicalTypeOf maps an Arrow type to its physical type name. Types other
// than the four column kinds map to their own names and therefore never
// match an expected type.
func PhysicalTypeOf(dt arrow.DataType) types.PhysicalType {
	switch dt.ID() {
	case arrow.FLOAT32:
		return types.PhysicalFloat
	case arrow.FLOAT64:
		return "double"
	case arrow.INT64:
		return types.PhysicalBigint
	case arrow.INT32:
		return "int"
	case arrow.BOOL:
		return "boolean"
	case arrow.STRING, arrow.LARGE_STRING:
		return types.PhysicalString
	case arrow.LIST:
		return types.PhysicalType("array<" + string(PhysicalTypeOf(dt.(*arrow.ListType).Elem())) + ">")
	case arrow.LARGE_LIST:
		return types.PhysicalType("array<" + string(PhysicalTypeOf(dt.(*arrow.LargeListType).Elem())) + ">")
	case arrow.DICTIONARY:
		return PhysicalTypeOf(dt.(*arrow.DictionaryType).ValueType)
	default:
		return types.PhysicalType(dt.Name())
	}
}
