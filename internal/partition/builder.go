// Package partition derives partition values for product records and writes
// hive-partitioned, snappy-compressed Parquet fragments.
package partition

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// FragmentSuffix is the file suffix of every written fragment.
const FragmentSuffix = ".snappy.parquet"

// FragmentBuilder writes one partition's rows as a columnar fragment file.
type FragmentBuilder interface {
	Build(ctx context.Context, batch *types.Batch, pv types.PartitionValues) (*FragmentInfo, error)
}

// FragmentInfo contains metadata about a written fragment.
type FragmentInfo struct {
	FragmentID  string
	Partition   types.PartitionValues
	FileName    string
	LocalPath   string
	RowCount    int64
	SizeBytes   int64
	MinMaxStats map[string]MinMax
	NullCounts  map[string]int64
	CreatedAt   time.Time
}

// ObjectPath returns the fragment's object key under prefix.
func (f *FragmentInfo) ObjectPath(prefix string) string {
	if prefix == "" {
		return f.Partition.Path() + "/" + f.FileName
	}
	return prefix + "/" + f.Partition.Path() + "/" + f.FileName
}

// MinMax holds min/max values for a column.
type MinMax struct {
	Min interface{}
	Max interface{}
}

// Builder implements FragmentBuilder with Parquet files. Partition columns
// are not stored in the file; the hive path carries them.
type Builder struct {
	outputDir string
	ids       *types.FragmentIDGenerator
	mem       memory.Allocator
}

// NewBuilder creates a fragment builder writing into outputDir.
func NewBuilder(outputDir string) *Builder {
	return &Builder{
		outputDir: outputDir,
		ids:       types.NewFragmentIDGenerator(),
		mem:       memory.DefaultAllocator,
	}
}

// Build writes batch as a single fragment of partition pv.
func (b *Builder) Build(ctx context.Context, batch *types.Batch, pv types.PartitionValues) (*FragmentInfo, error) {
	if batch.Len() == 0 {
		return nil, fmt.Errorf("partition: cannot build fragment with empty rows")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := b.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("partition: failed to generate fragment id: %w", err)
	}
	fragmentID := fmt.Sprintf("%s-%s", id.String(), uuid.New().String()[:8])
	fileName := "part-" + fragmentID + FragmentSuffix

	dir := filepath.Join(b.outputDir, filepath.FromSlash(pv.Path()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("partition: failed to create output directory: %w", err)
	}
	localPath := filepath.Join(dir, fileName)

	f, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to create fragment file: %w", err)
	}
	if err := WriteParquet(f, batch, b.mem); err != nil {
		f.Close()
		os.Remove(localPath)
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("partition: failed to close fragment file: %w", err)
	}

	fileInfo, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to stat fragment file: %w", err)
	}

	stats := NewStatsTracker()
	stats.Observe(batch)

	return &FragmentInfo{
		FragmentID:  fragmentID,
		Partition:   pv,
		FileName:    fileName,
		LocalPath:   localPath,
		RowCount:    int64(batch.Len()),
		SizeBytes:   fileInfo.Size(),
		MinMaxStats: stats.GetMinMaxStats(),
		NullCounts:  stats.NullCounts(),
		CreatedAt:   id.Time(),
	}, nil
}

// ArrowSchema returns the Arrow schema for cols.
func ArrowSchema(cols []types.Column) *arrow.Schema {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Kind), Nullable: c.Kind != types.KindStringList}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(k types.Kind) arrow.DataType {
	switch k {
	case types.KindFloat32:
		return arrow.PrimitiveTypes.Float32
	case types.KindInt64:
		return arrow.PrimitiveTypes.Int64
	case types.KindStringList:
		return arrow.ListOf(arrow.BinaryTypes.String)
	default:
		return arrow.BinaryTypes.String
	}
}

// nopCloser hides Close from the Parquet writer, which otherwise closes its
// sink when finalizing the file.
type nopCloser struct {
	io.Writer
}

// WriteParquet encodes batch as a snappy-compressed Parquet file on w.
// Partition values of the batch are not written. w is left open.
func WriteParquet(w io.Writer, batch *types.Batch, mem memory.Allocator) error {
	cols := make([]types.Column, len(batch.Columns))
	for i := range batch.Columns {
		cols[i] = batch.Columns[i].Column
	}
	schema := ArrowSchema(cols)

	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()

	for i := range batch.Columns {
		vec := &batch.Columns[i]
		switch fb := rb.Field(i).(type) {
		case *array.Float32Builder:
			for j, ok := range vec.Valid {
				if ok {
					fb.Append(vec.Floats[j])
				} else {
					fb.AppendNull()
				}
			}
		case *array.Int64Builder:
			for j, ok := range vec.Valid {
				if ok {
					fb.Append(vec.Ints[j])
				} else {
					fb.AppendNull()
				}
			}
		case *array.StringBuilder:
			for j, ok := range vec.Valid {
				if ok {
					fb.Append(vec.Strings[j])
				} else {
					fb.AppendNull()
				}
			}
		case *array.ListBuilder:
			vb := fb.ValueBuilder().(*array.StringBuilder)
			for _, l := range vec.Lists {
				fb.Append(true)
				for _, s := range l {
					vb.Append(s)
				}
			}
		default:
			return fmt.Errorf("partition: unsupported builder %T for column %s", fb, vec.Column.Name)
		}
	}

	rec := rb.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, nopCloser{w}, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return fmt.Errorf("partition: failed to create parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("partition: failed to write record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("partition: failed to finalize parquet file: %w", err)
	}
	return nil
}
