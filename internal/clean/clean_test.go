package clean

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/internal/partition"
	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/internal/storage"
	"github.com/nutrisage/nutrisage/pkg/types"
)

func col(name string, kind types.Kind) types.Column {
	return types.Column{Name: name, Path: []string{name}, Kind: kind}
}

// scenarioBatch holds the drop columns plus two nutrients and the grade.
func scenarioBatch(t *testing.T, rows ...[]any) *types.Batch {
	t.Helper()
	cols := []types.Column{
		col("categories_tags", types.KindStringList),
		col("brands_tags", types.KindStringList),
		col("countries_tags", types.KindStringList),
		col("serving_size", types.KindString),
		col("created_t", types.KindInt64),
		col("energy_100g", types.KindFloat32),
		col("fiber_100g", types.KindFloat32),
		col("sugar_100g", types.KindFloat32),
		col("protein_100g", types.KindFloat32),
		col("nutrition_grade_fr", types.KindString),
	}
	batch := types.NewBatch(cols, len(rows))
	for _, r := range rows {
		if err := batch.AppendRow(r, types.Unknown()); err != nil {
			t.Fatalf("failed to append row: %v", err)
		}
	}
	return batch
}

func row(sugar, protein any, grade any) []any {
	return []any{[]string{"x"}, []string{"a"}, []string{"ca"}, "10", int64(1), 50.0, 3.0, sugar, protein, grade}
}

type recordingAudit struct {
	calls    int
	day      time.Time
	outliers *types.Batch
}

func (r *recordingAudit) WriteOutliers(_ context.Context, day time.Time, b *types.Batch) (string, error) {
	r.calls++
	r.day = day
	r.outliers = b
	return "memory", nil
}

func TestClean_Scenario(t *testing.T) {
	c := New(schema.Default())
	out, err := c.Clean(context.Background(), scenarioBatch(t,
		row(50.0, 10.0, "a"),
		row(150.0, -5.0, "?"),
	))
	if err != nil {
		t.Fatalf("failed to clean: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", out.Len())
	}
	if _, ok := out.Column("categories_tags"); ok {
		t.Error("expected categories_tags to be dropped")
	}
	grade, _ := out.Column("nutrition_grade_fr")
	if g := grade.Value(0); g != "a" {
		t.Errorf("unexpected surviving grade %v", g)
	}
	sugar, _ := out.Column("sugar_100g")
	if sugar.Value(0) != float32(50) {
		t.Errorf("expected the first row to survive, got sugar %v", sugar.Value(0))
	}
}

func TestClean_Filters(t *testing.T) {
	tests := []struct {
		name string
		row  []any
		keep bool
	}{
		{"bounds are inclusive", row(0.0, 100.0, "e"), true},
		{"null nutrient is not an outlier", row(nil, 20.0, "b"), true},
		{"above range", row(100.5, 1.0, "a"), false},
		{"below range", row(1.0, -0.1, "a"), false},
		{"null grade", row(1.0, 1.0, nil), false},
		{"uppercase grade", row(1.0, 1.0, "A"), false},
		{"unknown grade", row(1.0, 1.0, "f"), false},
	}
	c := New(schema.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Clean(context.Background(), scenarioBatch(t, tt.row))
			if err != nil {
				t.Fatalf("failed to clean: %v", err)
			}
			if got := out.Len() == 1; got != tt.keep {
				t.Errorf("expected keep=%v, got %d rows", tt.keep, out.Len())
			}
		})
	}
}

func TestClean_MissingDropColumn(t *testing.T) {
	batch := scenarioBatch(t, row(1.0, 1.0, "a"))
	batch, _ = batch.DropColumns("serving_size")

	_, err := New(schema.Default()).Clean(context.Background(), batch)
	if !errors.IsSchemaError(err) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	e, _ := errors.As(err)
	if missing := e.StringsDetail(errors.DetailMissing); len(missing) != 1 || missing[0] != "serving_size" {
		t.Errorf("unexpected missing columns %v", missing)
	}
}

func TestClean_AuditOnAnyColumn(t *testing.T) {
	audit := &recordingAudit{}
	fixed := time.Date(2024, 3, 5, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	c := New(schema.Default(), WithOutlierAudit(audit), WithClock(func() time.Time { return fixed }))

	// The outlier sits in the first nutrient column only.
	_, err := c.Clean(context.Background(), scenarioBatch(t,
		row(150.0, 10.0, "a"),
		row(10.0, 10.0, "b"),
		row(20.0, 10.0, "c"),
	))
	if err != nil {
		t.Fatalf("failed to clean: %v", err)
	}
	if audit.calls != 1 {
		t.Fatalf("expected 1 audit write, got %d", audit.calls)
	}
	if audit.outliers.Len() != 1 {
		t.Errorf("expected 1 outlier row, got %d", audit.outliers.Len())
	}
	if audit.day.Format("2006-01-02") != "2024-03-06" {
		t.Errorf("expected UTC day, got %s", audit.day)
	}
}

func TestClean_NoAuditWithoutOutliers(t *testing.T) {
	audit := &recordingAudit{}
	c := New(schema.Default(), WithOutlierAudit(audit))
	if _, err := c.Clean(context.Background(), scenarioBatch(t, row(1.0, 2.0, "a"))); err != nil {
		t.Fatalf("failed to clean: %v", err)
	}
	if audit.calls != 0 {
		t.Errorf("expected no audit write, got %d", audit.calls)
	}
}

func TestClean_Options(t *testing.T) {
	c := New(schema.Default(),
		WithDropColumns("serving_size"),
		WithRange(0, 1000),
		WithValidGrades("a", "?"),
	)
	out, err := c.Clean(context.Background(), scenarioBatch(t, row(150.0, 10.0, "?")))
	if err != nil {
		t.Fatalf("failed to clean: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", out.Len())
	}
	if _, ok := out.Column("categories_tags"); !ok {
		t.Error("expected categories_tags to be kept with a custom drop list")
	}
}

func TestStorageAuditSink(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(filepath.Join(dir, "bucket"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	audit := NewStorageAuditSink(store, "", filepath.Join(dir, "work"))
	day := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	c := New(schema.Default(), WithOutlierAudit(audit), WithClock(func() time.Time { return day }))

	ctx := context.Background()
	if _, err := c.Clean(ctx, scenarioBatch(t, row(150.0, 10.0, "a"), row(1.0, 1.0, "a"))); err != nil {
		t.Fatalf("failed to clean: %v", err)
	}

	objectPath := "logs/outliers/2024-03-05.parquet"
	if audit.ObjectPath(day) != objectPath {
		t.Fatalf("unexpected audit path %s", audit.ObjectPath(day))
	}
	local := filepath.Join(dir, "audit.parquet")
	if err := store.Download(ctx, objectPath, local); err != nil {
		t.Fatalf("failed to download audit file: %v", err)
	}
	batch, err := partition.ReadFragment(ctx, local, nil)
	if err != nil {
		t.Fatalf("failed to read audit file: %v", err)
	}
	if batch.Len() != 1 {
		t.Errorf("expected 1 audited row, got %d", batch.Len())
	}
	if _, ok := batch.Column("sugar_100g"); !ok {
		t.Error("expected audit file to carry nutrient columns")
	}
}

func TestLoadDatasetAndWriteFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := storage.NewLocalStorage(filepath.Join(dir, "bucket"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	builder := partition.NewBuilder(filepath.Join(dir, "build"))
	for _, pv := range []types.PartitionValues{
		{Year: "2020", Country: "spain"},
		{Year: "2021", Country: "france"},
	} {
		batch := scenarioBatch(t, row(10.0, 10.0, "a"), row(150.0, 1.0, "b"))
		info, err := builder.Build(ctx, batch, pv)
		if err != nil {
			t.Fatalf("failed to build fragment: %v", err)
		}
		if err := store.Upload(ctx, info.LocalPath, info.ObjectPath("processed")); err != nil {
			t.Fatalf("failed to upload fragment: %v", err)
		}
	}

	batch, err := LoadDataset(ctx, store, "processed", filepath.Join(dir, "work"), 2)
	if err != nil {
		t.Fatalf("failed to load dataset: %v", err)
	}
	if batch.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", batch.Len())
	}
	if batch.Partitions[0] != (types.PartitionValues{Year: "2020", Country: "spain"}) {
		t.Errorf("unexpected first partition %v", batch.Partitions[0])
	}

	out, err := New(schema.Default()).Clean(ctx, batch)
	if err != nil {
		t.Fatalf("failed to clean: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", out.Len())
	}

	path := filepath.Join(dir, "out", "clean.parquet")
	if err := WriteFile(path, out); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	footer, err := partition.ReadFooter(ctx, path)
	if err != nil {
		t.Fatalf("failed to read output footer: %v", err)
	}
	if footer.NumRows != 2 {
		t.Errorf("expected 2 rows on disk, got %d", footer.NumRows)
	}
}

func TestLoadDataset_Empty(t *testing.T) {
	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "bucket"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	if _, err := LoadDataset(context.Background(), store, "processed", t.TempDir(), 1); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}
