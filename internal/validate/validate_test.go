package validate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/internal/ingest"
	"github.com/nutrisage/nutrisage/internal/manifest"
	"github.com/nutrisage/nutrisage/internal/metadata"
	"github.com/nutrisage/nutrisage/internal/partition"
	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/internal/sink"
	"github.com/nutrisage/nutrisage/internal/storage"
	"github.com/nutrisage/nutrisage/pkg/types"
)

type fakeSource struct {
	md   metadata.Metadata
	rows int64
}

func (f fakeSource) Probe(context.Context) (metadata.Metadata, error) { return f.md, nil }
func (f fakeSource) CountRows(context.Context) (int64, error)         { return f.rows, nil }

func goodSummary(contract *schema.Contract) metadata.Summary {
	s := metadata.Summary{
		ColumnTypes:    contract.PhysicalTypes(),
		PartitionTypes: make(map[string]types.PhysicalType),
	}
	for _, p := range contract.PartitionColumns() {
		s.PartitionTypes[p] = types.PhysicalString
	}
	return s
}

func goodFragment(contract *schema.Contract, rows int64) metadata.Fragment {
	f := metadata.Fragment{Path: "processed/year=2020/country=spain/part-a.snappy.parquet", NumRows: rows}
	for _, col := range contract.Columns() {
		f.Schema = append(f.Schema, partition.FieldType{Name: col.Name, Type: col.Kind.Physical()})
	}
	for _, p := range contract.PartitionColumns() {
		f.Schema = append(f.Schema, partition.FieldType{Name: p, Type: types.PhysicalString})
	}
	return f
}

func validationDetails(t *testing.T, err error, code string) *errors.Error {
	t.Helper()
	if !errors.IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	e, _ := errors.As(err)
	if e.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, e.Code, err)
	}
	return e
}

func TestValidate_Summary(t *testing.T) {
	contract := schema.Default()
	res, err := New(contract).Validate(context.Background(), fakeSource{md: goodSummary(contract), rows: 42})
	if err != nil {
		t.Fatalf("failed to validate: %v", err)
	}
	if !res.OK || res.RowCount != 42 || res.Shape != ShapeSummary {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestValidate_SummaryExtraColumn(t *testing.T) {
	contract := schema.Default()
	s := goodSummary(contract)
	s.ColumnTypes["salt_100g"] = types.PhysicalFloat

	_, err := New(contract).Validate(context.Background(), fakeSource{md: s, rows: 10})
	e := validationDetails(t, err, errors.CodeColumnMismatch)
	extra := e.StringsDetail(errors.DetailExtra)
	if len(extra) != 1 || extra[0] != "salt_100g" {
		t.Errorf("expected salt_100g as extra, got %v", extra)
	}
	if len(e.StringsDetail(errors.DetailMissing)) != 0 {
		t.Errorf("expected nothing missing, got %v", e.StringsDetail(errors.DetailMissing))
	}
}

func TestValidate_SummaryMismatches(t *testing.T) {
	contract := schema.Default()

	tests := []struct {
		name   string
		mutate func(*metadata.Summary)
		code   string
		detail string
		want   string
	}{
		{
			name:   "missing column",
			mutate: func(s *metadata.Summary) { delete(s.ColumnTypes, "sugars_100g") },
			code:   errors.CodeColumnMismatch,
			detail: errors.DetailMissing,
			want:   "sugars_100g",
		},
		{
			name:   "missing partition",
			mutate: func(s *metadata.Summary) { delete(s.PartitionTypes, types.PartitionCountry) },
			code:   errors.CodePartitionMismatch,
			detail: errors.DetailMissing,
			want:   types.PartitionCountry,
		},
		{
			name:   "double instead of float",
			mutate: func(s *metadata.Summary) { s.ColumnTypes["fat_100g"] = "double" },
			code:   errors.CodeTypeMismatch,
			detail: errors.DetailTypeErrors,
			want:   "fat_100g: expected float, got double",
		},
		{
			name:   "tags as plain string",
			mutate: func(s *metadata.Summary) { s.ColumnTypes["brands_tags"] = types.PhysicalString },
			code:   errors.CodeTypeMismatch,
			detail: errors.DetailTypeErrors,
			want:   "brands_tags",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := goodSummary(contract)
			tt.mutate(&s)
			_, err := New(contract).Validate(context.Background(), fakeSource{md: s, rows: 1})
			e := validationDetails(t, err, tt.code)
			got := strings.Join(e.StringsDetail(tt.detail), "|")
			if !strings.Contains(got, tt.want) {
				t.Errorf("expected %q in %s, got %q", tt.want, tt.detail, got)
			}
		})
	}
}

func TestValidate_SummaryZeroRows(t *testing.T) {
	contract := schema.Default()
	_, err := New(contract).Validate(context.Background(), fakeSource{md: goodSummary(contract), rows: 0})
	validationDetails(t, err, errors.CodeEmptyDataset)
}

func TestValidate_DetailedZeroRows(t *testing.T) {
	contract := schema.Default()
	d := metadata.Detailed{Fragments: []metadata.Fragment{goodFragment(contract, 0), goodFragment(contract, 0)}}
	_, err := New(contract).Validate(context.Background(), fakeSource{md: d})
	validationDetails(t, err, errors.CodeEmptyDataset)
}

func TestValidate_DetailedNoSchema(t *testing.T) {
	contract := schema.Default()
	for _, d := range []metadata.Detailed{
		{},
		{Fragments: []metadata.Fragment{{Path: "processed/x.parquet"}}},
	} {
		_, err := New(contract).Validate(context.Background(), fakeSource{md: d})
		validationDetails(t, err, errors.CodeNoSchema)
	}
}

func TestValidate_DetailedSkipsUnreadableFragments(t *testing.T) {
	contract := schema.Default()
	d := metadata.Detailed{Fragments: []metadata.Fragment{
		{Path: "processed/broken.parquet"},
		goodFragment(contract, 5),
		goodFragment(contract, 7),
	}}
	res, err := New(contract).Validate(context.Background(), fakeSource{md: d})
	if err != nil {
		t.Fatalf("failed to validate: %v", err)
	}
	if res.RowCount != 12 || res.Shape != ShapeDetailed {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestValidate_DetailedMissingPartitionColumn(t *testing.T) {
	contract := schema.Default()
	f := goodFragment(contract, 3)
	f.Schema = f.Schema[:len(f.Schema)-1]
	_, err := New(contract).Validate(context.Background(), fakeSource{md: metadata.Detailed{Fragments: []metadata.Fragment{f}}})
	e := validationDetails(t, err, errors.CodeColumnMismatch)
	if got := e.StringsDetail(errors.DetailMissing); len(got) != 1 || got[0] != types.PartitionCountry {
		t.Errorf("expected country missing, got %v", got)
	}
}

const products = `{"product_name":"Muesli","created_t":1609459200,"countries_tags":["en:france"],"nutriments":{"sugars_100g":"12.5"},"nutrition_grade_fr":"b"}
{"product_name":"Cola","created_t":1577836800,"countries_tags":["en:spain"],"nutriments":{"sugars_100g":10.6},"nutrition_grade_fr":"e"}
{"product_name":"Pain","created_t":1609459300,"countries_tags":["fr:france"],"additives_n":2.5}
{"product_name":"Mystery"}
{"product_name":"Tofu","created_t":"1300000000","countries_tags":"Deutschland","brands_tags":["a","b"]}
`

func TestIngestThenValidateDetailed(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	contract := schema.Default()

	store, err := storage.NewLocalStorage(filepath.Join(dir, "proc"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	ds := sink.NewDatasetSink(store, nil, contract, filepath.Join(dir, "work"))
	report, err := ingest.New(contract, ds, ingest.WithChunkRows(2)).Run(ctx, strings.NewReader(products))
	if err != nil {
		t.Fatalf("failed to ingest: %v", err)
	}

	reader := metadata.NewReader(store, ds.Prefix(), filepath.Join(dir, "downloads"))
	res, err := New(contract).Validate(ctx, reader)
	if err != nil {
		t.Fatalf("failed to validate: %v", err)
	}
	if res.Shape != ShapeDetailed {
		t.Errorf("expected detailed shape, got %s", res.Shape)
	}
	if res.RowCount != report.Rows || res.RowCount != 5 {
		t.Errorf("expected %d rows, got %d", report.Rows, res.RowCount)
	}
}

func TestIngestThenValidateSummary(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	contract := schema.Default()

	store, err := storage.NewLocalStorage(filepath.Join(dir, "proc"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	catalog, err := manifest.NewCatalog(filepath.Join(dir, "manifest.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	defer catalog.Close()

	ds := sink.NewDatasetSink(store, catalog, contract, filepath.Join(dir, "work"))
	if _, err := ingest.New(contract, ds).Run(ctx, strings.NewReader(products)); err != nil {
		t.Fatalf("failed to ingest: %v", err)
	}
	if err := ds.Close(ctx); err != nil {
		t.Fatalf("failed to close sink: %v", err)
	}

	res, err := New(contract).Validate(ctx, metadata.NewReader(store, ds.Prefix(), filepath.Join(dir, "downloads")))
	if err != nil {
		t.Fatalf("failed to validate: %v", err)
	}
	if res.Shape != ShapeSummary || res.RowCount != 5 {
		t.Errorf("unexpected result %+v", res)
	}
}
