package types

import (
	"reflect"
	"testing"
)

func testColumns() []Column {
	return []Column{
		{Name: "sugars_100g", Path: []string{"nutriments", "sugars_100g"}, Kind: KindFloat32},
		{Name: "additives_n", Path: []string{"additives_n"}, Kind: KindInt64},
		{Name: "product_name", Path: []string{"product_name"}, Kind: KindString},
		{Name: "brands_tags", Path: []string{"brands_tags"}, Kind: KindStringList},
	}
}

func TestBatch_AppendRowAndValues(t *testing.T) {
	b := NewBatch(testColumns(), 2)
	if err := b.AppendRow([]any{float32(1.5), int64(3), "pasta", []string{"barilla"}}, PartitionValues{Year: "2020", Country: "italy"}); err != nil {
		t.Fatalf("failed to append row: %v", err)
	}
	if err := b.AppendRow([]any{nil, nil, nil, nil}, Unknown()); err != nil {
		t.Fatalf("failed to append row: %v", err)
	}

	if b.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", b.Len())
	}
	sugar, _ := b.Column("sugars_100g")
	if v := sugar.Value(0); v != float32(1.5) {
		t.Errorf("expected 1.5, got %v", v)
	}
	if !sugar.IsNull(1) {
		t.Error("expected null sugar in row 1")
	}
	brands, _ := b.Column("brands_tags")
	if brands.IsNull(1) {
		t.Error("list cells must never be null")
	}
	if got := brands.Value(1).([]string); len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}

	counts := b.NullCounts()
	if counts["sugars_100g"] != 1 || counts["brands_tags"] != 0 {
		t.Errorf("unexpected null counts: %v", counts)
	}
}

func TestBatch_AppendRowWidthMismatch(t *testing.T) {
	b := NewBatch(testColumns(), 1)
	if err := b.AppendRow([]any{nil}, Unknown()); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestBatch_FilterAndDrop(t *testing.T) {
	b := NewBatch(testColumns(), 3)
	for i := 0; i < 3; i++ {
		if err := b.AppendRow([]any{float32(i), int64(i), "p", nil}, Unknown()); err != nil {
			t.Fatalf("failed to append row: %v", err)
		}
	}

	kept := b.Filter([]bool{true, false, true})
	if kept.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", kept.Len())
	}
	ints, _ := kept.Column("additives_n")
	if !reflect.DeepEqual(ints.Ints, []int64{0, 2}) {
		t.Errorf("unexpected ints after filter: %v", ints.Ints)
	}
	if len(kept.Partitions) != 2 {
		t.Errorf("expected partitions to follow filter, got %d", len(kept.Partitions))
	}

	dropped, missing := b.DropColumns("product_name", "not_there")
	if !reflect.DeepEqual(missing, []string{"not_there"}) {
		t.Errorf("unexpected missing list: %v", missing)
	}
	if !reflect.DeepEqual(dropped.ColumnNames(), []string{"sugars_100g", "additives_n", "brands_tags"}) {
		t.Errorf("unexpected columns after drop: %v", dropped.ColumnNames())
	}
}

func TestBatch_SplitByPartition(t *testing.T) {
	b := NewBatch(testColumns(), 4)
	parts := []PartitionValues{
		{Year: "2021", Country: "france"},
		{Year: "2019", Country: "spain"},
		{Year: "2021", Country: "france"},
		{Year: "2019", Country: "belgium"},
	}
	for i, pv := range parts {
		if err := b.AppendRow([]any{float32(i), nil, nil, nil}, pv); err != nil {
			t.Fatalf("failed to append row: %v", err)
		}
	}

	groups := b.SplitByPartition()
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	wantOrder := []string{"year=2019/country=belgium", "year=2019/country=spain", "year=2021/country=france"}
	for i, g := range groups {
		if g.Values.Path() != wantOrder[i] {
			t.Errorf("group %d: expected %s, got %s", i, wantOrder[i], g.Values.Path())
		}
	}
	france := groups[2].Batch
	sugar, _ := france.Column("sugars_100g")
	if !reflect.DeepEqual(sugar.Floats, []float32{0, 2}) {
		t.Errorf("expected row order preserved, got %v", sugar.Floats)
	}
}

func TestParsePartitionPath(t *testing.T) {
	pv, ok := ParsePartitionPath("processed/year=2020/country=united-states/part-x.snappy.parquet")
	if !ok {
		t.Fatal("expected partition values to be found")
	}
	if pv.Year != "2020" || pv.Country != "united-states" {
		t.Errorf("unexpected values: %+v", pv)
	}

	if _, ok := ParsePartitionPath("processed/part-x.parquet"); ok {
		t.Error("expected no partition values")
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		phys PhysicalType
	}{
		{"float32", KindFloat32, PhysicalFloat},
		{"Int64", KindInt64, PhysicalBigint},
		{"string", KindString, PhysicalString},
		{"list[string]", KindStringList, PhysicalStringList},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", tt.in, err)
		}
		if got != tt.want || got.Physical() != tt.phys {
			t.Errorf("ParseKind(%q) = %s/%s, want %s/%s", tt.in, got, got.Physical(), tt.want, tt.phys)
		}
	}
	if _, err := ParseKind("decimal"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestConcat(t *testing.T) {
	a := NewBatch(testColumns(), 1)
	if err := a.AppendRow([]any{float32(1), int64(1), "a", []string{"x"}}, PartitionValues{Year: "2020", Country: "italy"}); err != nil {
		t.Fatalf("failed to append row: %v", err)
	}
	b := NewBatch(testColumns(), 2)
	for i := 0; i < 2; i++ {
		if err := b.AppendRow([]any{nil, int64(2 + i), "b", nil}, Unknown()); err != nil {
			t.Fatalf("failed to append row: %v", err)
		}
	}
	b.Partitions = nil

	out, err := Concat(a, b)
	if err != nil {
		t.Fatalf("failed to concat: %v", err)
	}
	if out.Len() != 3 || len(out.Partitions) != 3 {
		t.Fatalf("expected 3 rows and partitions, got %d/%d", out.Len(), len(out.Partitions))
	}
	if out.Partitions[2] != Unknown() {
		t.Errorf("expected unknown partition for untagged rows, got %v", out.Partitions[2])
	}
	ints, _ := out.Column("additives_n")
	if ints.Value(2) != int64(3) {
		t.Errorf("unexpected value %v", ints.Value(2))
	}
	sugar, _ := out.Column("sugars_100g")
	if !sugar.IsNull(1) || sugar.Value(0) != float32(1) {
		t.Errorf("unexpected sugar values")
	}

	other := NewBatch(testColumns()[:2], 0)
	if _, err := Concat(a, other); err == nil {
		t.Error("expected error for mismatched columns")
	}
	if empty, err := Concat(); err != nil || empty.Len() != 0 {
		t.Errorf("expected empty batch, got %v / %v", empty, err)
	}
}
