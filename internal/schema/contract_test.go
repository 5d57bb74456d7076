package schema

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/pkg/types"
)

func TestDefault_CuratedColumns(t *testing.T) {
	c := Default()

	if c.Len() != 21 {
		t.Fatalf("expected 21 columns, got %d", c.Len())
	}
	if got := c.TargetLabelColumn(); got.Name != "nutrition_grade_fr" || got.Kind != types.KindString {
		t.Errorf("unexpected target column: %+v", got)
	}
	if len(c.PredictorColumns()) != c.Len()-1 {
		t.Errorf("predictors should exclude only the target")
	}
	if !reflect.DeepEqual(c.JSONPath("sugars_100g"), []string{"nutriments", "sugars_100g"}) {
		t.Errorf("nutrient path mismatch: %v", c.JSONPath("sugars_100g"))
	}
	if !reflect.DeepEqual(c.JSONPath("created_t"), []string{"created_t"}) {
		t.Errorf("top-level path mismatch: %v", c.JSONPath("created_t"))
	}
	if k, _ := c.TargetKind("brands_tags"); k != types.KindStringList {
		t.Errorf("expected list kind for brands_tags, got %s", k)
	}
	if k, _ := c.TargetKind("created_t"); k != types.KindInt64 {
		t.Errorf("expected int64 kind for created_t, got %s", k)
	}
	if !reflect.DeepEqual(c.PartitionColumns(), []string{"year", "country"}) {
		t.Errorf("unexpected partition columns: %v", c.PartitionColumns())
	}
	if c.JSONPath("does_not_exist") != nil {
		t.Error("expected nil path for unknown column")
	}
}

func TestContract_ColumnsAreCopies(t *testing.T) {
	c := Default()
	cols := c.Columns()
	cols[0].Name = "mutated"
	cols[0].Path[0] = "mutated"

	if c.Columns()[0].Name == "mutated" || c.JSONPath("energy_100g")[0] == "mutated" {
		t.Error("contract must not be mutable through returned columns")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		code string
	}{
		{"empty document", "", errors.CodeEmptyDefinition},
		{"no columns", "version: 1\ncolumns: []\n", errors.CodeEmptyDefinition},
		{"duplicate", "columns:\n  - {name: a, kind: string}\n  - {name: a, kind: string}\n  - {name: nutrition_grade_fr, kind: string}\n", errors.CodeDuplicateColumn},
		{"unknown kind", "columns:\n  - {name: a, kind: decimal}\n  - {name: nutrition_grade_fr, kind: string}\n", errors.CodeUnknownKind},
		{"missing kind", "columns:\n  - a\n  - {name: nutrition_grade_fr, kind: string}\n", errors.CodeUnknownKind},
		{"missing target", "columns:\n  - {name: a, kind: string}\n", errors.CodeMissingTarget},
		{"partition collision", "columns:\n  - {name: year, kind: string}\n  - {name: nutrition_grade_fr, kind: string}\n", errors.CodeDefinitionFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsConfigError(err) {
				t.Errorf("expected config error, got %v", err)
			}
			if errors.GetCode(err) != tt.code {
				t.Errorf("expected code %s, got %s (%v)", tt.code, errors.GetCode(err), err)
			}
		})
	}
}

func TestLoad_BareNamesWithKinds(t *testing.T) {
	def := `
target: grade
columns: [sugar_100g, grade, tags]
kinds:
  sugar_100g: float32
  grade: string
  tags: list[string]
`
	c, err := Load(strings.NewReader(def))
	if err != nil {
		t.Fatalf("failed to load definition: %v", err)
	}
	if !reflect.DeepEqual(c.Names(), []string{"sugar_100g", "grade", "tags"}) {
		t.Errorf("unexpected order: %v", c.Names())
	}
	if len(c.NutrientColumns()) != 1 {
		t.Errorf("expected one nutrient column, got %d", len(c.NutrientColumns()))
	}
	if c.PhysicalTypes()["tags"] != types.PhysicalStringList {
		t.Errorf("unexpected physical type: %s", c.PhysicalTypes()["tags"])
	}
}

func TestLoadFile_JSONWithExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	body := `{"version": 2, "columns": [
		{"name": "kcal", "kind": "float32", "path": ["nutriments", "energy-kcal_100g"]},
		{"name": "nutrition_grade_fr", "kind": "string"}
	]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load definition: %v", err)
	}
	if c.Version() != 2 {
		t.Errorf("expected version 2, got %d", c.Version())
	}
	if !reflect.DeepEqual(c.JSONPath("kcal"), []string{"nutriments", "energy-kcal_100g"}) {
		t.Errorf("explicit path not honoured: %v", c.JSONPath("kcal"))
	}
}
