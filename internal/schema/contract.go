// Package schema provides the schema contract: the curated, ordered column
// set extracted from raw product records, each column's JSON access path
// and target kind, and the partition columns derived from every record.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/pkg/types"
	"gopkg.in/yaml.v3"
)

// DefaultTarget is the conventional target-label column.
const DefaultTarget = "nutrition_grade_fr"

// DefaultNutrientSuffix marks per-100g nutrient columns, which live under
// the "nutriments" object of a raw record.
const DefaultNutrientSuffix = "_100g"

const nutrimentsKey = "nutriments"

//go:embed default.yaml
var defaultDefinition []byte

// Definition is the external, versioned description of the column set.
type Definition struct {
	Version        int               `json:"version" yaml:"version"`
	Target         string            `json:"target" yaml:"target"`
	NutrientSuffix string            `json:"nutrient_suffix" yaml:"nutrient_suffix"`
	Columns        []ColumnDef       `json:"columns" yaml:"columns"`
	Kinds          map[string]string `json:"kinds" yaml:"kinds"`
}

// ColumnDef is one entry of a definition. In YAML a bare string is accepted
// as a column name whose kind is looked up in Definition.Kinds.
type ColumnDef struct {
	Name string   `json:"name" yaml:"name"`
	Kind string   `json:"kind" yaml:"kind"`
	Path []string `json:"path,omitempty" yaml:"path,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ColumnDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Name = node.Value
		return nil
	}
	type plain ColumnDef
	return node.Decode((*plain)(c))
}

// Contract is the immutable schema contract. It is safe for concurrent use.
type Contract struct {
	version        int
	target         string
	nutrientSuffix string
	columns        []types.Column
	index          map[string]int
}

// Default returns the contract built from the embedded curated definition.
func Default() *Contract {
	c, err := Load(strings.NewReader(string(defaultDefinition)))
	if err != nil {
		panic(fmt.Sprintf("schema: embedded definition is invalid: %v", err))
	}
	return c
}

// LoadFile loads a YAML or JSON definition from disk.
func LoadFile(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeDefinitionFormat, "failed to read schema definition", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, errors.WrapConfigError(errors.CodeDefinitionFormat, "failed to parse JSON schema definition", err)
		}
		return NewContract(def)
	}
	return Load(strings.NewReader(string(data)))
}

// Load parses a YAML definition.
func Load(r io.Reader) (*Contract, error) {
	var def Definition
	if err := yaml.NewDecoder(r).Decode(&def); err != nil {
		if err == io.EOF {
			return nil, errors.NewConfigError(errors.CodeEmptyDefinition, "schema definition is empty")
		}
		return nil, errors.WrapConfigError(errors.CodeDefinitionFormat, "failed to parse schema definition", err)
	}
	return NewContract(def)
}

// NewContract validates def and builds a contract from it.
func NewContract(def Definition) (*Contract, error) {
	if len(def.Columns) == 0 {
		return nil, errors.NewConfigError(errors.CodeEmptyDefinition, "schema definition has no columns")
	}

	c := &Contract{
		version:        def.Version,
		target:         def.Target,
		nutrientSuffix: def.NutrientSuffix,
		columns:        make([]types.Column, 0, len(def.Columns)),
		index:          make(map[string]int, len(def.Columns)),
	}
	if c.target == "" {
		c.target = DefaultTarget
	}
	if c.nutrientSuffix == "" {
		c.nutrientSuffix = DefaultNutrientSuffix
	}

	for i, cd := range def.Columns {
		name := strings.TrimSpace(cd.Name)
		if name == "" {
			return nil, errors.NewConfigError(errors.CodeDefinitionFormat,
				fmt.Sprintf("column %d has an empty name", i))
		}
		if name == types.PartitionYear || name == types.PartitionCountry {
			return nil, errors.NewConfigError(errors.CodeDefinitionFormat,
				fmt.Sprintf("column %q collides with a partition column", name))
		}
		if _, dup := c.index[name]; dup {
			return nil, errors.NewConfigError(errors.CodeDuplicateColumn,
				fmt.Sprintf("duplicate column %q", name))
		}

		kindName := cd.Kind
		if kindName == "" {
			kindName = def.Kinds[name]
		}
		kind, err := types.ParseKind(kindName)
		if err != nil {
			return nil, errors.WrapConfigError(errors.CodeUnknownKind,
				fmt.Sprintf("column %q", name), err)
		}

		path := cd.Path
		if len(path) == 0 {
			path = c.defaultPath(name)
		}

		c.index[name] = len(c.columns)
		c.columns = append(c.columns, types.Column{Name: name, Path: append([]string(nil), path...), Kind: kind})
	}

	if _, ok := c.index[c.target]; !ok {
		return nil, errors.NewConfigError(errors.CodeMissingTarget,
			fmt.Sprintf("target column %q is not in the column list", c.target))
	}
	return c, nil
}

func (c *Contract) defaultPath(name string) []string {
	if strings.HasSuffix(name, c.nutrientSuffix) {
		return []string{nutrimentsKey, name}
	}
	return []string{name}
}

// Version returns the definition version.
func (c *Contract) Version() int { return c.version }

// NutrientSuffix returns the suffix identifying nutrient columns.
func (c *Contract) NutrientSuffix() string { return c.nutrientSuffix }

// Len returns the number of columns.
func (c *Contract) Len() int { return len(c.columns) }

// Columns returns the ordered column set.
func (c *Contract) Columns() []types.Column {
	out := make([]types.Column, len(c.columns))
	for i, col := range c.columns {
		out[i] = col.Clone()
	}
	return out
}

// Names returns the ordered column names.
func (c *Contract) Names() []string {
	out := make([]string, len(c.columns))
	for i, col := range c.columns {
		out[i] = col.Name
	}
	return out
}

// Column looks up a column by name.
func (c *Contract) Column(name string) (types.Column, bool) {
	i, ok := c.index[name]
	if !ok {
		return types.Column{}, false
	}
	return c.columns[i].Clone(), true
}

// TargetLabelColumn returns the target-label column.
func (c *Contract) TargetLabelColumn() types.Column {
	return c.columns[c.index[c.target]].Clone()
}

// PredictorColumns returns every column except the target, in order.
func (c *Contract) PredictorColumns() []types.Column {
	out := make([]types.Column, 0, len(c.columns)-1)
	for _, col := range c.columns {
		if col.Name != c.target {
			out = append(out, col.Clone())
		}
	}
	return out
}

// NutrientColumns returns the columns carrying the nutrient suffix.
func (c *Contract) NutrientColumns() []types.Column {
	var out []types.Column
	for _, col := range c.columns {
		if strings.HasSuffix(col.Name, c.nutrientSuffix) {
			out = append(out, col.Clone())
		}
	}
	return out
}

// JSONPath returns the access path of the named column, or nil when the
// column is not part of the contract.
func (c *Contract) JSONPath(name string) []string {
	col, ok := c.Column(name)
	if !ok {
		return nil
	}
	return col.Path
}

// TargetKind returns the kind of the named column.
func (c *Contract) TargetKind(name string) (types.Kind, bool) {
	i, ok := c.index[name]
	if !ok {
		return "", false
	}
	return c.columns[i].Kind, true
}

// PartitionColumns returns the derived partition column names.
func (c *Contract) PartitionColumns() []string {
	return types.PartitionColumns()
}

// PhysicalTypes returns the expected physical type of every column.
func (c *Contract) PhysicalTypes() map[string]types.PhysicalType {
	out := make(map[string]types.PhysicalType, len(c.columns))
	for _, col := range c.columns {
		out[col.Name] = col.Kind.Physical()
	}
	return out
}
