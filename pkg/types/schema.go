package types

import (
	"fmt"
	"strings"
)

// Kind is the target scalar kind of a canonical column.
type Kind string

const (
	KindFloat32    Kind = "float32"
	KindInt64      Kind = "nullable-int64"
	KindString     Kind = "string"
	KindStringList Kind = "list-of-string"
)

// PhysicalType is the column type name as reported by dataset metadata
// (Glue/Athena vocabulary).
type PhysicalType string

const (
	PhysicalFloat      PhysicalType = "float"
	PhysicalBigint     PhysicalType = "bigint"
	PhysicalString     PhysicalType = "string"
	PhysicalStringList PhysicalType = "array<string>"
)

// ParseKind parses a kind name. The pandas spellings used by older schema
// definitions ("Int64", "list[string]") are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.TrimSpace(s) {
	case "float32", "float":
		return KindFloat32, nil
	case "nullable-int64", "Int64", "int64":
		return KindInt64, nil
	case "string", "str":
		return KindString, nil
	case "list-of-string", "list[string]", "list<string>":
		return KindStringList, nil
	default:
		return "", fmt.Errorf("unknown column kind %q", s)
	}
}

// Physical returns the physical type a column of this kind is stored as.
func (k Kind) Physical() PhysicalType {
	switch k {
	case KindFloat32:
		return PhysicalFloat
	case KindInt64:
		return PhysicalBigint
	case KindStringList:
		return PhysicalStringList
	default:
		return PhysicalString
	}
}

// Column is a canonical column: its name, the JSON access path used to
// extract it from a raw record, and its target kind.
type Column struct {
	Name string   `json:"name" yaml:"name"`
	Path []string `json:"path" yaml:"path"`
	Kind Kind     `json:"kind" yaml:"kind"`
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	path := make([]string, len(c.Path))
	copy(path, c.Path)
	c.Path = path
	return c
}
