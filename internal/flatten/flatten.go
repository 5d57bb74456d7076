// Package flatten extracts canonical columns from raw product records.
package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// Flattener turns decoded JSON objects into FlatRows using the access paths
// of a schema contract. It holds no mutable state and is safe for
// concurrent use.
type Flattener struct {
	names []string
	paths [][]string
}

// New creates a flattener for contract.
func New(contract *schema.Contract) *Flattener {
	cols := contract.Columns()
	f := &Flattener{
		names: make([]string, len(cols)),
		paths: make([][]string, len(cols)),
	}
	for i, c := range cols {
		f.names[i] = c.Name
		f.paths[i] = c.Path
	}
	return f
}

// Flatten extracts one value per column. A path that hits a non-object node
// or an absent key yields nil for that column only.
func (f *Flattener) Flatten(obj map[string]any) types.FlatRow {
	values := make([]any, len(f.paths))
	for i, path := range f.paths {
		values[i] = lookup(obj, path)
	}
	return types.NewFlatRow(f.names, values)
}

// Decode parses one JSON-lines record. The line must hold exactly one
// object, optionally surrounded by whitespace. Numbers are kept as json.Number so
// that large integer timestamps are not rounded through float64.
func Decode(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("flatten: record is not a JSON object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("flatten: trailing data after JSON object")
	}
	return obj, nil
}

// FlattenJSON decodes line and flattens it. The decoded object is returned
// as well since partition values are derived from the raw record.
func (f *Flattener) FlattenJSON(line []byte) (types.FlatRow, map[string]any, error) {
	obj, err := Decode(line)
	if err != nil {
		return types.FlatRow{}, nil, err
	}
	return f.Flatten(obj), obj, nil
}

func lookup(obj map[string]any, path []string) any {
	var node any = obj
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok || m == nil {
			return nil
		}
		node, ok = m[key]
		if !ok {
			return nil
		}
	}
	return node
}
