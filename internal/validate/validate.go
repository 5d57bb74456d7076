// Package validate checks the metadata of a written dataset against the
// schema contract.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/internal/metadata"
	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// Source supplies dataset metadata. *metadata.Reader implements it.
type Source interface {
	Probe(ctx context.Context) (metadata.Metadata, error)
	CountRows(ctx context.Context) (int64, error)
}

// Shape names the metadata variant a result was derived from.
type Shape string

const (
	ShapeSummary  Shape = "summary"
	ShapeDetailed Shape = "detailed"
)

// Result is a successful validation.
type Result struct {
	RowCount int64
	Shape    Shape
	OK       bool
}

// Validator compares dataset metadata with a contract.
type Validator struct {
	contract *schema.Contract
	logger   *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a validator for contract.
func New(contract *schema.Contract, opts ...Option) *Validator {
	v := &Validator{contract: contract, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate probes src and checks whichever metadata shape it offers. A
// mismatch or an empty dataset is reported as a ValidationError.
func (v *Validator) Validate(ctx context.Context, src Source) (*Result, error) {
	md, err := src.Probe(ctx)
	if err != nil {
		return nil, err
	}

	switch m := md.(type) {
	case metadata.Summary:
		if err := v.CheckSummary(m); err != nil {
			return nil, err
		}
		rows, err := src.CountRows(ctx)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, errors.NewValidationError(errors.CodeEmptyDataset, "dataset has no rows")
		}
		v.logger.Info("dataset valid", "shape", ShapeSummary, "rows", rows)
		return &Result{RowCount: rows, Shape: ShapeSummary, OK: true}, nil

	case metadata.Detailed:
		rows, err := v.CheckDetailed(m)
		if err != nil {
			return nil, err
		}
		v.logger.Info("dataset valid", "shape", ShapeDetailed, "rows", rows, "fragments", len(m.Fragments))
		return &Result{RowCount: rows, Shape: ShapeDetailed, OK: true}, nil

	default:
		return nil, errors.NewInternalError(fmt.Sprintf("unsupported metadata %T", md), nil)
	}
}

// CheckSummary verifies the column set, the partition set and every column
// type of summary metadata.
func (v *Validator) CheckSummary(s metadata.Summary) error {
	if err := compareSets(errors.CodeColumnMismatch, "column", v.contract.Names(), keys(s.ColumnTypes)); err != nil {
		return err
	}
	if err := compareSets(errors.CodePartitionMismatch, "partition", v.contract.PartitionColumns(), keys(s.PartitionTypes)); err != nil {
		return err
	}

	actual := make(map[string]types.PhysicalType, len(s.ColumnTypes)+len(s.PartitionTypes))
	for k, t := range s.ColumnTypes {
		actual[k] = t
	}
	for k, t := range s.PartitionTypes {
		actual[k] = t
	}
	return compareTypes(v.expectedTypes(), actual)
}

// CheckDetailed verifies the representative schema of detailed metadata
// and returns the total row count. The first fragment with a readable
// schema is representative.
func (v *Validator) CheckDetailed(d metadata.Detailed) (int64, error) {
	var total int64
	var representative []string
	actual := make(map[string]types.PhysicalType)
	found := false
	for _, f := range d.Fragments {
		total += f.NumRows
		if found || f.Schema == nil {
			continue
		}
		found = true
		for _, field := range f.Schema {
			representative = append(representative, field.Name)
			actual[field.Name] = field.Type
		}
	}
	if !found {
		return 0, errors.NewValidationError(errors.CodeNoSchema,
			fmt.Sprintf("no fragment schema found among %d fragments", len(d.Fragments)))
	}

	expected := append(v.contract.Names(), v.contract.PartitionColumns()...)
	if err := compareSets(errors.CodeColumnMismatch, "column", expected, representative); err != nil {
		return 0, err
	}
	if err := compareTypes(v.expectedTypes(), actual); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, errors.NewValidationError(errors.CodeEmptyDataset, "dataset has no rows")
	}
	return total, nil
}

func (v *Validator) expectedTypes() map[string]types.PhysicalType {
	expected := v.contract.PhysicalTypes()
	for _, p := range v.contract.PartitionColumns() {
		expected[p] = types.PhysicalString
	}
	return expected
}

func compareSets(code, what string, expected, actual []string) error {
	want := make(map[string]bool, len(expected))
	for _, n := range expected {
		want[n] = true
	}
	have := make(map[string]bool, len(actual))
	for _, n := range actual {
		have[n] = true
	}

	var missing, extra []string
	for n := range want {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	for n := range have {
		if !want[n] {
			extra = append(extra, n)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(extra, ", "))
	}
	return errors.NewValidationError(code, fmt.Sprintf("%s mismatch: %s", what, strings.Join(parts, "; "))).
		WithDetails(map[string]interface{}{
			errors.DetailMissing: missing,
			errors.DetailExtra:   extra,
		})
}

// compareTypes checks every expected column present in actual.
func compareTypes(expected, actual map[string]types.PhysicalType) error {
	var diffs []string
	for name, want := range expected {
		got, ok := actual[name]
		if !ok || got == want {
			continue
		}
		diffs = append(diffs, fmt.Sprintf("%s: expected %s, got %s", name, want, got))
	}
	if len(diffs) == 0 {
		return nil
	}
	sort.Strings(diffs)
	return errors.NewValidationError(errors.CodeTypeMismatch, "type mismatch: "+strings.Join(diffs, "; ")).
		WithDetails(map[string]interface{}{errors.DetailTypeErrors: diffs})
}

func keys(m map[string]types.PhysicalType) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
