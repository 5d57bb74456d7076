// Package clean prepares a materialised product table for training: it
// drops unused columns, removes nutrient outliers and keeps rows with a
// valid grade.
package clean

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// DefaultDropColumns are removed before outlier filtering.
var DefaultDropColumns = []string{
	"categories_tags", "brands_tags", "countries_tags",
	"serving_size", "created_t", "energy_100g", "fiber_100g",
}

// DefaultValidGrades are the accepted target labels.
var DefaultValidGrades = []string{"a", "b", "c", "d", "e"}

// AuditSink receives the rows removed as outliers.
type AuditSink interface {
	WriteOutliers(ctx context.Context, day time.Time, outliers *types.Batch) (string, error)
}

// Cleaner filters a batch. It holds no per-call state and is safe for
// concurrent use.
type Cleaner struct {
	dropColumns []string
	target      string
	suffix      string
	grades      map[string]bool
	min, max    float64
	audit       AuditSink
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithDropColumns replaces the drop list.
func WithDropColumns(names ...string) Option {
	return func(c *Cleaner) { c.dropColumns = append([]string(nil), names...) }
}

// WithTargetColumn sets the grade column.
func WithTargetColumn(name string) Option {
	return func(c *Cleaner) { c.target = name }
}

// WithValidGrades replaces the accepted grades.
func WithValidGrades(grades ...string) Option {
	return func(c *Cleaner) {
		c.grades = make(map[string]bool, len(grades))
		for _, g := range grades {
			c.grades[g] = true
		}
	}
}

// WithRange sets the inclusive range of nutrient values.
func WithRange(lo, hi float64) Option {
	return func(c *Cleaner) { c.min, c.max = lo, hi }
}

// WithOutlierAudit writes removed outlier rows to sink.
func WithOutlierAudit(sink AuditSink) Option {
	return func(c *Cleaner) { c.audit = sink }
}

// WithClock sets the clock used to date audit files.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cleaner) { c.logger = l }
}

// New creates a cleaner with the defaults for contract.
func New(contract *schema.Contract, opts ...Option) *Cleaner {
	c := &Cleaner{
		dropColumns: append([]string(nil), DefaultDropColumns...),
		target:      contract.TargetLabelColumn().Name,
		suffix:      contract.NutrientSuffix(),
		min:         0,
		max:         100,
		now:         time.Now,
		logger:      slog.Default(),
	}
	WithValidGrades(DefaultValidGrades...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clean returns a new batch. It fails with a SchemaError when a drop column
// or the target column is absent from batch.
func (c *Cleaner) Clean(ctx context.Context, batch *types.Batch) (*types.Batch, error) {
	kept, missing := batch.DropColumns(c.dropColumns...)
	if len(missing) > 0 {
		return nil, errors.NewSchemaError("columns to drop are missing: "+strings.Join(missing, ", "), missing)
	}
	target, ok := kept.Column(c.target)
	if !ok {
		return nil, errors.NewSchemaError("target column "+c.target+" is missing", []string{c.target})
	}

	n := kept.Len()
	outlier := make([]bool, n)
	perColumn := make(map[string]int)
	for i := range kept.Columns {
		vec := &kept.Columns[i]
		if !strings.HasSuffix(vec.Column.Name, c.suffix) {
			continue
		}
		for row := 0; row < n; row++ {
			v, ok := vec.Number(row)
			if !ok {
				continue
			}
			if v < c.min || v > c.max {
				if !outlier[row] {
					perColumn[vec.Column.Name]++
				}
				outlier[row] = true
			}
		}
	}

	keep := make([]bool, n)
	outliers := 0
	for row := 0; row < n; row++ {
		if outlier[row] {
			outliers++
			continue
		}
		if s, ok := target.Value(row).(string); ok && c.grades[s] {
			keep[row] = true
		}
	}

	if outliers > 0 && c.audit != nil {
		day := c.now().UTC()
		objectPath, err := c.audit.WriteOutliers(ctx, day, kept.Filter(outlier))
		if err != nil {
			return nil, err
		}
		c.logger.Info("wrote outlier audit", "rows", outliers, "object", objectPath)
	}

	out := kept.Filter(keep)
	c.logger.Info("cleaned batch",
		"rows_in", n,
		"rows_out", out.Len(),
		"outliers", outliers,
		"outliers_by_column", summarize(perColumn))
	return out, nil
}

func summarize(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strconv.Itoa(counts[name])
	}
	return strings.Join(parts, ",")
}
