// Package metadata reads the schema and row counts of a written dataset
// without reading row data.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nutrisage/nutrisage/internal/manifest"
	"github.com/nutrisage/nutrisage/internal/partition"
	"github.com/nutrisage/nutrisage/internal/storage"
	"github.com/nutrisage/nutrisage/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Metadata is either Summary or Detailed.
type Metadata interface {
	isMetadata()
}

// Summary is dataset-level metadata: column and partition types, no row
// counts.
type Summary struct {
	ColumnTypes    map[string]types.PhysicalType
	PartitionTypes map[string]types.PhysicalType
}

// Detailed is per-fragment metadata.
type Detailed struct {
	Fragments []Fragment
}

// Fragment describes one data file. Schema is nil when the footer could not
// be read.
type Fragment struct {
	Path    string
	NumRows int64
	Schema  []partition.FieldType
}

func (Summary) isMetadata()  {}
func (Detailed) isMetadata() {}

// TotalRows sums the fragment row counts.
func (d Detailed) TotalRows() int64 {
	var n int64
	for _, f := range d.Fragments {
		n += f.NumRows
	}
	return n
}

// Reader probes a dataset below prefix in store.
type Reader struct {
	store       storage.ObjectStorage
	prefix      string
	workDir     string
	concurrency int
	logger      *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithConcurrency sets the number of footers read in parallel.
func WithConcurrency(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// NewReader creates a reader. workDir holds the catalog snapshot while it
// is inspected; it is removed afterwards.
func NewReader(store storage.ObjectStorage, prefix, workDir string, opts ...Option) *Reader {
	r := &Reader{
		store:       store,
		prefix:      prefix,
		workDir:     workDir,
		concurrency: 8,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Probe returns Summary metadata when the dataset carries a catalog
// snapshot with a table definition, and Detailed metadata otherwise.
func (r *Reader) Probe(ctx context.Context) (Metadata, error) {
	summary, ok, err := r.probeSummary(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		r.logger.Debug("using summary metadata", "prefix", r.prefix)
		return summary, nil
	}
	return r.ProbeDetailed(ctx)
}

func (r *Reader) probeSummary(ctx context.Context) (Summary, bool, error) {
	objectPath := manifest.SnapshotObjectPath(r.prefix)
	exists, err := r.store.Exists(ctx, objectPath)
	if err != nil {
		return Summary{}, false, fmt.Errorf("metadata: failed to check catalog snapshot: %w", err)
	}
	if !exists {
		return Summary{}, false, nil
	}

	dir, err := os.MkdirTemp(r.workDirOrTemp(), "manifest-")
	if err != nil {
		return Summary{}, false, fmt.Errorf("metadata: failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "manifest.db")
	if err := r.store.Download(ctx, objectPath, local); err != nil {
		return Summary{}, false, fmt.Errorf("metadata: failed to download catalog snapshot: %w", err)
	}
	catalog, err := manifest.NewCatalog(local)
	if err != nil {
		return Summary{}, false, err
	}
	defer catalog.Close()

	def, err := catalog.TableDefinition(ctx)
	if err != nil {
		return Summary{}, false, err
	}
	if def == nil {
		return Summary{}, false, nil
	}
	return Summary{
		ColumnTypes:    def.ColumnTypes(),
		PartitionTypes: def.PartitionTypes(),
	}, true, nil
}

// ProbeDetailed reads every fragment footer below the prefix.
func (r *Reader) ProbeDetailed(ctx context.Context) (Detailed, error) {
	paths, footers, err := r.readFooters(ctx)
	if err != nil {
		return Detailed{}, err
	}

	out := Detailed{Fragments: make([]Fragment, 0, len(paths))}
	for i, p := range paths {
		frag := Fragment{Path: p}
		if footers[i].err != nil {
			r.logger.Warn("unreadable fragment footer", "path", p, "error", footers[i].err)
			out.Fragments = append(out.Fragments, frag)
			continue
		}
		frag.NumRows = footers[i].footer.NumRows
		frag.Schema = append(footers[i].footer.Fields, partitionFields(p)...)
		out.Fragments = append(out.Fragments, frag)
	}
	return out, nil
}

// CountRows sums the row counts of every fragment footer.
func (r *Reader) CountRows(ctx context.Context) (int64, error) {
	paths, footers, err := r.readFooters(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for i, p := range paths {
		if footers[i].err != nil {
			return 0, fmt.Errorf("metadata: failed to count rows of %s: %w", p, footers[i].err)
		}
		total += footers[i].footer.NumRows
	}
	return total, nil
}

type footerResult struct {
	footer *partition.Footer
	err    error
}

// readFooters lists the Parquet objects below the prefix and reads each
// footer in place. Nothing is staged locally. Per-fragment failures are
// reported in the results; only listing errors and cancellation fail the
// call.
func (r *Reader) readFooters(ctx context.Context) ([]string, []footerResult, error) {
	objects, err := r.store.ListObjects(ctx, r.prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata: failed to list dataset: %w", err)
	}
	var paths []string
	for _, obj := range objects {
		if strings.HasSuffix(obj, ".parquet") {
			paths = append(paths, obj)
		}
	}
	sort.Strings(paths)

	results := make([]footerResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.readFooter(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	r.logger.Debug("read fragment footers", "prefix", r.prefix, "count", len(paths))
	return paths, results, nil
}

func (r *Reader) readFooter(ctx context.Context, objectPath string) footerResult {
	obj, err := r.store.Open(ctx, objectPath)
	if err != nil {
		return footerResult{err: err}
	}
	defer obj.Close()
	footer, err := partition.ReadFooterFrom(obj)
	return footerResult{footer: footer, err: err}
}

func (r *Reader) workDirOrTemp() string {
	if r.workDir != "" {
		if err := os.MkdirAll(r.workDir, 0755); err == nil {
			return r.workDir
		}
	}
	return os.TempDir()
}

// partitionFields returns the hive partition keys of objectPath as string
// fields.
func partitionFields(objectPath string) []partition.FieldType {
	var fields []partition.FieldType
	for _, seg := range strings.Split(objectPath, "/") {
		key, _, ok := strings.Cut(seg, "=")
		if !ok || key == "" {
			continue
		}
		fields = append(fields, partition.FieldType{Name: key, Type: types.PhysicalString})
	}
	return fields
}
