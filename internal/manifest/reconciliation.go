package manifest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nutrisage/nutrisage/internal/storage"
)

// ReconciliationReport contains the results of a catalog-storage
// reconciliation.
type ReconciliationReport struct {
	// DanglingEntries are catalog records whose object does not exist.
	DanglingEntries []DanglingEntry
	// OrphanedObjects are fragment objects with no catalog record.
	OrphanedObjects []string
	// TotalCatalogEntries is the number of fragments checked.
	TotalCatalogEntries int
	// TotalStorageObjects is the number of fragment objects scanned.
	TotalStorageObjects int
	RunAt               time.Time
}

// DanglingEntry represents a catalog record pointing to a missing object.
type DanglingEntry struct {
	FragmentID string
	ObjectPath string
}

// HasIssues returns true if the report contains any dangling entries or
// orphaned objects.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.DanglingEntries) > 0 || len(r.OrphanedObjects) > 0
}

// Reconcile checks consistency between the catalog and the Parquet objects
// under prefix. Objects that are not Parquet files, such as the published
// catalog snapshot, are ignored.
func Reconcile(ctx context.Context, catalog Catalog, store storage.ObjectStorage, prefix string) (*ReconciliationReport, error) {
	report := &ReconciliationReport{
		RunAt: time.Now(),
	}

	fragments, err := catalog.Fragments(ctx, FragmentFilter{})
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list catalog fragments: %w", err)
	}
	report.TotalCatalogEntries = len(fragments)

	known := make(map[string]bool, len(fragments))
	for _, f := range fragments {
		known[f.ObjectPath] = true
	}

	for _, f := range fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exists, err := store.Exists(ctx, f.ObjectPath)
		if err != nil {
			return nil, fmt.Errorf("reconciliation: failed to check object %s: %w", f.ObjectPath, err)
		}
		if !exists {
			report.DanglingEntries = append(report.DanglingEntries, DanglingEntry{
				FragmentID: f.FragmentID,
				ObjectPath: f.ObjectPath,
			})
		}
	}

	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list storage objects: %w", err)
	}
	for _, obj := range objects {
		if !strings.HasSuffix(obj, ".parquet") {
			continue
		}
		report.TotalStorageObjects++
		if !known[obj] {
			report.OrphanedObjects = append(report.OrphanedObjects, obj)
		}
	}

	return report, nil
}
