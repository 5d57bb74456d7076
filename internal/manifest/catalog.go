package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/nutrisage/nutrisage/internal/partition"
	"github.com/nutrisage/nutrisage/internal/storage"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// CreatedTColumn is the column whose range is recorded per fragment.
const CreatedTColumn = "created_t"

// SnapshotName is the object name of a published catalog snapshot.
const SnapshotName = "_manifest/manifest.db"

// SnapshotObjectPath returns where the catalog snapshot of the dataset at
// prefix is published.
func SnapshotObjectPath(prefix string) string {
	return storage.JoinKey(prefix, SnapshotName)
}

// Catalog manages dataset metadata in manifest.db.
type Catalog interface {
	// RegisterTable upserts the dataset table definition.
	RegisterTable(ctx context.Context, def *TableDefinition) error

	// TableDefinition returns the registered definition, or nil when none
	// has been registered.
	TableDefinition(ctx context.Context) (*TableDefinition, error)

	// RegisterFragment records a written fragment.
	RegisterFragment(ctx context.Context, info *partition.FragmentInfo, objectPath, runID string) error

	// Fragments returns fragments matching filter, ordered by object path.
	Fragments(ctx context.Context, filter FragmentFilter) ([]*FragmentRecord, error)

	// BeginRun starts an ingest run and returns its ID.
	BeginRun(ctx context.Context, source string) (string, error)

	// FinishRun closes an ingest run.
	FinishRun(ctx context.Context, runID string, result RunResult) error

	// Close closes the catalog database connection.
	Close() error
}

// ColumnType pairs a column with its physical type.
type ColumnType struct {
	Name string
	Type types.PhysicalType
}

// TableDefinition is the table-level metadata of the dataset.
type TableDefinition struct {
	Name          string
	SchemaVersion int
	Columns       []ColumnType
	PartitionKeys []ColumnType
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ColumnTypes returns the data column types keyed by name.
func (d *TableDefinition) ColumnTypes() map[string]types.PhysicalType {
	out := make(map[string]types.PhysicalType, len(d.Columns))
	for _, c := range d.Columns {
		out[c.Name] = c.Type
	}
	return out
}

// PartitionTypes returns the partition column types keyed by name.
func (d *TableDefinition) PartitionTypes() map[string]types.PhysicalType {
	out := make(map[string]types.PhysicalType, len(d.PartitionKeys))
	for _, c := range d.PartitionKeys {
		out[c.Name] = c.Type
	}
	return out
}

// FragmentRecord represents a fragment in the catalog.
type FragmentRecord struct {
	FragmentID  string
	ObjectPath  string
	Partition   types.PartitionValues
	RowCount    int64
	SizeBytes   int64
	MinCreatedT *int64
	MaxCreatedT *int64
	RunID       string
	CreatedAt   time.Time
}

// FragmentFilter restricts Fragments. Empty fields match everything.
type FragmentFilter struct {
	Year    string
	Country string
	RunID   string
}

// RunStatus is the outcome of an ingest run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunResult carries the totals recorded when a run finishes.
type RunResult struct {
	Rows           int64
	MalformedLines int64
	Status         RunStatus
}

// RunRecord represents an ingest run.
type RunRecord struct {
	RunID          string
	Source         string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Rows           int64
	MalformedLines int64
	Status         RunStatus
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serialises writers

	insertFragmentStmt *sql.Stmt
}

// NewCatalog opens or creates the catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{
		db:     db,
		dbPath: dbPath,
	}

	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	insertStmt, err := db.Prepare(`
		INSERT INTO fragments (
			fragment_id, object_path, year, country,
			row_count, size_bytes, min_created_t, max_created_t,
			run_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to prepare insert statement: %w", err)
	}
	catalog.insertFragmentStmt = insertStmt

	return catalog, nil
}

// Path returns the database file path.
func (c *SQLiteCatalog) Path() string {
	return c.dbPath
}

func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RegisterTable replaces the column list and keeps the original creation
// time of the table.
func (c *SQLiteCatalog) RegisterTable(ctx context.Context, def *TableDefinition) error {
	if def == nil || len(def.Columns) == 0 {
		return fmt.Errorf("manifest: table definition has no columns")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dataset_table (id, name, schema_version, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			schema_version = excluded.schema_version,
			updated_at = excluded.updated_at`,
		def.Name, def.SchemaVersion, now, now,
	); err != nil {
		return fmt.Errorf("manifest: failed to upsert table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_columns`); err != nil {
		return fmt.Errorf("manifest: failed to reset columns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dataset_columns (name, type, ordinal, is_partition) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("manifest: failed to prepare column insert: %w", err)
	}
	defer stmt.Close()

	ordinal := 0
	insert := func(cols []ColumnType, isPartition bool) error {
		for _, col := range cols {
			if _, err := stmt.ExecContext(ctx, col.Name, string(col.Type), ordinal, isPartition); err != nil {
				return fmt.Errorf("manifest: failed to insert column %s: %w", col.Name, err)
			}
			ordinal++
		}
		return nil
	}
	if err := insert(def.Columns, false); err != nil {
		return err
	}
	if err := insert(def.PartitionKeys, true); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: failed to commit table definition: %w", err)
	}
	return nil
}

// TableDefinition returns the registered definition or nil.
func (c *SQLiteCatalog) TableDefinition(ctx context.Context) (*TableDefinition, error) {
	def := &TableDefinition{}
	var createdAt, updatedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT name, schema_version, created_at, updated_at FROM dataset_table WHERE id = 1`,
	).Scan(&def.Name, &def.SchemaVersion, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to read table definition: %w", err)
	}
	def.CreatedAt = time.UnixMilli(createdAt)
	def.UpdatedAt = time.UnixMilli(updatedAt)

	rows, err := c.db.QueryContext(ctx,
		`SELECT name, type, is_partition FROM dataset_columns ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to read columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var col ColumnType
		var typ string
		var isPartition bool
		if err := rows.Scan(&col.Name, &typ, &isPartition); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan column: %w", err)
		}
		col.Type = types.PhysicalType(typ)
		if isPartition {
			def.PartitionKeys = append(def.PartitionKeys, col)
		} else {
			def.Columns = append(def.Columns, col)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return def, nil
}

// RegisterFragment records a written fragment.
func (c *SQLiteCatalog) RegisterFragment(ctx context.Context, info *partition.FragmentInfo, objectPath, runID string) error {
	var minCreated, maxCreated *int64
	if stat, ok := info.MinMaxStats[CreatedTColumn]; ok {
		if v, ok := stat.Min.(int64); ok {
			minCreated = &v
		}
		if v, ok := stat.Max.(int64); ok {
			maxCreated = &v
		}
	}

	var run interface{}
	if runID != "" {
		run = runID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.insertFragmentStmt.ExecContext(ctx,
		info.FragmentID,
		objectPath,
		info.Partition.Year,
		info.Partition.Country,
		info.RowCount,
		info.SizeBytes,
		minCreated,
		maxCreated,
		run,
		info.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to insert fragment %s: %w", info.FragmentID, err)
	}
	return nil
}

// GetFragment retrieves a single fragment by ID.
func (c *SQLiteCatalog) GetFragment(ctx context.Context, fragmentID string) (*FragmentRecord, error) {
	rows, err := c.db.QueryContext(ctx, selectFragmentsSQL+` WHERE fragment_id = ?`, fragmentID)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query fragment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("manifest: fragment not found: %s", fragmentID)
	}
	return scanFragment(rows)
}

const selectFragmentsSQL = `
	SELECT fragment_id, object_path, year, country, row_count, size_bytes,
		min_created_t, max_created_t, run_id, created_at
	FROM fragments`

// Fragments returns fragments matching filter, ordered by object path.
func (c *SQLiteCatalog) Fragments(ctx context.Context, filter FragmentFilter) ([]*FragmentRecord, error) {
	var conds []string
	var args []interface{}
	if filter.Year != "" {
		conds = append(conds, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.Country != "" {
		conds = append(conds, "country = ?")
		args = append(args, filter.Country)
	}
	if filter.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, filter.RunID)
	}

	query := selectFragmentsSQL
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY object_path"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query fragments: %w", err)
	}
	defer rows.Close()

	var records []*FragmentRecord
	for rows.Next() {
		rec, err := scanFragment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanFragment(rows *sql.Rows) (*FragmentRecord, error) {
	var rec FragmentRecord
	var minCreated, maxCreated sql.NullInt64
	var runID sql.NullString
	var createdAt int64

	err := rows.Scan(
		&rec.FragmentID, &rec.ObjectPath,
		&rec.Partition.Year, &rec.Partition.Country,
		&rec.RowCount, &rec.SizeBytes,
		&minCreated, &maxCreated,
		&runID, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to scan fragment: %w", err)
	}
	if minCreated.Valid {
		rec.MinCreatedT = &minCreated.Int64
	}
	if maxCreated.Valid {
		rec.MaxCreatedT = &maxCreated.Int64
	}
	rec.RunID = runID.String
	rec.CreatedAt = time.UnixMilli(createdAt)
	return &rec, nil
}

// FragmentCount returns the number of registered fragments.
func (c *SQLiteCatalog) FragmentCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&count); err != nil {
		return 0, fmt.Errorf("manifest: failed to count fragments: %w", err)
	}
	return count, nil
}

// RowCount returns the sum of registered fragment row counts.
func (c *SQLiteCatalog) RowCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(row_count), 0) FROM fragments`).Scan(&count); err != nil {
		return 0, fmt.Errorf("manifest: failed to sum row counts: %w", err)
	}
	return count, nil
}

// BeginRun starts an ingest run.
func (c *SQLiteCatalog) BeginRun(ctx context.Context, source string) (string, error) {
	runID := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (run_id, source, started_at, status) VALUES (?, ?, ?, ?)`,
		runID, source, time.Now().UnixMilli(), string(RunRunning),
	)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to begin run: %w", err)
	}
	return runID, nil
}

// FinishRun closes an ingest run.
func (c *SQLiteCatalog) FinishRun(ctx context.Context, runID string, result RunResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		`UPDATE ingest_runs SET finished_at = ?, rows = ?, malformed_lines = ?, status = ? WHERE run_id = ?`,
		time.Now().UnixMilli(), result.Rows, result.MalformedLines, string(result.Status), runID,
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("manifest: run not found: %s", runID)
	}
	return nil
}

// Runs returns all ingest runs, oldest first.
func (c *SQLiteCatalog) Runs(ctx context.Context) ([]*RunRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT run_id, source, started_at, finished_at, rows, malformed_lines, status
		FROM ingest_runs ORDER BY started_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var r RunRecord
		var started int64
		var finished sql.NullInt64
		var status string
		if err := rows.Scan(&r.RunID, &r.Source, &started, &finished, &r.Rows, &r.MalformedLines, &status); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			r.FinishedAt = &t
		}
		r.Status = RunStatus(status)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Snapshot writes a consistent, self-contained copy of the catalog to dst.
func (c *SQLiteCatalog) Snapshot(ctx context.Context, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("manifest: failed to replace snapshot: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("manifest: failed to snapshot catalog: %w", err)
	}
	return nil
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	if c.insertFragmentStmt != nil {
		c.insertFragmentStmt.Close()
	}
	return c.db.Close()
}
