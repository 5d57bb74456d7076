// Package manifest provides the dataset catalog: the table definition the
// summary metadata path reads, the registry of written fragments and the
// history of ingest runs.
package manifest

// The catalog is a SQLite database. The ingest side writes it locally and
// publishes a snapshot next to the dataset.

// CreateDatasetTableSQL holds the single table-level row of the dataset.
const CreateDatasetTableSQL = `
CREATE TABLE IF NOT EXISTS dataset_table (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    name TEXT NOT NULL,
    schema_version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateDatasetColumnsTableSQL stores column name to physical type, data
// columns first, then partition columns.
const CreateDatasetColumnsTableSQL = `
CREATE TABLE IF NOT EXISTS dataset_columns (
    name TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    is_partition INTEGER NOT NULL DEFAULT 0
)`

// CreateFragmentsTableSQL stores one row per fragment file.
const CreateFragmentsTableSQL = `
CREATE TABLE IF NOT EXISTS fragments (
    fragment_id TEXT PRIMARY KEY,
    object_path TEXT NOT NULL UNIQUE,
    year TEXT NOT NULL,
    country TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    min_created_t INTEGER,
    max_created_t INTEGER,
    run_id TEXT,
    created_at INTEGER NOT NULL
)`

// CreateIngestRunsTableSQL stores ingest run bookkeeping.
const CreateIngestRunsTableSQL = `
CREATE TABLE IF NOT EXISTS ingest_runs (
    run_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    rows INTEGER NOT NULL DEFAULT 0,
    malformed_lines INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL
)`

// CreateFragmentsIndexesSQL creates indexes for partition lookups.
var CreateFragmentsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_fragments_partition ON fragments(year, country)`,
	`CREATE INDEX IF NOT EXISTS idx_fragments_run ON fragments(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_fragments_created_t ON fragments(min_created_t, max_created_t)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{
		CreateDatasetTableSQL,
		CreateDatasetColumnsTableSQL,
		CreateFragmentsTableSQL,
		CreateIngestRunsTableSQL,
	}
	return append(statements, CreateFragmentsIndexesSQL...)
}
