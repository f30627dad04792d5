package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"fwrelease/internal/security"
	"fwrelease/pkg/fileutil"
)

// History manages build history in SQLite
type History struct {
	db *sql.DB
}

// NewHistory opens (and if needed creates) the history database
func NewHistory(dbPath string) (*History, error) {
	if dir := filepath.Dir(dbPath); !fileutil.DirExists(dir) {
		if err := security.CreateStateDir(dir, security.PermDirectory); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := os.Chmod(dbPath, security.PermDBFile); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			version TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			archive_path TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS builds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			output_name TEXT NOT NULL,
			mode INTEGER NOT NULL,
			identifier TEXT NOT NULL,
			status TEXT NOT NULL,
			version TEXT,
			size_bytes INTEGER,
			duration_seconds REAL,
			log_path TEXT NOT NULL,
			error_message TEXT,
			built_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_builds_output ON builds(output_name, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_builds_run ON builds(run_id)`,
	}

	for _, stmt := range statements {
		if _, err := h.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}

// RecordRun inserts a run. An empty ID is filled with a new UUID and a zero
// StartedAt with the current time.
func (h *History) RecordRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunInProgress
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, status, version, started_at, completed_at, succeeded, failed, archive_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Status,
		run.Version,
		formatTime(run.StartedAt),
		formatTimePtr(run.CompletedAt),
		run.Succeeded,
		run.Failed,
		run.ArchivePath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}

	return nil
}

// CompleteRun stores the final tallies of a run. A nil CompletedAt is set to now.
func (h *History) CompleteRun(ctx context.Context, run *RunRecord) error {
	if run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}

	result, err := h.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, version = ?, completed_at = ?, succeeded = ?, failed = ?, archive_path = ?
		WHERE id = ?
	`,
		run.Status,
		run.Version,
		formatTimePtr(run.CompletedAt),
		run.Succeeded,
		run.Failed,
		run.ArchivePath,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	return nil
}

// RecordBuild records one configuration's outcome
func (h *History) RecordBuild(ctx context.Context, record *BuildRecord) (int64, error) {
	if record.BuiltAt.IsZero() {
		record.BuiltAt = time.Now().UTC()
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO builds
		(run_id, output_name, mode, identifier, status, version, size_bytes,
		 duration_seconds, log_path, error_message, built_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RunID,
		record.OutputName,
		record.Mode,
		record.Identifier,
		record.Status,
		record.Version,
		record.SizeBytes,
		record.DurationSeconds,
		record.LogPath,
		record.ErrorMessage,
		formatTime(record.BuiltAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert build record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	record.ID = id

	return id, nil
}

const runColumns = `id, status, version, started_at, completed_at, succeeded, failed, archive_path`

const buildColumns = `id, run_id, output_name, mode, identifier, status, version, size_bytes,
	duration_seconds, log_path, error_message, built_at`

// GetRun returns a run by ID, or nil if it does not exist
func (h *History) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRunRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// GetRecentRuns returns the most recent runs, newest first
func (h *History) GetRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// GetRunBuilds returns every build of a run in the order they were attempted
func (h *History) GetRunBuilds(ctx context.Context, runID string) ([]BuildRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run builds: %w", err)
	}
	defer rows.Close()

	return collectBuilds(rows)
}

// GetLatestBuild returns the most recent build for an output
func (h *History) GetLatestBuild(ctx context.Context, output string) (*BuildRecord, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE output_name = ?
		ORDER BY id DESC
		LIMIT 1
	`, output)

	record, err := scanBuildRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest build: %w", err)
	}

	return record, nil
}

// GetBuildHistory returns build history for an output, newest first
func (h *History) GetBuildHistory(ctx context.Context, output string, limit int) ([]BuildRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE output_name = ?
		ORDER BY id DESC
		LIMIT ?
	`, output, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query build history: %w", err)
	}
	defer rows.Close()

	return collectBuilds(rows)
}

// GetLatestPerOutput returns the latest build for each output ever built
func (h *History) GetLatestPerOutput(ctx context.Context) (map[string]*BuildRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE id IN (SELECT MAX(id) FROM builds GROUP BY output_name)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest builds: %w", err)
	}
	defer rows.Close()

	records, err := collectBuilds(rows)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*BuildRecord, len(records))
	for i := range records {
		result[records[i].OutputName] = &records[i]
	}
	return result, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

func collectBuilds(rows *sql.Rows) ([]BuildRecord, error) {
	var records []BuildRecord
	for rows.Next() {
		record, err := scanBuildRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

func scanRunRecord(s scanner) (*RunRecord, error) {
	var run RunRecord
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&run.ID,
		&run.Status,
		&run.Version,
		&startedAtStr,
		&completedAtStr,
		&run.Succeeded,
		&run.Failed,
		&run.ArchivePath,
	)
	if err != nil {
		return nil, err
	}

	if run.StartedAt, err = time.Parse(time.RFC3339, startedAtStr); err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		run.CompletedAt = &completedAt
	}

	return &run, nil
}

func scanBuildRecord(s scanner) (*BuildRecord, error) {
	var record BuildRecord
	var builtAtStr string

	err := s.Scan(
		&record.ID,
		&record.RunID,
		&record.OutputName,
		&record.Mode,
		&record.Identifier,
		&record.Status,
		&record.Version,
		&record.SizeBytes,
		&record.DurationSeconds,
		&record.LogPath,
		&record.ErrorMessage,
		&builtAtStr,
	)
	if err != nil {
		return nil, err
	}

	if record.BuiltAt, err = time.Parse(time.RFC3339, builtAtStr); err != nil {
		return nil, fmt.Errorf("failed to parse built_at timestamp: %w", err)
	}

	return &record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
