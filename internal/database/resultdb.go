package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/stealthfetch/internal/model"
)

// FileName is the archive file created inside the database directory.
const FileName = "stealthfetch.db"

// ErrRunNotFound is returned when a run ID is not in the archive.
var ErrRunNotFound = errors.New("run not found")

// ResultDB provides SQLite-based storage for run results.
//
// Design decision: All runs share one database file so that history queries
// across runs need no file discovery.
type ResultDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ResultDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ResultDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ResultDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	// busy_timeout lets concurrent commands wait on the write lock.
	dsn := "file:" + dbPath + "?mode=rw&_pragma=busy_timeout(5000)"
	if opts.CreateIfNotExists {
		dsn = "file:" + dbPath + "?mode=rwc&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ResultDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *ResultDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *ResultDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *ResultDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		seed TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		summary TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER,
		content_length INTEGER NOT NULL,
		success INTEGER NOT NULL,
		blocked INTEGER NOT NULL,
		data TEXT,
		html_preview TEXT,
		error TEXT,
		content_hash TEXT,
		proxy TEXT,
		elapsed_ms INTEGER,
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id, position);
	CREATE INDEX IF NOT EXISTS idx_results_url ON results(url);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveResultSet stores a run and all of its results in one transaction.
// Saving a run ID that already exists replaces it.
func (rdb *ResultDB) SaveResultSet(ctx context.Context, set *model.ResultSet) (err error) {
	summaryJSON, err := json.Marshal(set.Summary())
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM results WHERE run_id = ?`, set.RunID); err != nil {
		return fmt.Errorf("failed to clear previous results: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT OR REPLACE INTO runs (run_id, mode, seed, started_at, finished_at, summary)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		set.RunID,
		string(set.Mode),
		set.Seed,
		formatTimestamp(set.StartedAt),
		formatTimestamp(set.FinishedAt),
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO results (
		run_id, position, url, status_code, content_length, success, blocked,
		data, html_preview, error, content_hash, proxy, elapsed_ms, fetched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i := range set.Results {
		r := &set.Results[i]
		var data sql.NullString
		if r.Data != nil {
			b, mErr := json.Marshal(r.Data)
			if mErr != nil {
				err = fmt.Errorf("failed to serialize data for %s: %w", r.URL, mErr)
				return err
			}
			data = sql.NullString{String: string(b), Valid: true}
		}
		var status sql.NullInt64
		if r.StatusCode != 0 {
			status = sql.NullInt64{Int64: int64(r.StatusCode), Valid: true}
		}

		_, err = stmt.ExecContext(ctx,
			set.RunID, i, r.URL, status, r.ContentLength, r.Success, r.Blocked,
			data, r.HTMLPreview, r.Error, r.ContentHash, r.Proxy, r.ElapsedMs,
			formatTimestamp(r.FetchedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save result for %s: %w", r.URL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunRecord describes an archived run without its results.
type RunRecord struct {
	// RunID uniquely identifies the run.
	RunID string

	// Mode is fetch or crawl.
	Mode model.Mode

	// Seed is the crawl seed URL; empty for batch fetches.
	Seed string

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time

	// Summary holds the counts computed when the run was saved.
	Summary model.Summary
}

// ListRuns returns archived runs, most recent first.
func (rdb *ResultDB) ListRuns(ctx context.Context) ([]RunRecord, error) {
	query := `
	SELECT run_id, mode, COALESCE(seed, ''), started_at, finished_at, summary
	FROM runs
	ORDER BY started_at DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var mode, started, finished, summary string
		if err := rows.Scan(&rec.RunID, &mode, &rec.Seed, &started, &finished, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Mode = model.Mode(mode)
		rec.StartedAt = parseTimestamp(started)
		rec.FinishedAt = parseTimestamp(finished)
		if err := json.Unmarshal([]byte(summary), &rec.Summary); err != nil {
			return nil, fmt.Errorf("failed to parse summary of run %s: %w", rec.RunID, err)
		}
		runs = append(runs, rec)
	}

	return runs, rows.Err()
}

// GetRun returns the archived run with its results in their original order.
func (rdb *ResultDB) GetRun(ctx context.Context, runID string) (*model.ResultSet, error) {
	var mode, seed, started, finished string
	err := rdb.db.QueryRowContext(ctx, `
	SELECT mode, COALESCE(seed, ''), started_at, finished_at FROM runs WHERE run_id = ?
	`, runID).Scan(&mode, &seed, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	results, err := rdb.ListResults(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &model.ResultSet{
		RunID:      runID,
		Mode:       model.Mode(mode),
		Seed:       seed,
		StartedAt:  parseTimestamp(started),
		FinishedAt: parseTimestamp(finished),
		Results:    results,
	}, nil
}

// ListResults returns the results of a run in the order they were recorded.
// An unknown run ID yields an empty slice.
func (rdb *ResultDB) ListResults(ctx context.Context, runID string) ([]model.Result, error) {
	query := `
	SELECT url, status_code, content_length, success, blocked, data,
		COALESCE(html_preview, ''), COALESCE(error, ''), COALESCE(content_hash, ''),
		COALESCE(proxy, ''), COALESCE(elapsed_ms, 0), fetched_at
	FROM results
	WHERE run_id = ?
	ORDER BY position
	`

	rows, err := rdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []model.Result{}
	for rows.Next() {
		var r model.Result
		var status sql.NullInt64
		var data sql.NullString
		var fetchedAt string

		if err := rows.Scan(
			&r.URL, &status, &r.ContentLength, &r.Success, &r.Blocked, &data,
			&r.HTMLPreview, &r.Error, &r.ContentHash, &r.Proxy, &r.ElapsedMs, &fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if status.Valid {
			r.StatusCode = int(status.Int64)
		}
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &r.Data); err != nil {
				return nil, fmt.Errorf("failed to parse data for %s: %w", r.URL, err)
			}
		}
		r.FetchedAt = parseTimestamp(fetchedAt)
		results = append(results, r)
	}

	return results, rows.Err()
}

// timestampLayout is RFC 3339 with a fixed-width fraction, so stored
// timestamps sort lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp renders t in UTC using timestampLayout.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
