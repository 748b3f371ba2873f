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

	"github.com/nao1215/saxsflow/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "saxsflow.db"

// RunDB provides SQLite-based storage for analysis results.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
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
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *RunDB) createTables() error {
	schema := `
	-- One row per analysis run; result_json is the complete model.Result
	CREATE TABLE IF NOT EXISTS runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		fingerprint TEXT,
		timestamp TEXT NOT NULL,
		points INTEGER,
		fitted_count INTEGER,
		failed_count INTEGER,
		saturated INTEGER,
		error TEXT,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	-- Extracted peaks, for queries across runs
	CREATE TABLE IF NOT EXISTS peaks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		q REAL NOT NULL,
		amplitude REAL,
		sigma REAL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_peaks_run ON peaks(run_id);
	CREATE INDEX IF NOT EXISTS idx_peaks_q ON peaks(q);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveResult stores a result and its peaks in one transaction.
func (rdb *RunDB) SaveResult(ctx context.Context, result *model.Result) error {
	if result.RunID == "" {
		return errors.New("result has no run id")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO runs (run_id, source, fingerprint, timestamp, points, fitted_count, failed_count, saturated, error, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		result.RunID,
		result.Source,
		result.Fingerprint,
		result.DateAnalyzed.UTC().Format(time.RFC3339Nano),
		result.Points,
		result.CountByStatus(model.PeakFitted),
		result.CountByStatus(model.PeakFitFailed),
		result.Stats.Saturated,
		result.Error,
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, p := range result.Peaks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO peaks (run_id, position, q, amplitude, sigma, status) VALUES (?, ?, ?, ?, ?, ?)`,
			result.RunID, p.Index, p.Q, p.Amplitude, p.Sigma, p.Status.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to save peak %d: %w", p.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a result by run id. It returns nil, nil when absent.
func (rdb *RunDB) GetRun(ctx context.Context, runID string) (*model.Result, error) {
	var resultJSON string
	err := rdb.db.QueryRowContext(ctx,
		`SELECT result_json FROM runs WHERE run_id = ?`, runID,
	).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decodeResult(resultJSON)
}

// GetLatestRun retrieves the most recent result for a source.
// It returns nil, nil when the source has no runs.
func (rdb *RunDB) GetLatestRun(ctx context.Context, source string) (*model.Result, error) {
	query := `
	SELECT result_json FROM runs
	WHERE source = ?
	ORDER BY timestamp DESC, seq DESC
	LIMIT 1
	`

	var resultJSON string
	err := rdb.db.QueryRowContext(ctx, query, source).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decodeResult(resultJSON)
}

// ListSources returns every source with at least one run, sorted.
func (rdb *RunDB) ListSources(ctx context.Context) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, `SELECT DISTINCT source FROM runs ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// GetRunHistory retrieves every result for a source, newest first.
// Rows whose JSON no longer decodes are skipped.
func (rdb *RunDB) GetRunHistory(ctx context.Context, source string) ([]*model.Result, error) {
	query := `
	SELECT result_json FROM runs
	WHERE source = ?
	ORDER BY timestamp DESC, seq DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []*model.Result
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r, err := decodeResult(resultJSON)
		if err != nil {
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RunMetadata summarises a stored run without loading the full result.
type RunMetadata struct {
	RunID       string
	Source      string
	Fingerprint string
	Timestamp   time.Time
	Points      int
	FittedCount int
	FailedCount int
	Saturated   bool
	Error       string
}

// GetRunHistoryWithMetadata lists run summaries for a source, newest first.
func (rdb *RunDB) GetRunHistoryWithMetadata(ctx context.Context, source string) ([]RunMetadata, error) {
	return rdb.queryMetadata(ctx, `WHERE source = ?`, source)
}

// FindByFingerprint lists runs of the same curve under any source,
// newest first.
func (rdb *RunDB) FindByFingerprint(ctx context.Context, fingerprint string) ([]RunMetadata, error) {
	return rdb.queryMetadata(ctx, `WHERE fingerprint = ?`, fingerprint)
}

func (rdb *RunDB) queryMetadata(ctx context.Context, where string, args ...any) ([]RunMetadata, error) {
	query := `
	SELECT run_id, source, COALESCE(fingerprint, ''), timestamp, points,
		fitted_count, failed_count, saturated, COALESCE(error, '')
	FROM runs ` + where + `
	ORDER BY timestamp DESC, seq DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta      RunMetadata
			timestamp string
		)
		err := rows.Scan(
			&meta.RunID,
			&meta.Source,
			&meta.Fingerprint,
			&timestamp,
			&meta.Points,
			&meta.FittedCount,
			&meta.FailedCount,
			&meta.Saturated,
			&meta.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		results = append(results, meta)
	}
	return results, rows.Err()
}

// PeakRecord is one stored peak with the run it belongs to.
type PeakRecord struct {
	RunID     string
	Source    string
	Index     int
	Q         float64
	Amplitude float64
	Sigma     float64
	Status    model.PeakStatus
}

// QueryPeaks returns fitted peaks with qMin <= q <= qMax across all runs,
// ordered by q.
func (rdb *RunDB) QueryPeaks(ctx context.Context, qMin, qMax float64) ([]PeakRecord, error) {
	query := `
	SELECT p.run_id, r.source, p.position, p.q, p.amplitude, p.sigma, p.status
	FROM peaks p JOIN runs r ON r.run_id = p.run_id
	WHERE p.q >= ? AND p.q <= ? AND p.status = ?
	ORDER BY p.q, r.seq
	`

	rows, err := rdb.db.QueryContext(ctx, query, qMin, qMax, model.PeakFitted.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query peaks: %w", err)
	}
	defer rows.Close()

	var records []PeakRecord
	for rows.Next() {
		var (
			rec    PeakRecord
			status string
		)
		if err := rows.Scan(&rec.RunID, &rec.Source, &rec.Index, &rec.Q, &rec.Amplitude, &rec.Sigma, &status); err != nil {
			return nil, fmt.Errorf("failed to scan peak: %w", err)
		}
		if err := rec.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, fmt.Errorf("failed to parse peak status: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func decodeResult(data string) (*model.Result, error) {
	var r model.Result
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &r, nil
}

// timestampFormats contains the timestamp formats that may be stored.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses a stored timestamp, returning the zero time when
// no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
