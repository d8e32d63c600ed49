// Package archive keeps finished runs in a local SQLite database so they can
// be listed and read back without the service.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/mwiater/sweepwatch/internal/benchmark"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found in archive")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	model           TEXT NOT NULL DEFAULT '',
	server_url      TEXT NOT NULL DEFAULT '',
	adapter         TEXT NOT NULL DEFAULT '',
	levels          INTEGER NOT NULL DEFAULT 0,
	best_throughput REAL NOT NULL DEFAULT 0,
	status_json     TEXT NOT NULL,
	result_json     TEXT,
	archived_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_archived_at ON runs (archived_at);
`

// Entry is one archived run.
type Entry struct {
	Status     benchmark.RunStatus
	Result     *benchmark.Result
	ArchivedAt time.Time
}

// Row is the listing form of an Entry.
type Row struct {
	RunID          string
	Status         benchmark.Status
	Model          string
	ServerURL      string
	Levels         int
	BestThroughput float64
	ArchivedAt     time.Time
}

// Store is a handle on the archive database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating when needed) the archive at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	// A single connection keeps writes serialised.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, now: time.Now}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the archived copy of a run.
func (s *Store) Save(ctx context.Context, status benchmark.RunStatus, result *benchmark.Result) error {
	if status.RunID == "" {
		return fmt.Errorf("archive: run id is required")
	}
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	var (
		resultJSON     sql.NullString
		levels         int
		bestThroughput float64
	)
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
		levels = len(result.Results)
		bestThroughput = result.Summary.BestThroughput
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, status, model, server_url, adapter, levels, best_throughput, status_json, result_json, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			model = excluded.model,
			server_url = excluded.server_url,
			adapter = excluded.adapter,
			levels = excluded.levels,
			best_throughput = excluded.best_throughput,
			status_json = excluded.status_json,
			result_json = excluded.result_json,
			archived_at = excluded.archived_at`,
		status.RunID, string(status.Status), status.Model, status.ServerURL, status.Adapter,
		levels, bestThroughput, string(statusJSON), resultJSON, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save run %s: %w", status.RunID, err)
	}
	return nil
}

// List returns archived runs, newest first. A non-positive limit means all.
func (s *Store) List(ctx context.Context, limit int, status benchmark.Status) ([]Row, error) {
	query := `SELECT run_id, status, model, server_url, levels, best_throughput, archived_at FROM runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY archived_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var (
			r          Row
			st         string
			archivedAt string
		)
		if err := rows.Scan(&r.RunID, &st, &r.Model, &r.ServerURL, &r.Levels, &r.BestThroughput, &archivedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		r.Status = benchmark.ParseStatus(st)
		r.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archivedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive: %w", err)
	}
	return out, nil
}

// Get loads one archived run.
func (s *Store) Get(ctx context.Context, runID string) (Entry, error) {
	var (
		statusJSON string
		resultJSON sql.NullString
		archivedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status_json, result_json, archived_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&statusJSON, &resultJSON, &archivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get run %s: %w", runID, err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(statusJSON), &entry.Status); err != nil {
		return Entry{}, fmt.Errorf("decode archived status: %w", err)
	}
	if resultJSON.Valid {
		var result benchmark.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return Entry{}, fmt.Errorf("decode archived result: %w", err)
		}
		entry.Result = &result
	}
	entry.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archivedAt)
	return entry, nil
}
