// Package history persists run records in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bgricker/matrixrun/internal/report"
)

var (
	// ErrNotFound indicates no stored run matches the requested id.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguous indicates an id prefix matches more than one run.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is the summary row shown by `history`.
type Entry struct {
	ID          string        `json:"id"`
	Fingerprint string        `json:"fingerprint"`
	EventKind   string        `json:"event_kind,omitempty"`
	Branch      string        `json:"branch,omitempty"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
	Instances   int           `json:"instances"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	TimedOut    int           `json:"timed_out"`
	Cancelled   int           `json:"cancelled"`
	Skipped     int           `json:"skipped"`
}

// Store reads and writes run records.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
  id          TEXT PRIMARY KEY,
  fingerprint TEXT NOT NULL,
  event_kind  TEXT NOT NULL,
  branch      TEXT,
  status      TEXT NOT NULL,
  started_at  TEXT NOT NULL,
  duration_ms INTEGER NOT NULL,
  instances   INTEGER NOT NULL,
  passed      INTEGER NOT NULL,
  failed      INTEGER NOT NULL,
  timed_out   INTEGER NOT NULL,
  cancelled   INTEGER NOT NULL,
  skipped     INTEGER NOT NULL,
  document    JSON NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS run_instances (
  run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  instance_id TEXT NOT NULL,
  name        TEXT NOT NULL,
  status      TEXT NOT NULL,
  failed_step INTEGER NOT NULL DEFAULT 0,
  reason      TEXT,
  duration_ms INTEGER NOT NULL,
  PRIMARY KEY (run_id, instance_id)
);`,
		`CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs(started_at);`,
		`CREATE INDEX IF NOT EXISTS run_instances_instance_idx ON run_instances(instance_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap history: %w", err)
		}
	}
	return nil
}

// Save stores run and its instance rows in one transaction.
func (s *Store) Save(ctx context.Context, run report.Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is empty")
	}
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sum := run.Summary
	_, err = tx.ExecContext(ctx, `
INSERT INTO runs(id, fingerprint, event_kind, branch, status, started_at, duration_ms,
                 instances, passed, failed, timed_out, cancelled, skipped, document)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, run.ID, run.Fingerprint, run.Event.Kind, run.Event.Branch, run.Status,
		run.StartedAt.UTC().Format(timeLayout), sum.DurationMS,
		sum.TotalInstances, sum.Passed, sum.Failed, sum.TimedOut, sum.Cancelled, sum.Skipped, string(doc))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, inst := range run.Instances {
		_, err = tx.ExecContext(ctx, `
INSERT INTO run_instances(run_id, instance_id, name, status, failed_step, reason, duration_ms)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, run.ID, inst.ID, inst.Name, inst.Status, inst.FailedStep, inst.Reason, inst.DurationMS)
		if err != nil {
			return fmt.Errorf("insert instance %s: %w", inst.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, fingerprint, event_kind, branch, status, started_at, duration_ms,
       instances, passed, failed, timed_out, cancelled, skipped
FROM runs
ORDER BY started_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			branch     sql.NullString
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.EventKind, &branch, &e.Status, &startedAt, &durationMS,
			&e.Instances, &e.Passed, &e.Failed, &e.TimedOut, &e.Cancelled, &e.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Branch = branch.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.DurationMS = durationMS
		if e.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Get returns the full run record for id. A unique prefix of an id is accepted.
func (s *Store) Get(ctx context.Context, id string) (report.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return report.Run{}, fmt.Errorf("run id is empty")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT document FROM runs
WHERE id = ? OR id LIKE ? ESCAPE '\'
ORDER BY (id = ?) DESC
LIMIT 2;
`, id, escapeLike(id)+"%", id)
	if err != nil {
		return report.Run{}, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return report.Run{}, fmt.Errorf("scan run: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return report.Run{}, fmt.Errorf("iterate runs: %w", err)
	}

	switch len(docs) {
	case 0:
		return report.Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	case 2:
		var first report.Run
		if err := json.Unmarshal([]byte(docs[0]), &first); err == nil && first.ID == id {
			return first, nil
		}
		return report.Run{}, fmt.Errorf("%s: %w", id, ErrAmbiguous)
	}

	var run report.Run
	if err := json.Unmarshal([]byte(docs[0]), &run); err != nil {
		return report.Run{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, nil
}

// InstanceStatuses returns the most recent statuses recorded for an instance id,
// newest first.
func (s *Store) InstanceStatuses(ctx context.Context, instanceID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT ri.status
FROM run_instances ri
JOIN runs r ON r.id = ri.run_id
WHERE ri.instance_id = ?
ORDER BY r.started_at DESC
LIMIT ?;
`, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query instance history: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("scan instance status: %w", err)
		}
		out = append(out, status)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
