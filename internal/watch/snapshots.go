package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Snapshot is one stored content capture for a monitored URL.
type Snapshot struct {
	ID             int64
	URL            string
	ContentHash    string
	NormalizedText string
	Title          string
	FetchedAt      time.Time
}

// SnapshotStore keeps per-URL content snapshots and watch-run summaries
// in a local sqlite file.
type SnapshotStore struct {
	db   *sql.DB
	path string
}

func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	store := &SnapshotStore{db: db, path: path}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SnapshotStore) Path() string { return s.path }

func (s *SnapshotStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	normalized_text TEXT NOT NULL,
	title TEXT,
	fetched_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_url_fetched ON snapshots(url, fetched_at DESC);
CREATE TABLE IF NOT EXISTS watch_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	sites_checked INTEGER NOT NULL DEFAULT 0,
	changes_submitted INTEGER NOT NULL DEFAULT 0,
	duplicates INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize snapshot schema: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot for a URL, or nil when the URL has
// never been captured.
func (s *SnapshotStore) Latest(ctx context.Context, url string) (*Snapshot, error) {
	const q = `
SELECT id, url, content_hash, normalized_text, COALESCE(title, ''), fetched_at
FROM snapshots
WHERE url = ?
ORDER BY fetched_at DESC, id DESC
LIMIT 1
`

	var snap Snapshot
	var fetchedAt string
	err := s.db.QueryRowContext(ctx, q, url).Scan(
		&snap.ID,
		&snap.URL,
		&snap.ContentHash,
		&snap.NormalizedText,
		&snap.Title,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot fetched_at %q: %w", fetchedAt, err)
	}
	snap.FetchedAt = ts.UTC()
	return &snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap *Snapshot) (int64, error) {
	if snap == nil {
		return 0, fmt.Errorf("snapshot is nil")
	}

	const q = `
INSERT INTO snapshots (url, content_hash, normalized_text, title, fetched_at)
VALUES (?, ?, ?, ?, ?)
`
	res, err := s.db.ExecContext(ctx, q,
		snap.URL,
		snap.ContentHash,
		snap.NormalizedText,
		snap.Title,
		snap.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot insert id: %w", err)
	}
	return id, nil
}

// Prune drops all but the newest keep snapshots for a URL.
func (s *SnapshotStore) Prune(ctx context.Context, url string, keep int) (int64, error) {
	if keep <= 0 {
		keep = defaultKeepSnapshots
	}

	const q = `
DELETE FROM snapshots
WHERE url = ?
  AND id NOT IN (
	SELECT id FROM snapshots
	WHERE url = ?
	ORDER BY fetched_at DESC, id DESC
	LIMIT ?
  )
`
	res, err := s.db.ExecContext(ctx, q, url, url, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots rows affected: %w", err)
	}
	return deleted, nil
}

func (s *SnapshotStore) StartRun(ctx context.Context, startedAt time.Time) (int64, error) {
	const q = `INSERT INTO watch_runs (started_at) VALUES (?)`
	res, err := s.db.ExecContext(ctx, q, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert watch run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("watch run insert id: %w", err)
	}
	return id, nil
}

func (s *SnapshotStore) FinishRun(ctx context.Context, runID int64, report *RunReport, finishedAt time.Time) error {
	if report == nil {
		return fmt.Errorf("run report is nil")
	}

	const q = `
UPDATE watch_runs
SET finished_at = ?, sites_checked = ?, changes_submitted = ?, duplicates = ?, errors = ?
WHERE id = ?
`
	_, err := s.db.ExecContext(ctx, q,
		finishedAt.UTC().Format(time.RFC3339Nano),
		report.SitesChecked,
		report.ChangesSubmitted,
		report.Duplicates,
		report.Errors,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish watch run: %w", err)
	}
	return nil
}
