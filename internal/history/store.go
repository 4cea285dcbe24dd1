// Package history keeps a small sqlite registry of finished runs, one row
// per terminal transition, for the `history` subcommand.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uwabamin5/scroll-copy/internal/state"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	// modernc sqlite DSN: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite wants a single writer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  url TEXT NOT NULL DEFAULT '',
  loop_count INTEGER NOT NULL DEFAULT 0,
  total_lines INTEGER NOT NULL DEFAULT 0,
  unique_lines INTEGER NOT NULL DEFAULT 0,
  raw_output TEXT NOT NULL DEFAULT '',
  final_output TEXT NOT NULL DEFAULT '',
  error_code TEXT NOT NULL DEFAULT '',
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at DESC);
`)
	return err
}

// Run is one registry row.
type Run struct {
	RunID       string
	Status      string
	URL         string
	LoopCount   int
	TotalLines  int
	UniqueLines int
	RawOutput   string
	FinalOutput string
	ErrorCode   string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Record upserts the terminal snapshot of st. Re-recording the same run (a
// resumed run finishing again) replaces the earlier row.
func (s *Store) Record(ctx context.Context, st *state.RunState) error {
	errorCode := ""
	if st.LastError != nil {
		errorCode = st.LastError.Code
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs(run_id, status, url, loop_count, total_lines, unique_lines,
                 raw_output, final_output, error_code, started_at, finished_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(run_id) DO UPDATE SET
  status=excluded.status,
  loop_count=excluded.loop_count,
  total_lines=excluded.total_lines,
  unique_lines=excluded.unique_lines,
  error_code=excluded.error_code,
  finished_at=excluded.finished_at;`,
		st.RunID, string(st.Status), st.Target.URL,
		st.Progress.LoopCount, st.Progress.TotalLinesSeen, st.Progress.UniqueLinesSeen,
		st.Files.RawOutput, st.Files.FinalOutput, errorCode,
		st.Timestamps.StartedAt.Format(time.RFC3339),
		st.Timestamps.UpdatedAt.Format(time.RFC3339))
	return err
}

// Recent lists the latest finished runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, status, url, loop_count, total_lines, unique_lines,
       raw_output, final_output, error_code, started_at, finished_at
FROM runs
ORDER BY finished_at DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt string
		if err := rows.Scan(&r.RunID, &r.Status, &r.URL, &r.LoopCount,
			&r.TotalLines, &r.UniqueLines, &r.RawOutput, &r.FinalOutput,
			&r.ErrorCode, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
