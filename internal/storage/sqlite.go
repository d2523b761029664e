package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "meetwatch/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Journal, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the journal is append-only.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	log.Debug("journal opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) AppendPoll(ctx context.Context, r PollRecord) error {
	if s.db == nil {
		return ErrClosed
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO polls(run_id, at, period, link_idx, link, url, verdict, signature, detail, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, r.At.Format(time.RFC3339Nano), r.Period, r.Index, r.Link, r.URL, r.Verdict,
		nullStr(r.Signature), nullStr(r.Detail), r.TookMS,
	)
	return err
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, started_at, finished_at, reason, announced, escalations, polls, resets, pending, expired, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   finished_at=excluded.finished_at, reason=excluded.reason, announced=excluded.announced,
		   escalations=excluded.escalations, polls=excluded.polls, resets=excluded.resets,
		   pending=excluded.pending, expired=excluded.expired, err=excluded.err`,
		r.RunID, r.StartedAt.Format(time.RFC3339Nano), r.FinishedAt.Format(time.RFC3339Nano), r.Reason,
		r.Announced, r.Escalations, r.Polls, r.Resets,
		nullStr(strings.Join(r.Pending, "\n")), nullStr(strings.Join(r.Expired, "\n")), nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
