package storage

import (
	"context"
	"errors"
	"strings"

	logx "meetwatch/pkg/logx"
)

// Open initializes the configured journal. A disabled journal is a no-op
// implementation, never nil.
func Open(cfg Config, log logx.Logger) (Journal, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nopJournal{}, nil
	case "file", "jsonl":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

type nopJournal struct{}

func (nopJournal) AppendPoll(context.Context, PollRecord) error { return nil }
func (nopJournal) AppendRun(context.Context, RunRecord) error   { return nil }
func (nopJournal) Close() error                                 { return nil }
