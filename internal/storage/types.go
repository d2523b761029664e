package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("journal closed")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PollRecord is one poll attempt.
type PollRecord struct {
	RunID     string    `json:"run_id"`
	At        time.Time `json:"at"`
	Period    int       `json:"period"`
	Index     int       `json:"index"`
	Link      string    `json:"link"`
	URL       string    `json:"url"`
	Verdict   string    `json:"verdict"`
	Signature string    `json:"signature,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	TookMS    int64     `json:"took_ms"`
}

// RunRecord summarizes one run.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Reason      string    `json:"reason"`
	Announced   int       `json:"announced"`
	Escalations int       `json:"escalations"`
	Polls       int       `json:"polls"`
	Resets      int       `json:"resets"`
	Pending     []string  `json:"pending,omitempty"`
	Expired     []string  `json:"expired,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Journal is the append-only poll history.
type Journal interface {
	AppendPoll(ctx context.Context, r PollRecord) error
	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}
