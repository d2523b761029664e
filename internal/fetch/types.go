// Package fetch provides the page fetcher the watcher polls meeting links with.
//
// Two backends exist:
//   - "chromedp": a real Chrome session (headless by default). Meeting pages are
//     rendered client-side, so this is the backend that produces useful verdicts.
//   - "http": a plain HTTP client with a cookie jar. Cheap, and good enough for
//     smoke tests and for services that render server-side.
//
// Whatever goes wrong below the page level is reported as one of two sentinel
// errors so callers can decide on recovery without knowing the backend.
package fetch

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout covers slow, unreachable or transiently failing pages.
	ErrTimeout = errors.New("fetch timed out")
	// ErrSessionInvalid means the session itself is gone (browser crashed,
	// fetcher closed) and must be re-created before the next fetch.
	ErrSessionInvalid = errors.New("fetch session invalid")
)

// Page is the rendered content of one URL.
type Page struct {
	URL       string
	HTML      string
	Title     string
	Status    int // HTTP status when known, 0 otherwise
	FetchedAt time.Time
	Took      time.Duration
}

// Fetcher is owned by a single caller; implementations need not be safe for
// concurrent Fetch calls.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
	// Reset closes the current session and opens a fresh one.
	Reset(ctx context.Context) error
	Close() error
	Backend() string
}

// Config configures Open.
type Config struct {
	Backend string // "chromedp" (default) or "http"

	Headless    bool
	ExecPath    string // browser binary; empty means auto-detect
	UserDataDir string // signed-in browser profile to reuse
	UserAgent   string

	// Timeout bounds one fetch. Settle is an extra wait after navigation for
	// client-side rendering (chromedp only).
	Timeout time.Duration
	Settle  time.Duration
}

const (
	defaultTimeout = 15 * time.Second
	defaultSettle  = 3 * time.Second
	// A plausible desktop Chrome UA keeps headless sessions from being served the
	// "unsupported browser" page.
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Settle < 0 {
		c.Settle = 0
	} else if c.Settle == 0 {
		c.Settle = defaultSettle
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}
