package fetch

import (
	"context"
	"errors"
	"strings"

	logx "meetwatch/pkg/logx"
)

// Open initializes the configured fetcher backend.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Fetcher, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "chromedp", "chrome", "chromedriver":
		b, err := openBrowser(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "http":
		return openHTTP(cfg, log), nil
	default:
		return nil, errors.New("unknown fetch backend: " + cfg.Backend)
	}
}

// classify folds backend errors into ErrTimeout / ErrSessionInvalid.
// Anything that is not already a dead session counts as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrSessionInvalid) {
		return err
	}
	return &fetchError{kind: ErrTimeout, cause: err}
}

type fetchError struct {
	kind  error
	cause error
}

func (e *fetchError) Error() string { return e.kind.Error() + ": " + e.cause.Error() }

func (e *fetchError) Is(target error) bool { return target == e.kind }

func (e *fetchError) Unwrap() error { return e.cause }

func sessionInvalid(cause error) error {
	if cause == nil {
		return ErrSessionInvalid
	}
	return &fetchError{kind: ErrSessionInvalid, cause: cause}
}
