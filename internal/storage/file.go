package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "meetwatch/pkg/logx"
)

// fileStore appends JSON Lines to
//   - <prefix>.polls.jsonl
//   - <prefix>.runs.jsonl
type fileStore struct {
	log logx.Logger

	mu    sync.Mutex
	polls *os.File
	runs  *os.File
}

func openFile(cfg Config, log logx.Logger) (Journal, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	pf, err := os.OpenFile(prefix+".polls.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(prefix+".runs.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = pf.Close()
		return nil, err
	}
	log.Debug("journal opened", logx.String("driver", "file"), logx.String("prefix", prefix))
	return &fileStore{log: log, polls: pf, runs: rf}, nil
}

func (s *fileStore) AppendPoll(ctx context.Context, r PollRecord) error {
	return s.append(ctx, func() *os.File { return s.polls }, r)
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	return s.append(ctx, func() *os.File { return s.runs }, r)
}

func (s *fileStore) append(ctx context.Context, file func() *os.File, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := file()
	if f == nil {
		return ErrClosed
	}
	return json.NewEncoder(f).Encode(v)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, f := range []*os.File{s.polls, s.runs} {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	s.polls, s.runs = nil, nil
	return errors.Join(errs...)
}
