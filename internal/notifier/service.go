package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"meetwatch/internal/eventbus"
	rtsup "meetwatch/internal/runtime/supervisor"
	kit "meetwatch/internal/transport"
	logx "meetwatch/pkg/logx"
)

var (
	ErrQueueFull  = errors.New("notifier queue full")
	ErrStopped    = errors.New("notifier stopped")
	ErrNotStarted = errors.New("notifier not started")
)

type job struct {
	m   kit.Message
	key string
}

// Service is the async delivery pipeline. It is safe for concurrent use.
type Service struct {
	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus
	cfg    Config

	limiter *rate.Limiter

	mu        sync.Mutex
	queue     chan job
	accepting bool
	sup       *rtsup.Supervisor
	enqWG     sync.WaitGroup
	stopped   bool

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
	stats   Stats
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	cfg = withDefaults(cfg)
	return &Service{
		log:     log,
		sender:  sender,
		bus:     bus,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup:   map[string]time.Time{},
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 500
	}
	return cfg
}

// Sink is the name of the configured sender.
func (s *Service) Sink() string {
	if s.sender == nil {
		return "none"
	}
	return s.sender.Name()
}

// Start launches the worker pool. It is a no-op when already started or stopped.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || s.stopped {
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))))

	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("notifier.worker.%d", i), rtsup.RestartPolicy{}, func(c context.Context) error {
			return s.workerLoop(c, q)
		})
	}
}

// Stop refuses new messages and drains the queue until ctx expires, then
// abandons whatever is left.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped || s.queue == nil {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.accepting = false
	q, sup := s.queue, s.sup
	s.mu.Unlock()

	s.enqWG.Wait()
	close(q)

	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("notifier drain deadline reached", logx.Int("abandoned", len(q)))
		sup.Cancel()
		_ = sup.Wait(context.Background())
	}
}

// Notify enqueues m for delivery. It never blocks on the network.
func (s *Service) Notify(ctx context.Context, m kit.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.accepting {
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return ErrStopped
		}
		return ErrNotStarted
	}
	q := s.queue
	s.enqWG.Add(1)
	s.mu.Unlock()
	defer s.enqWG.Done()

	key := dedupKey(m)
	// Escalations are already limited to one per incident by the caller.
	if s.cfg.DedupWindow > 0 && m.Kind != kit.KindEscalation && !s.dedupAllow(key, time.Now()) {
		s.count(func(st *Stats) { st.Deduped++ })
		s.publish(m, key, "deduped", nil)
		return nil
	}

	select {
	case q <- job{m: m, key: key}:
		s.count(func(st *Stats) { st.Queued++ })
		s.publish(m, key, "queued", nil)
		return nil
	default:
		s.count(func(st *Stats) { st.Dropped++ })
		s.publish(m, key, "dropped", ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) Stats() Stats {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return s.stats
}

func (s *Service) count(fn func(*Stats)) {
	s.hmu.Lock()
	fn(&s.stats)
	s.hmu.Unlock()
}

func (s *Service) publish(m kit.Message, key, status string, err error) {
	n := eventbus.Notification{Kind: string(m.Kind), Sink: s.Sink(), Status: status, Key: key}
	if err != nil {
		n.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicNotification, Data: n})
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-q:
			if !ok {
				return nil
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	if s.sender == nil {
		return
	}
	attempts := 1 + s.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		err := s.sender.Send(callCtx, j.m)
		cancel()
		if err == nil {
			s.hmu.Lock()
			s.stats.Sent++
			s.history = append(s.history, HistoryItem{At: time.Now(), Kind: string(j.m.Kind), Text: j.m.Text})
			if len(s.history) > 100 {
				s.history = s.history[len(s.history)-100:]
			}
			s.hmu.Unlock()
			s.publish(j.m, j.key, "sent", nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed",
			logx.String("sink", s.sender.Name()),
			logx.Int("attempt", attempt),
			logx.Int("max", attempts),
			logx.Err(err),
		)
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(s.cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.count(func(st *Stats) { st.Failed++ })
	s.log.Warn("notification not delivered",
		logx.String("sink", s.sender.Name()),
		logx.String("kind", string(j.m.Kind)),
		logx.Err(lastErr),
	)
	s.publish(j.m, j.key, "failed", lastErr)
}

func dedupKey(m kit.Message) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%s|%s", m.Kind, m.Mention, m.URL, m.Text)
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, now time.Time) bool {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(s.cfg.DedupWindow)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > s.cfg.DedupMaxEntries {
		var oldest string
		var oldestT time.Time
		for k, t := range s.dedup {
			if oldest == "" || t.Before(oldestT) {
				oldest, oldestT = k, t
			}
		}
		delete(s.dedup, oldest)
	}
	return true
}

// retryDelay is the wait before attempt+1: base*2^(attempt-1) capped at
// RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, cfg.RetryMaxDelay)) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}
