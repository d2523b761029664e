// Package watch drives one monitoring run over a built schedule.
//
// The watcher is a single-threaded state machine:
//
//	WaitingForFirstPeriod -> Polling(i) -> AdvancingPeriod -> Polling(j) -> ... -> Finished
//
// It sleeps only at computed points (first period start, next period start,
// poll cadence, fetcher reset backoff) and every sleep honors ctx. Other
// goroutines may read its progress through Snapshot.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"meetwatch/internal/classifier"
	"meetwatch/internal/eventbus"
	"meetwatch/internal/poller"
	"meetwatch/internal/schedule"
	kit "meetwatch/internal/transport"
	logx "meetwatch/pkg/logx"
)

// ErrAborted is returned when a run-fatal verdict stopped the run.
var ErrAborted = errors.New("run aborted")

// Poller checks one link once.
type Poller interface {
	Poll(ctx context.Context, link schedule.Link) poller.Outcome
}

// Resetter re-creates the fetch session.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Notifier enqueues announcements.
type Notifier interface {
	Notify(ctx context.Context, m kit.Message) error
}

// Escalator asks the operator for manual intervention.
type Escalator interface {
	Escalate(ctx context.Context, detail string, abort bool) error
}

type Config struct {
	RunID string
	// Cadence is the pause between scans of the current period.
	Cadence time.Duration
	// HammerCadence replaces Cadence for collapsed all-day schedules.
	HammerCadence time.Duration
	// ResetBackoff is the first wait before resetting a timed-out fetcher;
	// it doubles on consecutive timeouts up to ResetBackoffMax.
	ResetBackoff    time.Duration
	ResetBackoffMax time.Duration
}

const (
	DefaultCadence       = 5 * time.Second
	DefaultHammerCadence = 20 * time.Second
	DefaultResetBackoff  = 10 * time.Second
	DefaultResetMax      = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Cadence <= 0 {
		c.Cadence = DefaultCadence
	}
	if c.HammerCadence <= 0 {
		c.HammerCadence = DefaultHammerCadence
	}
	if c.ResetBackoff <= 0 {
		c.ResetBackoff = DefaultResetBackoff
	}
	if c.ResetBackoffMax < c.ResetBackoff {
		c.ResetBackoffMax = max(DefaultResetMax, c.ResetBackoff)
	}
	return c
}

// Deps are the watcher's collaborators. Clock, Bus and Log may be nil.
type Deps struct {
	Poller    Poller
	Fetcher   Resetter
	Notifier  Notifier
	Escalator Escalator
	Clock     Clock
	Bus       eventbus.Bus
	Log       logx.Logger
}

// StopReason says why a run ended.
type StopReason string

const (
	StopAllDone         StopReason = "all_done"
	StopScheduleElapsed StopReason = "schedule_elapsed"
	StopAborted         StopReason = "aborted"
	StopCanceled        StopReason = "canceled"
)

// Report summarizes a finished run.
type Report struct {
	RunID       string
	Reason      StopReason
	Announced   int
	Escalations int
	Polls       int
	Resets      int
	// Pending names enabled links still unresolved when the run ended.
	Pending []string
	// Expired names links whose window closed while they were still pending.
	Expired []string
	// AbortDetail is the escalation text of the run-fatal verdict.
	AbortDetail string
}

type linkStatus struct {
	polls   int
	verdict string
	at      time.Time
}

// Watcher runs a schedule once. It is not reusable.
type Watcher struct {
	cfg   Config
	sched *schedule.Schedule
	deps  Deps
	log   logx.Logger

	mu        sync.Mutex
	state     State
	cur       int
	done      [][]bool
	status    [][]linkStatus
	polls     int
	startedAt time.Time

	// run-loop only
	incidents map[schedule.Ref]classifier.Verdict
	timeouts  int
	elapsed   bool
	report    Report
}

func New(cfg Config, sched *schedule.Schedule, deps Deps) (*Watcher, error) {
	if sched == nil || len(sched.Periods) == 0 || len(sched.Links) != len(sched.Periods) {
		return nil, errors.New("watch: schedule has no periods")
	}
	if deps.Poller == nil || deps.Fetcher == nil || deps.Notifier == nil || deps.Escalator == nil {
		return nil, errors.New("watch: poller, fetcher, notifier and escalator are required")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	if sched.Hammer {
		cfg.Cadence = cfg.HammerCadence
	}

	w := &Watcher{
		cfg:       cfg,
		sched:     sched,
		deps:      deps,
		log:       log.With(logx.String("comp", "watch")),
		state:     StateIdle,
		done:      make([][]bool, len(sched.Links)),
		status:    make([][]linkStatus, len(sched.Links)),
		incidents: map[schedule.Ref]classifier.Verdict{},
		report:    Report{RunID: cfg.RunID},
	}
	for p, links := range sched.Links {
		w.done[p] = make([]bool, len(links))
		w.status[p] = make([]linkStatus, len(links))
		for i, l := range links {
			w.done[p][i] = !l.Enabled
		}
	}
	return w, nil
}

// Run executes the schedule. It returns a Report in every case; the error is
// ErrAborted (wrapped with the escalation detail) after a run-fatal verdict,
// or ctx.Err() on cancellation.
func (w *Watcher) Run(ctx context.Context) (Report, error) {
	clock := w.deps.Clock
	first, end := w.sched.First(), w.sched.End()

	w.mu.Lock()
	w.startedAt = clock.Now()
	w.mu.Unlock()
	w.publish(eventbus.TopicRunStarted, nil)
	w.log.Info("run started",
		logx.Int("periods", len(w.sched.Periods)),
		logx.Int("links", w.sched.Enabled()),
		logx.Bool("hammer", w.sched.Hammer),
		logx.Time("first_start", first.Start),
		logx.Time("end", end),
	)

	err := w.run(ctx, first, end)
	switch {
	case errors.Is(err, ErrAborted):
		w.report.Reason = StopAborted
	case err != nil:
		w.report.Reason = StopCanceled
	case w.elapsed:
		w.report.Reason = StopScheduleElapsed
	case w.allDone():
		w.report.Reason = StopAllDone
	default:
		w.report.Reason = StopScheduleElapsed
	}
	w.report.Pending = w.pending()
	w.setState(StateFinished)

	fin := eventbus.RunFinished{
		Reason:    string(w.report.Reason),
		Announced: w.report.Announced,
		Pending:   len(w.report.Pending),
		Polls:     w.report.Polls,
	}
	if err != nil {
		fin.Err = err.Error()
	}
	w.publish(eventbus.TopicRunFinished, fin)
	w.log.Info("run finished",
		logx.String("reason", string(w.report.Reason)),
		logx.Int("announced", w.report.Announced),
		logx.Int("escalations", w.report.Escalations),
		logx.Int("polls", w.report.Polls),
		logx.Strings("pending", w.report.Pending),
		logx.Strings("expired", w.report.Expired),
	)
	return w.report, err
}

func (w *Watcher) run(ctx context.Context, first schedule.Period, end time.Time) error {
	clock := w.deps.Clock

	if now := clock.Now(); now.Before(first.Start) {
		w.setState(StateWaitingForPeriod)
		w.log.Info("waiting for first period", logx.Duration("in", first.Start.Sub(now)))
		if err := clock.Sleep(ctx, first.Start.Sub(now)); err != nil {
			return err
		}
	}

	w.setCursor(0)
	for clock.Now().Before(end) {
		if w.periodDone(w.cur) {
			next := w.nextPending(w.cur + 1)
			if next < 0 {
				return nil
			}
			if err := w.advance(ctx, next); err != nil {
				return err
			}
			continue
		}

		w.setState(StatePolling)
		if err := w.scan(ctx); err != nil {
			return err
		}
		if w.periodDone(w.cur) {
			if w.nextPending(w.cur+1) < 0 {
				return nil
			}
			continue
		}
		if err := clock.Sleep(ctx, w.cfg.Cadence); err != nil {
			return err
		}
	}
	w.elapsed = true
	w.expireClosed(clock.Now())
	return nil
}

// expireClosed marks every pending link whose window has closed as done.
func (w *Watcher) expireClosed(now time.Time) {
	for p, period := range w.sched.Periods {
		if now.Before(period.End) {
			continue
		}
		for i, link := range w.sched.Links[p] {
			if !w.isDone(p, i) {
				w.expire(p, i, link)
			}
		}
	}
}

func (w *Watcher) expire(p, i int, link schedule.Link) {
	w.log.Warn("link window closed without opening",
		logx.String("link", link.Name),
		logx.Int("period", w.sched.Periods[p].Key),
	)
	w.markDone(p, i, "window_closed")
	w.report.Expired = append(w.report.Expired, link.Name)
}

// advance moves the cursor to period next, sleeping until it opens.
func (w *Watcher) advance(ctx context.Context, next int) error {
	from := w.cur
	w.setState(StateAdvancing)
	p := w.sched.Periods[next]
	if wait := p.Start.Sub(w.deps.Clock.Now()); wait > 0 {
		w.log.Info("waiting for next period", logx.Int("period", p.Key), logx.Duration("in", wait))
		if err := w.deps.Clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	w.setCursor(next)
	w.publish(eventbus.TopicPeriodChanged, eventbus.PeriodChanged{
		From: w.sched.Periods[from].Key,
		To:   p.Key,
	})
	w.log.Info("period started", logx.Int("period", p.Key), logx.Time("end", p.End))
	return nil
}

// scan polls every pending link of the current period once, in order.
func (w *Watcher) scan(ctx context.Context) error {
	p := w.cur
	period := w.sched.Periods[p]
	for i, link := range w.sched.Links[p] {
		if w.isDone(p, i) {
			continue
		}
		now := w.deps.Clock.Now()
		if !now.Before(period.End) {
			w.expire(p, i, link)
			continue
		}
		if now.Before(period.Start) {
			break
		}
		if err := w.pollOne(ctx, schedule.Ref{Period: p, Index: i}, link); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) pollOne(ctx context.Context, ref schedule.Ref, link schedule.Link) error {
	clock := w.deps.Clock
	started := clock.Now()
	out := w.deps.Poller.Poll(ctx, link)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	w.notePoll(ref, out.Verdict, started)
	w.publish(eventbus.TopicPollVerdict, eventbus.PollVerdict{
		Period:    link.PeriodKey,
		Index:     ref.Index,
		Link:      link.Name,
		URL:       link.URL,
		Verdict:   out.Verdict.String(),
		Signature: out.Signature,
		Detail:    out.Detail,
		Took:      clock.Now().Sub(started),
	})

	if out.Fetched && out.Err == nil {
		w.timeouts = 0
	}

	if out.Notify != nil {
		if err := w.deps.Notifier.Notify(ctx, *out.Notify); err != nil {
			w.log.Warn("announcement not queued", logx.String("link", link.Name), logx.Err(err))
		} else {
			w.log.Info("link is open", logx.String("link", link.Name), logx.String("url", link.URL))
		}
		w.report.Announced++
	}

	if out.Escalate {
		if err := w.escalate(ctx, ref, link, out); err != nil {
			return err
		}
	} else if !out.Verdict.IsFetchFailure() {
		delete(w.incidents, ref)
	}

	if out.Terminal {
		w.markDone(ref.Period, ref.Index, out.Verdict.String())
	}

	if out.ResetFetcher {
		return w.resetFetcher(ctx, out)
	}
	return nil
}

// escalate sends one escalation per incident and returns ErrAborted for
// run-fatal verdicts.
func (w *Watcher) escalate(ctx context.Context, ref schedule.Ref, link schedule.Link, out poller.Outcome) error {
	if last, ok := w.incidents[ref]; ok && last == out.Verdict && !out.Abort {
		w.log.Debug("incident already escalated", logx.String("link", link.Name), logx.String("verdict", out.Verdict.String()))
		return nil
	}
	w.incidents[ref] = out.Verdict
	w.report.Escalations++
	w.publish(eventbus.TopicEscalation, eventbus.Escalation{Link: link.Name, Detail: out.Detail, Abort: out.Abort})
	if err := w.deps.Escalator.Escalate(ctx, out.Detail, out.Abort); err != nil {
		w.log.Error("escalation not queued", logx.String("link", link.Name), logx.Err(err))
	}
	if out.Abort {
		w.report.AbortDetail = out.Detail
		return fmt.Errorf("%w: %s", ErrAborted, out.Detail)
	}
	return nil
}

func (w *Watcher) resetFetcher(ctx context.Context, out poller.Outcome) error {
	if out.Backoff {
		w.timeouts++
		wait := w.cfg.ResetBackoff
		for i := 1; i < w.timeouts && wait < w.cfg.ResetBackoffMax; i++ {
			wait *= 2
		}
		wait = min(wait, w.cfg.ResetBackoffMax)
		if left := w.sched.Periods[w.cur].End.Sub(w.deps.Clock.Now()); left < wait {
			wait = max(left, 0)
		}
		w.setState(StateBackoff)
		w.log.Warn("fetch timed out; resetting fetcher after backoff",
			logx.Duration("backoff", wait),
			logx.Int("consecutive", w.timeouts),
		)
		if err := w.deps.Clock.Sleep(ctx, wait); err != nil {
			return err
		}
		w.setState(StatePolling)
	} else {
		w.log.Warn("fetch session invalid; resetting fetcher")
	}
	w.report.Resets++
	if err := w.deps.Fetcher.Reset(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Error("fetcher reset failed", logx.Err(err))
	}
	return nil
}

func (w *Watcher) publish(topic eventbus.Topic, data any) {
	w.deps.Bus.Publish(eventbus.Event{Topic: topic, RunID: w.cfg.RunID, Time: w.deps.Clock.Now(), Data: data})
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Watcher) setCursor(p int) {
	w.mu.Lock()
	w.cur = p
	w.mu.Unlock()
}

func (w *Watcher) notePoll(ref schedule.Ref, v classifier.Verdict, at time.Time) {
	w.mu.Lock()
	st := &w.status[ref.Period][ref.Index]
	st.polls++
	st.verdict = v.String()
	st.at = at
	w.polls++
	w.mu.Unlock()
	w.report.Polls++
}

// markDone is the only writer of done; entries never go back to false.
func (w *Watcher) markDone(p, i int, verdict string) {
	w.mu.Lock()
	if w.done[p][i] {
		w.mu.Unlock()
		return
	}
	w.done[p][i] = true
	w.mu.Unlock()
	link := w.sched.Links[p][i]
	w.publish(eventbus.TopicLinkDone, eventbus.LinkDone{Period: link.PeriodKey, Index: i, Link: link.Name, Verdict: verdict})
}

func (w *Watcher) isDone(p, i int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done[p][i]
}

func (w *Watcher) periodDone(p int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range w.done[p] {
		if !d {
			return false
		}
	}
	return true
}

// nextPending returns the first period at or after from with a pending link, or -1.
func (w *Watcher) nextPending(from int) int {
	for p := from; p < len(w.sched.Periods); p++ {
		if !w.periodDone(p) {
			return p
		}
	}
	return -1
}

func (w *Watcher) allDone() bool { return w.nextPending(0) < 0 }

func (w *Watcher) pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for p, links := range w.sched.Links {
		for i, l := range links {
			if l.Enabled && !w.done[p][i] {
				out = append(out, l.Name)
			}
		}
	}
	return out
}
