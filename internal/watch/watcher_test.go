package watch

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"meetwatch/internal/classifier"
	"meetwatch/internal/eventbus"
	"meetwatch/internal/fetch"
	"meetwatch/internal/poller"
	"meetwatch/internal/schedule"
	kit "meetwatch/internal/transport"
	logx "meetwatch/pkg/logx"
)

const (
	htmlOpen    = "<title>Meet</title>Ready to join?"
	htmlWaiting = "<title>Meet</title>Check your meeting code"
	htmlExpired = "<title>Meet</title>Your meeting code has expired"
	htmlReauth  = "<title>Meet</title>Not your computer?"
	htmlUnknown = "<title>Captcha</title>please verify"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
	return nil
}

// step is one scripted fetch result.
type step struct {
	html string
	err  error
}

// scriptFetcher replays per-URL scripts; the last step repeats.
type scriptFetcher struct {
	mu      sync.Mutex
	scripts map[string][]step
	calls   map[string]int
	resets  int
}

func newScriptFetcher(scripts map[string][]step) *scriptFetcher {
	return &scriptFetcher{scripts: scripts, calls: map[string]int{}}
}

func (f *scriptFetcher) Fetch(ctx context.Context, url string) (fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	steps := f.scripts[url]
	n := f.calls[url]
	f.calls[url] = n + 1
	if len(steps) == 0 {
		return fetch.Page{URL: url, HTML: htmlWaiting}, nil
	}
	s := steps[min(n, len(steps)-1)]
	if s.err != nil {
		return fetch.Page{}, s.err
	}
	return fetch.Page{URL: url, HTML: s.html, Title: "Meet"}, nil
}

func (f *scriptFetcher) Reset(ctx context.Context) error {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	return nil
}

func (f *scriptFetcher) callsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type recorder struct {
	mu          sync.Mutex
	announced   []kit.Message
	escalations []string
	aborts      int
}

func (r *recorder) Notify(ctx context.Context, m kit.Message) error {
	r.mu.Lock()
	r.announced = append(r.announced, m)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Escalate(ctx context.Context, detail string, abort bool) error {
	r.mu.Lock()
	r.escalations = append(r.escalations, detail)
	if abort {
		r.aborts++
	}
	r.mu.Unlock()
	return nil
}

var day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func link(name, url string, period int) schedule.Link {
	return schedule.Link{Name: name, Owner: "Mr. T", PeriodKey: period, Channel: "role-" + name, URL: url, Enabled: true}
}

type harness struct {
	clock   *fakeClock
	fetcher *scriptFetcher
	rec     *recorder
	bus     eventbus.Bus
	w       *Watcher
}

func newHarness(t *testing.T, start time.Time, sched *schedule.Schedule, scripts map[string][]step) *harness {
	t.Helper()
	h := &harness{
		clock:   &fakeClock{now: start},
		fetcher: newScriptFetcher(scripts),
		rec:     &recorder{},
		bus:     eventbus.New(),
	}
	p := poller.New(h.fetcher, classifier.New(classifier.Config{}), logx.Nop())
	w, err := New(Config{RunID: "test", Cadence: 5 * time.Second, ResetBackoff: time.Second, ResetBackoffMax: 4 * time.Second}, sched, Deps{
		Poller:    p,
		Fetcher:   h.fetcher,
		Notifier:  h.rec,
		Escalator: h.rec,
		Clock:     h.clock,
		Bus:       h.bus,
		Log:       logx.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.w = w
	return h
}

func twoPeriods(a, b schedule.Link) *schedule.Schedule {
	return &schedule.Schedule{
		Periods: []schedule.Period{
			{Key: 1, Start: at(9, 0), End: at(10, 0)},
			{Key: 2, Start: at(10, 0), End: at(11, 0)},
		},
		Links: [][]schedule.Link{{a}, {b}},
	}
}

func TestRunOpenThenExpired(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	b := link("Art", "https://meet.google.com/bbb", 2)
	h := newHarness(t, at(8, 0), twoPeriods(a, b), map[string][]step{
		a.URL: {{html: htmlWaiting}, {html: htmlWaiting}, {html: htmlOpen}},
		b.URL: {{html: htmlExpired}},
	})

	rep, err := h.w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Reason != StopAllDone {
		t.Fatalf("Reason = %s, want %s", rep.Reason, StopAllDone)
	}
	if len(h.rec.announced) != 1 || h.rec.announced[0].Mention != "role-Math" {
		t.Fatalf("announced = %+v", h.rec.announced)
	}
	if len(h.rec.escalations) != 1 || !strings.Contains(h.rec.escalations[0], "Art") || h.rec.aborts != 0 {
		t.Fatalf("escalations = %v aborts=%d", h.rec.escalations, h.rec.aborts)
	}
	if got := h.fetcher.callsFor(a.URL); got != 3 {
		t.Fatalf("Math polled %d times, want 3", got)
	}
	if got := h.fetcher.callsFor(b.URL); got != 1 {
		t.Fatalf("Art polled %d times, want 1", got)
	}
	if now := h.clock.Now(); now.Before(at(10, 0)) || !now.Before(at(10, 1)) {
		t.Fatalf("finished at %s, want shortly after 10:00", now.Format("15:04:05"))
	}
	if len(rep.Pending) != 0 || len(rep.Expired) != 0 {
		t.Fatalf("pending=%v expired=%v", rep.Pending, rep.Expired)
	}
}

func TestRunReauthAborts(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	b := link("Art", "https://meet.google.com/bbb", 2)
	h := newHarness(t, at(9, 30), twoPeriods(a, b), map[string][]step{
		a.URL: {{html: htmlReauth}},
		b.URL: {{html: htmlOpen}},
	})

	rep, err := h.w.Run(context.Background())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if rep.Reason != StopAborted || rep.AbortDetail != "Bot is not logged in." {
		t.Fatalf("report = %+v", rep)
	}
	if h.rec.aborts != 1 || len(h.rec.escalations) != 1 {
		t.Fatalf("escalations = %v aborts = %d", h.rec.escalations, h.rec.aborts)
	}
	if h.fetcher.callsFor(b.URL) != 0 || len(h.rec.announced) != 0 {
		t.Fatal("nothing may be polled or announced after an abort")
	}
	if h.w.Snapshot().State != StateFinished {
		t.Fatalf("state = %s", h.w.Snapshot().State)
	}
}

func TestRunTimesOutWithoutNotification(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	b := link("Art", "https://meet.google.com/bbb", 2)
	sched := twoPeriods(a, b)
	h := newHarness(t, at(9, 0), sched, map[string][]step{
		a.URL: {{html: htmlWaiting}},
		b.URL: {{html: htmlWaiting}},
	})

	rep, err := h.w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Reason != StopScheduleElapsed {
		t.Fatalf("Reason = %s", rep.Reason)
	}
	if len(h.rec.announced) != 0 || len(h.rec.escalations) != 0 {
		t.Fatalf("unexpected output: %+v %v", h.rec.announced, h.rec.escalations)
	}
	if !slices.Equal(rep.Expired, []string{"Math", "Art"}) {
		t.Fatalf("expired = %v", rep.Expired)
	}
	if len(rep.Pending) != 0 {
		t.Fatalf("pending = %v", rep.Pending)
	}
	for _, l := range h.w.Snapshot().Links {
		if !l.Done {
			t.Fatalf("link %s not done after its window closed", l.Name)
		}
	}
	end := sched.End()
	if now := h.clock.Now(); now.Before(end) || now.After(end.Add(5*time.Second)) {
		t.Fatalf("finished at %s, want within one cadence of %s", now, end)
	}
	// 12 polls per minute for one hour each.
	for _, l := range []schedule.Link{a, b} {
		if got := h.fetcher.callsFor(l.URL); got != 720 {
			t.Fatalf("%s polled %d times, want 720", l.Name, got)
		}
	}
}

func TestSinglePeriodWindowCloses(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	sched := &schedule.Schedule{
		Periods: []schedule.Period{{Key: 1, Start: at(9, 0), End: at(9, 45)}},
		Links:   [][]schedule.Link{{a}},
	}
	h := newHarness(t, at(9, 0), sched, map[string][]step{a.URL: {{html: htmlWaiting}}})

	rep, err := h.w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Reason != StopScheduleElapsed || !slices.Equal(rep.Expired, []string{"Math"}) || len(rep.Pending) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	snap := h.w.Snapshot()
	if len(snap.Links) != 1 || !snap.Links[0].Done {
		t.Fatalf("snapshot links = %+v", snap.Links)
	}
}

func TestLateStartSkipsClosedPeriodsWithoutWaiting(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	b := link("Art", "https://meet.google.com/bbb", 2)
	h := newHarness(t, at(10, 30), twoPeriods(a, b), map[string][]step{
		b.URL: {{html: htmlOpen}},
	})

	rep, err := h.w.Run(context.Background())
	if err != nil || rep.Reason != StopAllDone {
		t.Fatalf("Run: %v %+v", err, rep)
	}
	if h.fetcher.callsFor(a.URL) != 0 || !slices.Equal(rep.Expired, []string{"Math"}) {
		t.Fatalf("Math polls=%d expired=%v", h.fetcher.callsFor(a.URL), rep.Expired)
	}
	if got := h.clock.Now(); !got.Equal(at(10, 30)) {
		t.Fatalf("finished at %s, want 10:30:00 with no cadence spent on the closed period", got.Format("15:04:05"))
	}
}

func TestDoneLinksAreNotPolledAgain(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	c := link("Bio", "https://meet.google.com/ccc", 1)
	sched := &schedule.Schedule{
		Periods: []schedule.Period{{Key: 1, Start: at(9, 0), End: at(10, 0)}},
		Links:   [][]schedule.Link{{a, c}},
	}
	h := newHarness(t, at(9, 0), sched, map[string][]step{
		a.URL: {{html: htmlOpen}},
		c.URL: {{html: htmlWaiting}, {html: htmlWaiting}, {html: htmlWaiting}, {html: htmlOpen}},
	})

	events, unsub := h.bus.Subscribe(4096)
	defer unsub()

	rep, err := h.w.Run(context.Background())
	if err != nil || rep.Reason != StopAllDone {
		t.Fatalf("Run: %v %+v", err, rep)
	}
	if got := h.fetcher.callsFor(a.URL); got != 1 {
		t.Fatalf("open link polled %d times, want 1", got)
	}
	if got := len(h.rec.announced); got != 2 {
		t.Fatalf("announced %d, want 2", got)
	}

	linkDone := map[string]int{}
	for len(events) > 0 {
		e := <-events
		if d, ok := e.Data.(eventbus.LinkDone); ok {
			linkDone[d.Link]++
		}
	}
	if linkDone["Math"] != 1 || linkDone["Bio"] != 1 {
		t.Fatalf("link.done events = %v, want one per link", linkDone)
	}
	for _, l := range h.w.Snapshot().Links {
		if !l.Done {
			t.Fatalf("link %s not done in snapshot", l.Name)
		}
	}
}

func TestZeroEnabledPeriodIsSkipped(t *testing.T) {
	t.Parallel()
	off := link("Gym", "https://meet.google.com/ggg", 1)
	off.Enabled = false
	b := link("Art", "https://meet.google.com/bbb", 2)
	h := newHarness(t, at(9, 0), twoPeriods(off, b), map[string][]step{
		b.URL: {{html: htmlOpen}},
	})

	rep, err := h.w.Run(context.Background())
	if err != nil || rep.Reason != StopAllDone {
		t.Fatalf("Run: %v %+v", err, rep)
	}
	if h.fetcher.callsFor(off.URL) != 0 {
		t.Fatal("disabled link was polled")
	}
	if h.clock.Now().Before(at(10, 0)) {
		t.Fatal("second period polled before it started")
	}
	if len(h.rec.announced) != 1 {
		t.Fatalf("announced = %d", len(h.rec.announced))
	}
}

func TestNonNativeLinkAnnouncedWithoutFetch(t *testing.T) {
	t.Parallel()
	z := link("Zoom", "https://zoom.us/j/1", 1)
	sched := &schedule.Schedule{
		Periods: []schedule.Period{{Key: 1, Start: at(9, 0), End: at(10, 0)}},
		Links:   [][]schedule.Link{{z}},
	}
	h := newHarness(t, at(9, 0), sched, nil)
	rep, err := h.w.Run(context.Background())
	if err != nil || rep.Reason != StopAllDone {
		t.Fatalf("Run: %v %+v", err, rep)
	}
	if h.fetcher.callsFor(z.URL) != 0 {
		t.Fatal("non-native link was fetched")
	}
	if len(h.rec.announced) != 1 {
		t.Fatalf("announced = %d", len(h.rec.announced))
	}
}

func TestUnrecognizedEscalatesOncePerIncident(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	sched := &schedule.Schedule{
		Periods: []schedule.Period{{Key: 1, Start: at(9, 0), End: at(9, 5)}},
		Links:   [][]schedule.Link{{a}},
	}
	h := newHarness(t, at(9, 0), sched, map[string][]step{
		a.URL: {
			{html: htmlUnknown}, {html: htmlUnknown}, {html: htmlUnknown},
			{html: htmlWaiting},
			{html: htmlUnknown}, {html: htmlOpen},
		},
	})

	if _, err := h.w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(h.rec.escalations); got != 2 {
		t.Fatalf("escalations = %d (%v), want 2", got, h.rec.escalations)
	}
}

func TestFetchFailuresResetFetcher(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	sched := &schedule.Schedule{
		Periods: []schedule.Period{{Key: 1, Start: at(9, 0), End: at(10, 0)}},
		Links:   [][]schedule.Link{{a}},
	}
	h := newHarness(t, at(9, 0), sched, map[string][]step{
		a.URL: {
			{err: fetch.ErrSessionInvalid},
			{err: fetch.ErrTimeout},
			{err: fetch.ErrTimeout},
			{html: htmlOpen},
		},
	})

	rep, err := h.w.Run(context.Background())
	if err != nil || rep.Reason != StopAllDone {
		t.Fatalf("Run: %v %+v", err, rep)
	}
	if h.fetcher.resets != 3 || rep.Resets != 3 {
		t.Fatalf("resets = %d report=%d, want 3", h.fetcher.resets, rep.Resets)
	}
	if len(h.rec.escalations) != 0 {
		t.Fatalf("fetch failures must not escalate: %v", h.rec.escalations)
	}
	// three cadences plus 1s and 2s of backoff
	if got, want := h.clock.Now().Sub(at(9, 0)), 3*5*time.Second+3*time.Second; got != want {
		t.Fatalf("elapsed = %v, want %v", got, want)
	}
}

func TestHammerUsesHammerCadence(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	sched := &schedule.Schedule{
		Periods: []schedule.Period{{Key: 1, Start: day, End: day.Add(24 * time.Hour)}},
		Links:   [][]schedule.Link{{a}},
		Hammer:  true,
	}
	clock := &fakeClock{now: at(12, 0)}
	f := newScriptFetcher(map[string][]step{a.URL: {{html: htmlWaiting}, {html: htmlOpen}}})
	rec := &recorder{}
	w, err := New(Config{HammerCadence: 20 * time.Second}, sched, Deps{
		Poller:    poller.New(f, classifier.New(classifier.Config{}), logx.Nop()),
		Fetcher:   f,
		Notifier:  rec,
		Escalator: rec,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := clock.Now().Sub(at(12, 0)); got != 20*time.Second {
		t.Fatalf("elapsed = %v, want one hammer cadence", got)
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	a := link("Math", "https://meet.google.com/aaa", 1)
	sched := &schedule.Schedule{
		Periods: []schedule.Period{{Key: 1, Start: at(9, 0), End: at(10, 0)}},
		Links:   [][]schedule.Link{{a}},
	}
	h := newHarness(t, at(8, 0), sched, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := h.w.Run(ctx)
	if !errors.Is(err, context.Canceled) || rep.Reason != StopCanceled {
		t.Fatalf("err=%v reason=%s", err, rep.Reason)
	}
	if h.fetcher.callsFor(a.URL) != 0 {
		t.Fatal("polled after cancellation")
	}
}

func TestNewRejectsIncompleteDeps(t *testing.T) {
	t.Parallel()
	sched := &schedule.Schedule{
		Periods: []schedule.Period{{Key: 1, Start: at(9, 0), End: at(10, 0)}},
		Links:   [][]schedule.Link{{}},
	}
	if _, err := New(Config{}, sched, Deps{}); err == nil {
		t.Fatal("expected error for missing deps")
	}
	if _, err := New(Config{}, &schedule.Schedule{}, Deps{}); err == nil {
		t.Fatal("expected error for empty schedule")
	}
}
