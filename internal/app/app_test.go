package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"meetwatch/internal/config"
	"meetwatch/internal/schedule"
	"meetwatch/internal/storage"
	"meetwatch/internal/watch"
	logx "meetwatch/pkg/logx"
)

func baseConfig() *Config {
	return &Config{
		Timezone: "UTC",
		Periods: []config.PeriodConfig{
			{Start: "08:00", End: "09:00"},
			{Start: "09:10", End: "10:00"},
		},
		Links: []config.LinkConfig{
			{Name: "Math", Period: 1, URL: "https://meet.google.com/abc-defg-hij"},
			{Name: "Art", Period: 2, URL: "https://zoom.us/j/1"},
		},
		Notify:  config.NotifyConfig{Backend: "log"},
		Logging: config.LoggingConfig{Level: "error"},
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{context.Canceled, ExitOK},
		{fmt.Errorf("%w: reauth", watch.ErrAborted), ExitAborted},
		{fmt.Errorf("%w: bad", ErrConfig), ExitFailure},
		{errors.New("browser gone"), ExitFailure},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Links[0].Period = 9
	cfg.Notify.Backend = ""
	_, err := New(cfg, nil, Options{})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v", err)
	}
	if ExitCode(err) != ExitFailure {
		t.Fatalf("exit = %d", ExitCode(err))
	}
}

func TestEarlyStartMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 0},
		{"0s", -1},
		{"2m", 2 * time.Minute},
	}
	for _, tc := range cases {
		cfg := baseConfig()
		cfg.Poll.EarlyStart = tc.raw
		opts, err := mapScheduleOptions(cfg, time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		if opts.EarlyStart != tc.want {
			t.Errorf("%q: lead = %v, want %v", tc.raw, opts.EarlyStart, tc.want)
		}
	}
}

func TestDedupWindowMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Minute},
		{"0s", config.Off},
		{"30s", 30 * time.Second},
	}
	for _, tc := range cases {
		cfg := baseConfig()
		cfg.Notify.DedupWindow = tc.raw
		ncfg, drain, err := mapNotifierConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if ncfg.DedupWindow != tc.want || drain != defaultDrainTimeout {
			t.Errorf("%q: window = %v drain = %v, want %v", tc.raw, ncfg.DedupWindow, drain, tc.want)
		}
	}
}

func TestLinkDefsOnOverrideDay(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Days = config.DaysConfig{
		OverrideDays:    []string{"2024-03-04"},
		OverridePeriods: []config.PeriodConfig{{Key: 2, Start: "13:00", End: "14:00"}},
	}
	day := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	plan := schedule.PlanDay(day, periodDefs(cfg.Periods), mapDayPolicy(cfg))
	if !plan.Override {
		t.Fatalf("plan = %+v", plan)
	}
	links, skipped := linkDefs(cfg, plan)
	if len(links) != 1 || links[0].Name != "Art" || !slices.Equal(skipped, []string{"Math"}) {
		t.Fatalf("links=%+v skipped=%v", links, skipped)
	}
	sched, err := schedule.Build(day, plan.Periods, links, schedule.Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := sched.First().Start; got.Hour() != 12 || got.Minute() != 55 {
		t.Fatalf("override start = %v", got)
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sc     *config.StorageConfig
		on, ok bool
		driver string
	}{
		{nil, false, true, ""},
		{&config.StorageConfig{Driver: "none"}, false, true, ""},
		{&config.StorageConfig{Driver: "jsonl", Path: "j"}, true, true, "file"},
		{&config.StorageConfig{Driver: "sqlite"}, false, false, ""},
		{&config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "2s"}, true, true, "sqlite"},
		{&config.StorageConfig{Driver: "mongo"}, false, false, ""},
	}
	for i, tc := range cases {
		cfg := baseConfig()
		cfg.Storage = tc.sc
		sc, on, err := mapStorageConfig(cfg)
		if (err == nil) != tc.ok || on != tc.on || sc.Driver != tc.driver {
			t.Errorf("case %d: cfg=%+v on=%v err=%v", i, sc, on, err)
		}
	}
}

func TestMapPprofConfigRefusesPublicBind(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Pprof = config.PprofConfig{Enabled: true, Addr: "0.0.0.0:6060"}
	if _, err := mapPprofConfig(cfg); err == nil {
		t.Fatal("expected error")
	}
	cfg.Pprof.Token = "t"
	pc, err := mapPprofConfig(cfg)
	if err != nil || pc.ReadTimeout != 5*time.Second || pc.IdleTimeout != 2*time.Minute {
		t.Fatalf("pc=%+v err=%v", pc, err)
	}
}

func TestBuildSender(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Notify = config.NotifyConfig{Backend: "telegram", DryRun: true}
	s, err := buildSender(cfg, time.Second, logx.Nop())
	if err != nil || s.Name() != "log" {
		t.Fatalf("dry run sender = %v err=%v", s, err)
	}
	cfg.Notify = config.NotifyConfig{Backend: "pushover", Pushover: config.PushoverConfig{Token: "a", User: "b"}}
	if s, err = buildSender(cfg, time.Second, logx.Nop()); err != nil || s.Name() != "pushover" {
		t.Fatalf("pushover sender = %v err=%v", s, err)
	}
	cfg.Notify = config.NotifyConfig{Backend: "discord", Discord: config.DiscordConfig{WebhookURL: "https://example.com/nope"}}
	if _, err = buildSender(cfg, time.Second, logx.Nop()); err == nil {
		t.Fatal("expected webhook url error")
	}
}

func TestRunDaySkipsWeekend(t *testing.T) {
	t.Parallel()
	a, err := New(baseConfig(), nil, Options{Once: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sat := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	rep, err := a.RunDay(context.Background(), sat)
	if err != nil || rep.RunID != "" {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
}

func TestRunOnceHammerEndToEnd(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Hammer = config.HammerConfig{Enabled: true}
	cfg.Days.RunOnWeekends = true
	cfg.Links = []config.LinkConfig{{Name: "Art", Period: 2, URL: "https://zoom.us/j/1", Channel: "42"}}
	cfg.Browser.Backend = "http"
	cfg.Storage = &config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "journal")}

	a, err := New(cfg, nil, Options{Once: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	doc := a.Status().(StatusDoc)
	if doc.Last == nil || doc.Last.Reason != watch.StopAllDone || doc.Last.Announced != 1 {
		t.Fatalf("last = %+v", doc.Last)
	}
	if doc.Notifier.Sent != 1 {
		t.Fatalf("notifier stats = %+v", doc.Notifier)
	}

	runs := readJSONL[storage.RunRecord](t, filepath.Join(dir, "journal.runs.jsonl"))
	if len(runs) != 1 || runs[0].Reason != "all_done" || runs[0].RunID == "" {
		t.Fatalf("runs = %+v", runs)
	}
	polls := readJSONL[storage.PollRecord](t, filepath.Join(dir, "journal.polls.jsonl"))
	if len(polls) != 1 || polls[0].Verdict != "open" || polls[0].RunID != runs[0].RunID {
		t.Fatalf("polls = %+v", polls)
	}
}

func readJSONL[T any](t *testing.T, path string) []T {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []T
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		out = append(out, v)
	}
	return out
}
