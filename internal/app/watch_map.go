package app

import (
	"strings"
	"time"

	"meetwatch/internal/classifier"
	"meetwatch/internal/config"
	"meetwatch/internal/fetch"
	"meetwatch/internal/schedule"
	"meetwatch/internal/watch"
	logx "meetwatch/pkg/logx"
)

func mapLocation(cfg *Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func mapScheduleOptions(cfg *Config, loc *time.Location) (schedule.Options, error) {
	lead, err := config.ParseOptionalDuration("poll.early_start", cfg.Poll.EarlyStart, 0)
	if err != nil {
		return schedule.Options{}, err
	}
	return schedule.Options{Location: loc, EarlyStart: lead, Hammer: cfg.Hammer.Enabled}, nil
}

func mapDayPolicy(cfg *Config) schedule.DayPolicy {
	return schedule.DayPolicy{
		RunOnWeekends:   cfg.Days.RunOnWeekends,
		OverrideDays:    cfg.Days.OverrideDays,
		OverridePeriods: periodDefs(cfg.Days.OverridePeriods),
	}
}

func periodDefs(in []config.PeriodConfig) []schedule.PeriodDef {
	out := make([]schedule.PeriodDef, 0, len(in))
	for _, p := range in {
		out = append(out, schedule.PeriodDef{Key: p.Key, Start: p.Start, End: p.End})
	}
	return out
}

// linkDefs converts the configured links. On override days only links whose
// period exists in the override set are kept; the rest are reported as
// skipped.
func linkDefs(cfg *Config, plan schedule.DayPlan) (links []schedule.LinkDef, skipped []string) {
	keys := map[int]bool{}
	for i, p := range plan.Periods {
		k := p.Key
		if k == 0 {
			k = i + 1
		}
		keys[k] = true
	}
	for _, l := range cfg.Links {
		if plan.Override && !cfg.Hammer.Enabled && !keys[l.Period] {
			skipped = append(skipped, l.Name)
			continue
		}
		links = append(links, schedule.LinkDef{
			Name:    l.Name,
			Owner:   l.Owner,
			Period:  l.Period,
			Channel: l.Channel,
			URL:     l.URL,
			Enabled: l.IsEnabled(),
		})
	}
	return links, skipped
}

func mapWatchConfig(cfg *Config, runID string) (watch.Config, error) {
	out := watch.Config{RunID: runID}
	var err error
	if out.Cadence, err = config.ParseDurationField("poll.cadence", cfg.Poll.Cadence); err != nil {
		return out, err
	}
	if out.HammerCadence, err = config.ParseDurationField("hammer.delay", cfg.Hammer.Delay); err != nil {
		return out, err
	}
	if out.ResetBackoff, err = config.ParseDurationField("poll.reset_backoff", cfg.Poll.ResetBackoff); err != nil {
		return out, err
	}
	if out.ResetBackoffMax, err = config.ParseDurationField("poll.reset_backoff_max", cfg.Poll.ResetBackoffMax); err != nil {
		return out, err
	}
	return out, nil
}

func mapFetchConfig(cfg *Config) (fetch.Config, error) {
	b := cfg.Browser
	out := fetch.Config{
		Backend:     strings.TrimSpace(b.Backend),
		Headless:    b.IsHeadless(),
		ExecPath:    strings.TrimSpace(b.ExecPath),
		UserDataDir: strings.TrimSpace(b.UserDataDir),
		UserAgent:   strings.TrimSpace(b.UserAgent),
	}
	var err error
	if out.Timeout, err = config.ParseDurationField("browser.fetch_timeout", b.FetchTimeout); err != nil {
		return out, err
	}
	if out.Settle, err = config.ParseOptionalDuration("browser.settle", b.Settle, 0); err != nil {
		return out, err
	}
	return out, nil
}

func mapClassifierConfig(cfg *Config) classifier.Config {
	return classifier.Config{NativeHosts: cfg.Detector.NativeHosts}
}

func mapLoggingConfig(cfg *Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Forward: logx.ForwardConfig{
			Enabled:    l.Forward.Enabled,
			MinLevel:   l.Forward.MinLevel,
			RatePerSec: l.Forward.RatePerSec,
		},
	}
}
