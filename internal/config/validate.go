package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"meetwatch/internal/schedule"
	logx "meetwatch/pkg/logx"
)

// Validate checks the whole configuration and reports every problem at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is empty")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	addf := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			addf("timezone: invalid %q: %w", tz, err)
		}
	}

	for _, d := range cfg.durationFields() {
		_, err := ParseDurationField(d.path, d.raw)
		add(err)
	}

	keys := validatePeriods("periods", cfg.Periods, &errs)
	if len(cfg.Periods) == 0 && !cfg.Hammer.Enabled {
		addf("periods: at least one period is required")
	}
	validatePeriods("days.override_periods", cfg.Days.OverridePeriods, &errs)
	for i, d := range cfg.Days.OverrideDays {
		if !schedule.ValidDate(d) {
			addf("days.override_days[%d]: invalid date %q (want YYYY-MM-DD)", i, d)
		}
	}
	if len(cfg.Days.OverrideDays) > 0 && len(cfg.Days.OverridePeriods) == 0 {
		addf("days.override_periods: required when override_days is set")
	}

	if len(cfg.Links) == 0 {
		addf("links: at least one link is required")
	}
	overrideKeys := periodKeys(cfg.Days.OverridePeriods)
	for i, l := range cfg.Links {
		p := fmt.Sprintf("links[%d]", i)
		if strings.TrimSpace(l.Name) == "" {
			addf("%s.name: required", p)
		}
		if u, err := url.Parse(strings.TrimSpace(l.URL)); err != nil || u.Scheme == "" || u.Host == "" {
			addf("%s.url: invalid %q", p, l.URL)
		}
		if !cfg.Hammer.Enabled && !keys[l.Period] && !overrideKeys[l.Period] {
			addf("%s.period: no period with key %d", p, l.Period)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Browser.Backend)) {
	case "", "chromedp", "chrome", "chromedriver", "http":
	default:
		addf("browser.backend: unknown %q", cfg.Browser.Backend)
	}

	add(validateNotify(cfg.Notify))

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			addf("logging.level: unknown %q", lvl)
		}
	}
	if lvl := strings.TrimSpace(cfg.Logging.Forward.MinLevel); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			addf("logging.forward.min_level: unknown %q", lvl)
		}
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "file", "jsonl", "sqlite", "sqlite3":
		default:
			addf("storage.driver: unknown %q", cfg.Storage.Driver)
		}
	}

	return errors.Join(errs...)
}

func validatePeriods(path string, periods []PeriodConfig, errs *[]error) map[int]bool {
	seen := make(map[int]bool, len(periods))
	for i, p := range periods {
		key := p.Key
		if key == 0 {
			key = i + 1
		}
		at := fmt.Sprintf("%s[%d]", path, i)
		if seen[key] {
			*errs = append(*errs, fmt.Errorf("%s.key: duplicate key %d", at, key))
		}
		seen[key] = true
		sh, sm, err := schedule.ParseClock(p.Start)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s.start: %w", at, err))
		}
		eh, em, err2 := schedule.ParseClock(p.End)
		if err2 != nil {
			*errs = append(*errs, fmt.Errorf("%s.end: %w", at, err2))
		}
		if err == nil && err2 == nil && eh*60+em <= sh*60+sm {
			*errs = append(*errs, fmt.Errorf("%s: end %s is not after start %s", at, p.End, p.Start))
		}
	}
	return seen
}

func periodKeys(periods []PeriodConfig) map[int]bool {
	out := make(map[int]bool, len(periods))
	for i, p := range periods {
		if p.Key == 0 {
			out[i+1] = true
		} else {
			out[p.Key] = true
		}
	}
	return out
}

func validateNotify(n NotifyConfig) error {
	var errs []error
	backend := strings.ToLower(strings.TrimSpace(n.Backend))
	if n.DryRun && backend == "" {
		backend = "log"
	}
	switch backend {
	case "log":
	case "discord":
		if !n.DryRun && strings.TrimSpace(n.Discord.WebhookURL) == "" {
			errs = append(errs, errors.New("notify.discord.webhook_url: required for discord backend"))
		}
	case "telegram":
		if !n.DryRun && strings.TrimSpace(n.Telegram.Token) == "" {
			errs = append(errs, errors.New("notify.telegram.token: required for telegram backend"))
		}
		if !n.DryRun && n.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notify.telegram.chat_id: required for telegram backend"))
		}
	case "pushover":
		if !n.DryRun && (strings.TrimSpace(n.Pushover.Token) == "" || strings.TrimSpace(n.Pushover.User) == "") {
			errs = append(errs, errors.New("notify.pushover: token and user are required for pushover backend"))
		}
	case "":
		errs = append(errs, errors.New("notify.backend: required (discord, telegram, pushover or log)"))
	default:
		errs = append(errs, fmt.Errorf("notify.backend: unknown %q", n.Backend))
	}
	bounds := []struct {
		path string
		v    int
	}{
		{"notify.workers", n.Workers},
		{"notify.queue_size", n.QueueSize},
		{"notify.rate_per_sec", n.RatePerSec},
		{"notify.retry_max", n.RetryMax},
	}
	for _, b := range bounds {
		if b.v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", b.path))
		}
	}
	return errors.Join(errs...)
}
