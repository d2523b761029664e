package config

import (
	"fmt"
	"strings"
	"time"
)

// Off is returned by ParseOptionalDuration for an explicit zero. Consumers
// treat any negative duration as "feature disabled".
const Off time.Duration = -1

// ParseDurationField parses a non-negative duration. An empty value is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault returns def when raw is empty or zero. Use it for
// bounds that cannot be switched off (timeouts, drain limits).
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseOptionalDuration is for knobs where "0s" means off: it returns def when
// raw is empty, Off when raw parses to zero, and the value otherwise.
func ParseOptionalDuration(path, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return Off, nil
	}
	return d, nil
}

type durationField struct {
	path, raw string
}

// durationFields lists every duration-valued setting in file order.
func (c *Config) durationFields() []durationField {
	out := []durationField{
		{"poll.cadence", c.Poll.Cadence},
		{"poll.reset_backoff", c.Poll.ResetBackoff},
		{"poll.reset_backoff_max", c.Poll.ResetBackoffMax},
		{"poll.early_start", c.Poll.EarlyStart},
		{"hammer.delay", c.Hammer.Delay},
		{"browser.fetch_timeout", c.Browser.FetchTimeout},
		{"browser.settle", c.Browser.Settle},
		{"notify.retry_base", c.Notify.RetryBase},
		{"notify.retry_max_delay", c.Notify.RetryMaxDelay},
		{"notify.send_timeout", c.Notify.SendTimeout},
		{"notify.dedup_window", c.Notify.DedupWindow},
		{"notify.drain_timeout", c.Notify.DrainTimeout},
		{"pprof.read_timeout", c.Pprof.ReadTimeout},
		{"pprof.write_timeout", c.Pprof.WriteTimeout},
		{"pprof.idle_timeout", c.Pprof.IdleTimeout},
	}
	if c.Storage != nil {
		out = append(out, durationField{"storage.busy_timeout", c.Storage.BusyTimeout})
	}
	return out
}
