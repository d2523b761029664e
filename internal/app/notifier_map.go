package app

import (
	"time"

	"meetwatch/internal/config"
	"meetwatch/internal/notifier"
)

const defaultDrainTimeout = 10 * time.Second

// mapNotifierConfig parses the notify pipeline settings. Zero values are
// left for notifier.New to default. It also returns the shutdown drain bound.
func mapNotifierConfig(cfg *Config) (notifier.Config, time.Duration, error) {
	if cfg == nil {
		return notifier.Config{}, defaultDrainTimeout, nil
	}
	n := cfg.Notify
	out := notifier.Config{
		Workers:    n.Workers,
		QueueSize:  n.QueueSize,
		RatePerSec: n.RatePerSec,
		RetryMax:   n.RetryMax,
	}

	var err error
	if out.RetryBase, err = config.ParseDurationField("notify.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, 0, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notify.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, 0, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notify.send_timeout", n.SendTimeout); err != nil {
		return notifier.Config{}, 0, err
	}
	if out.DedupWindow, err = config.ParseOptionalDuration("notify.dedup_window", n.DedupWindow, time.Minute); err != nil {
		return notifier.Config{}, 0, err
	}
	drain, err := config.ParseDurationOrDefault("notify.drain_timeout", n.DrainTimeout, defaultDrainTimeout)
	if err != nil {
		return notifier.Config{}, 0, err
	}
	return out, drain, nil
}
