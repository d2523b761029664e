package config

import (
	"reflect"
	"sort"
	"strings"

	logx "meetwatch/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Secrets (tokens, webhook URLs) are only
// reported as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", newCfg.Timezone))
	}
	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs, logx.String("poll.cadence", newCfg.Poll.Cadence))
	}
	if oldCfg.Hammer != newCfg.Hammer {
		changed = append(changed, "hammer")
		attrs = append(attrs, logx.Bool("hammer.enabled", newCfg.Hammer.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Days, newCfg.Days) {
		changed = append(changed, "days")
		attrs = append(attrs,
			logx.Bool("days.run_on_weekends", newCfg.Days.RunOnWeekends),
			logx.Int("days.override_days", len(newCfg.Days.OverrideDays)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Periods, newCfg.Periods) {
		changed = append(changed, "periods")
		attrs = append(attrs, logx.Int("periods.count", len(newCfg.Periods)))
	}
	if !reflect.DeepEqual(oldCfg.Links, newCfg.Links) {
		changed = append(changed, "links")
		attrs = append(attrs,
			logx.Int("links.count", len(newCfg.Links)),
			logx.Int("links.enabled", countEnabledLinks(newCfg.Links)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Detector, newCfg.Detector) {
		changed = append(changed, "detector")
		attrs = append(attrs, logx.Strings("detector.native_hosts", newCfg.Detector.NativeHosts))
	}
	if !reflect.DeepEqual(oldCfg.Browser, newCfg.Browser) {
		changed = append(changed, "browser")
		attrs = append(attrs,
			logx.String("browser.backend", newCfg.Browser.Backend),
			logx.Bool("browser.headless", newCfg.Browser.IsHeadless()),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		n := newCfg.Notify
		attrs = append(attrs,
			logx.String("notify.backend", n.Backend),
			logx.Bool("notify.dry_run", n.DryRun),
			logx.Bool("notify.discord_webhook_set", strings.TrimSpace(n.Discord.WebhookURL) != ""),
			logx.Bool("notify.telegram_token_set", strings.TrimSpace(n.Telegram.Token) != ""),
			logx.Bool("notify.pushover_token_set", strings.TrimSpace(n.Pushover.Token) != ""),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.forward", newCfg.Logging.Forward.Enabled),
		)
	}
	if derefStorage(oldCfg.Storage) != derefStorage(newCfg.Storage) {
		changed = append(changed, "storage")
		s := derefStorage(newCfg.Storage)
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(s.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
		)
	}
	if oldCfg.Trigger != newCfg.Trigger {
		changed = append(changed, "trigger")
		attrs = append(attrs, logx.String("trigger.cron", newCfg.Trigger.Cron))
	}
	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func countEnabledLinks(links []LinkConfig) int {
	n := 0
	for _, l := range links {
		if l.IsEnabled() {
			n++
		}
	}
	return n
}
