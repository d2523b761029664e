package config

// Config is the whole configuration file. All durations are Go duration
// strings ("5s", "2m"). Unknown keys are rejected.
type Config struct {
	// Timezone is an IANA name used to place period times on the run day.
	// Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`

	Poll     PollConfig     `json:"poll"`
	Hammer   HammerConfig   `json:"hammer"`
	Days     DaysConfig     `json:"days"`
	Periods  []PeriodConfig `json:"periods"`
	Links    []LinkConfig   `json:"links"`
	Detector DetectorConfig `json:"detector"`
	Browser  BrowserConfig  `json:"browser"`
	Notify   NotifyConfig   `json:"notify"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Trigger  TriggerConfig  `json:"trigger"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`
}

// PollConfig tunes the watcher loop.
//
// Defaults: cadence 5s, reset_backoff 10s, reset_backoff_max 2m, early_start 5m.
// An explicit early_start of "0s" disables the lead.
type PollConfig struct {
	Cadence         string `json:"cadence,omitempty"`
	ResetBackoff    string `json:"reset_backoff,omitempty"`
	ResetBackoffMax string `json:"reset_backoff_max,omitempty"`
	EarlyStart      string `json:"early_start,omitempty"`
}

// HammerConfig collapses the day into one all-day period polled every Delay.
type HammerConfig struct {
	Enabled bool   `json:"enabled"`
	Delay   string `json:"delay,omitempty"` // default 20s
}

type DaysConfig struct {
	RunOnWeekends bool `json:"run_on_weekends"`
	// OverrideDays are YYYY-MM-DD dates on which OverridePeriods replace Periods.
	OverrideDays    []string       `json:"override_days,omitempty"`
	OverridePeriods []PeriodConfig `json:"override_periods,omitempty"`
}

type PeriodConfig struct {
	// Key is what links refer to. 0 means the 1-based position in the list.
	Key   int    `json:"key,omitempty"`
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

type LinkConfig struct {
	Name    string `json:"name"`
	Owner   string `json:"owner,omitempty"`
	Period  int    `json:"period"`
	Channel string `json:"channel,omitempty"`
	URL     string `json:"url"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
}

// IsEnabled reports the effective enabled flag.
func (l LinkConfig) IsEnabled() bool { return l.Enabled == nil || *l.Enabled }

type DetectorConfig struct {
	NativeHosts []string `json:"native_hosts,omitempty"`
}

// BrowserConfig selects and tunes the page fetcher.
//
// Backend is "chromedp" (default) or "http". UserDataDir should point at a
// Chrome profile that is already signed in.
type BrowserConfig struct {
	Backend      string `json:"backend,omitempty"`
	Headless     *bool  `json:"headless,omitempty"` // default true
	ExecPath     string `json:"exec_path,omitempty"`
	UserDataDir  string `json:"user_data_dir,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	FetchTimeout string `json:"fetch_timeout,omitempty"` // default 15s
	Settle       string `json:"settle,omitempty"`        // default 3s
}

// IsHeadless reports the effective headless flag.
func (b BrowserConfig) IsHeadless() bool { return b.Headless == nil || *b.Headless }

// NotifyConfig selects the delivery backend and tunes the async pipeline.
//
// Backend is one of "discord", "telegram", "pushover" or "log". DryRun forces
// the log backend.
type NotifyConfig struct {
	Backend string `json:"backend"`
	DryRun  bool   `json:"dry_run,omitempty"`
	// OperatorID is mentioned on escalations (a Discord user id, a Telegram
	// @handle, ...).
	OperatorID string `json:"operator_id,omitempty"`

	Discord  DiscordConfig  `json:"discord,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Pushover PushoverConfig `json:"pushover,omitempty"`

	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
	// DrainTimeout bounds delivery of queued messages at shutdown. Default 10s.
	DrainTimeout string `json:"drain_timeout,omitempty"`
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"` // secret; never logged
	Username   string `json:"username,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"` // secret; never logged
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

type PushoverConfig struct {
	Token string `json:"token,omitempty"` // secret; never logged
	User  string `json:"user,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Forward LoggingForward `json:"forward"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingForward sends log lines at or above MinLevel to the notify backend.
type LoggingForward struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the poll journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./meetwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// TriggerConfig turns the process into a daemon: every Cron fire runs that
// day's schedule. Empty Cron means run today once and exit.
type TriggerConfig struct {
	Cron string `json:"cron,omitempty"`
}

// PprofConfig controls the optional debug HTTP server (pprof and /status).
//
// Prefer binding to localhost. A non-loopback address needs a token or
// allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
