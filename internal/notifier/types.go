package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// HistoryItem is a delivered message, kept for /status.
type HistoryItem struct {
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Queued  int `json:"queued"`
	Deduped int `json:"deduped"`
	Dropped int `json:"dropped"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}
