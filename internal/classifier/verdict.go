package classifier

// Verdict is the outcome of one poll attempt. It is produced fresh on every
// poll and never carried over between attempts.
type Verdict int

const (
	Open Verdict = iota
	NotOpenYet
	ReauthRequired
	LinkExpired
	InvalidLink
	BotDetected
	FetchTimedOut
	FetchSessionInvalid
	Unrecognized
)

var verdictNames = [...]string{
	Open:                "open",
	NotOpenYet:          "not_open_yet",
	ReauthRequired:      "reauth_required",
	LinkExpired:         "link_expired",
	InvalidLink:         "invalid_link",
	BotDetected:         "bot_detected",
	FetchTimedOut:       "fetch_timed_out",
	FetchSessionInvalid: "fetch_session_invalid",
	Unrecognized:        "unrecognized",
}

func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return "unknown"
	}
	return verdictNames[v]
}

// MarshalText keeps journal/status output readable.
func (v Verdict) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// IsFetchFailure reports whether the verdict came from the fetch layer rather
// than from page content.
func (v Verdict) IsFetchFailure() bool {
	return v == FetchTimedOut || v == FetchSessionInvalid
}
