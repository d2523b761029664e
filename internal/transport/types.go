package transport

import "context"

type Kind string

const (
	// KindAnnounce is a routine "link is open" message addressed to the link's channel.
	KindAnnounce Kind = "announce"
	// KindEscalation asks the operator for manual intervention.
	KindEscalation Kind = "escalation"
	// KindLog carries forwarded log lines (logx Telegram sink).
	KindLog Kind = "log"
)

// Message is a platform-neutral outbound message.
//
// Sinks decide how Mention is rendered: Discord uses role/user pings,
// Telegram and Pushover prefix it as plain text.
type Message struct {
	Kind     Kind
	Priority int // 0 low.. 10 high

	// Mention is the channel tag of a link (announce) or the operator id (escalation).
	Mention string
	Title   string
	Text    string
	URL     string
}

// Sender delivers a single message. Implementations must honor ctx and never retry
// on their own; retry policy lives in the notifier pipeline.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

// Closer is implemented by senders holding network sessions.
type Closer interface {
	Close() error
}
