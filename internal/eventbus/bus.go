// Package eventbus fans watcher progress out to side consumers (journal,
// status page, systemd status line) without coupling them to the poll loop.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topic names an event kind.
type Topic string

const (
	TopicRunStarted    Topic = "run.started"
	TopicPollVerdict   Topic = "poll.verdict"
	TopicLinkDone      Topic = "link.done"
	TopicPeriodChanged Topic = "period.changed"
	TopicEscalation    Topic = "escalation"
	TopicRunFinished   Topic = "run.finished"
	TopicNotification  Topic = "notification"
)

// Notification is the payload of TopicNotification. Status is one of
// queued, deduped, dropped, sent or failed.
type Notification struct {
	Kind   string
	Sink   string
	Status string
	Key    string
	Error  string
}

// Event is one published signal. Data holds one of the payload types below.
//
// Publish never blocks; a subscriber that falls behind loses events.
type Event struct {
	Topic Topic
	RunID string
	Time  time.Time
	Data  any
}

// PollVerdict is the payload of TopicPollVerdict.
type PollVerdict struct {
	Period    int
	Index     int
	Link      string
	URL       string
	Verdict   string
	Signature string
	Detail    string
	Took      time.Duration
}

// LinkDone is the payload of TopicLinkDone.
type LinkDone struct {
	Period  int
	Index   int
	Link    string
	Verdict string
}

// PeriodChanged is the payload of TopicPeriodChanged.
type PeriodChanged struct {
	From int
	To   int
}

// Escalation is the payload of TopicEscalation.
type Escalation struct {
	Link   string
	Detail string
	Abort  bool
}

// RunFinished is the payload of TopicRunFinished.
type RunFinished struct {
	Reason    string
	Announced int
	Pending   int
	Polls     int
	Err       string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop discards every event.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}
func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so unsubscribe (write lock) cannot
	// close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
