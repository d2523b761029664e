// Package notifier delivers announcements and escalations asynchronously.
//
// Messages are enqueued by the watcher and sent by a small worker pool through
// a single transport.Sender (Discord, Telegram, Pushover or the log sink).
// Delivery is best-effort: sends are rate limited and retried with jittered
// exponential backoff, identical announcements inside the dedup window are
// suppressed, and a full queue drops the message instead of blocking the
// poll loop. Escalations skip the dedup window: the watcher already limits
// them to one per incident.
//
// # Escalation
//
// Escalator wraps a Service and addresses the operator. It is the only path by
// which the watcher asks for manual intervention.
package notifier
