package notifier

import (
	"context"
	"strings"

	kit "meetwatch/internal/transport"
	logx "meetwatch/pkg/logx"
)

// Enqueuer is the part of Service the escalator needs.
type Enqueuer interface {
	Notify(ctx context.Context, m kit.Message) error
}

// Escalator sends operator-addressed messages.
type Escalator struct {
	out      Enqueuer
	operator string
	log      logx.Logger
}

func NewEscalator(out Enqueuer, operator string, log logx.Logger) *Escalator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Escalator{out: out, operator: strings.TrimSpace(operator), log: log}
}

// Escalate asks for manual intervention. abort marks a run-fatal condition;
// it only changes the wording and priority, the caller decides to stop.
func (e *Escalator) Escalate(ctx context.Context, detail string, abort bool) error {
	m := EscalationMessage(e.operator, detail, abort)
	e.log.Error("escalating to operator", logx.String("detail", detail), logx.Bool("abort", abort))
	return e.out.Notify(ctx, m)
}

// EscalationMessage builds the operator message for detail.
func EscalationMessage(operator, detail string, abort bool) kit.Message {
	text := "manual intervention required! " + detail
	prio := 8
	if abort {
		text += " Monitoring stopped."
		prio = 10
	}
	return kit.Message{
		Kind:     kit.KindEscalation,
		Priority: prio,
		Mention:  operator,
		Title:    "manual intervention required",
		Text:     text,
	}
}
