// Package logsink is the dry-run sender: messages are written to the log
// instead of a chat platform.
package logsink

import (
	"context"

	kit "meetwatch/internal/transport"
	logx "meetwatch/pkg/logx"
)

type Sender struct {
	log logx.Logger
}

func New(log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{log: log.With(logx.String("comp", "dry-run"))}
}

func (s *Sender) Name() string { return "log" }

func (s *Sender) Send(ctx context.Context, m kit.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields := []logx.Field{
		logx.String("kind", string(m.Kind)),
		logx.Int("priority", m.Priority),
		logx.String("text", m.Text),
	}
	if m.Mention != "" {
		fields = append(fields, logx.String("mention", m.Mention))
	}
	if m.URL != "" {
		fields = append(fields, logx.String("url", m.URL))
	}
	if m.Kind == kit.KindEscalation {
		s.log.Warn("would notify", fields...)
		return nil
	}
	s.log.Info("would notify", fields...)
	return nil
}
