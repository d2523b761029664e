// Package telegram sends messages to a Telegram chat (optionally a forum
// topic) through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "meetwatch/internal/transport"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	Timeout  time.Duration
}

type Sender struct {
	cfg Config
	bot *tele.Bot
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Sender{cfg: cfg, bot: b}, nil
}

func (s *Sender) Name() string { return "telegram" }

// Send posts m as plain text. telebot has no context support, so the call
// runs in its own goroutine and ctx only bounds the wait.
func (s *Sender) Send(ctx context.Context, m kit.Message) error {
	text := Render(m)
	opt := &tele.SendOptions{
		ThreadID:              s.cfg.ThreadID,
		DisableWebPagePreview: m.Kind != kit.KindAnnounce,
	}
	errc := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(&tele.Chat{ID: s.cfg.ChatID}, text, opt)
		errc <- err
	}()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Render formats m for Telegram. Discord ids mean nothing here, so only
// escalations keep the operator tag.
func Render(m kit.Message) string {
	text := kit.Plain(kit.Decorate(m))
	if m.Kind == kit.KindEscalation && m.Mention != "" {
		text = m.Mention + ", " + text
	}
	if len(text) > 4096 {
		text = text[:4093] + "..."
	}
	return text
}
