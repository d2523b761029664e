// Package discord posts messages to a Discord channel webhook.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	kit "meetwatch/internal/transport"
)

type Config struct {
	// WebhookURL is https://discord.com/api/webhooks/<id>/<token>.
	WebhookURL string
	Username   string
	Timeout    time.Duration
}

type Sender struct {
	session *discordgo.Session
	id      string
	token   string
	user    string
}

func New(cfg Config) (*Sender, error) {
	id, token, err := ParseWebhookURL(cfg.WebhookURL)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if cfg.Timeout > 0 {
		s.Client.Timeout = cfg.Timeout
	}
	s.MaxRestRetries = 0
	return &Sender{session: s, id: id, token: token, user: cfg.Username}, nil
}

func (s *Sender) Name() string { return "discord" }

func (s *Sender) Send(ctx context.Context, m kit.Message) error {
	params := Params(m)
	params.Username = s.user
	_, err := s.session.WebhookExecute(s.id, s.token, false, params, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

// Params renders m as webhook params. Announcements ping the link's role,
// escalations ping the operator; no other mention is allowed through.
func Params(m kit.Message) *discordgo.WebhookParams {
	content := kit.Decorate(m)
	allowed := &discordgo.MessageAllowedMentions{}
	if id := strings.TrimSpace(m.Mention); id != "" {
		switch m.Kind {
		case kit.KindAnnounce:
			content = fmt.Sprintf("<@&%s>, %s", id, content)
			allowed.Roles = []string{id}
		case kit.KindEscalation:
			content = fmt.Sprintf("<@!%s>, %s", id, content)
			allowed.Users = []string{id}
		}
	}
	return &discordgo.WebhookParams{Content: truncate(content, 2000), AllowedMentions: allowed}
}

// ParseWebhookURL extracts the webhook id and token.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid discord webhook url %q", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("discord webhook url must look like /api/webhooks/<id>/<token>")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
