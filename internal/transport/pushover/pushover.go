// Package pushover sends messages through the Pushover messages API.
package pushover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	kit "meetwatch/internal/transport"
)

const DefaultEndpoint = "https://api.pushover.net/1/messages.json"

type Config struct {
	Token    string
	User     string
	Endpoint string
	Timeout  time.Duration
}

type Sender struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.User) == "" {
		return nil, fmt.Errorf("pushover token and user are required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Sender{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (s *Sender) Name() string { return "pushover" }

func (s *Sender) Send(ctx context.Context, m kit.Message) error {
	params := Form(s.cfg.Token, s.cfg.User, m)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pushover api error: status %s, body %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// Form builds the API form for m. Escalations go out at high priority.
func Form(token, user string, m kit.Message) url.Values {
	params := url.Values{}
	params.Set("token", token)
	params.Set("user", user)
	if m.Title != "" {
		params.Set("title", m.Title)
	}
	params.Set("message", kit.Plain(m.Text))
	if m.URL != "" {
		params.Set("url", m.URL)
	}
	params.Set("priority", strconv.Itoa(priority(m)))
	return params
}

func priority(m kit.Message) int {
	switch {
	case m.Kind == kit.KindEscalation || m.Priority >= 9:
		return 1
	case m.Kind == kit.KindLog:
		return -1
	default:
		return 0
	}
}
