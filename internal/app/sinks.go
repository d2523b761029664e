package app

import (
	"fmt"
	"strings"
	"time"

	kit "meetwatch/internal/transport"
	"meetwatch/internal/transport/discord"
	"meetwatch/internal/transport/logsink"
	"meetwatch/internal/transport/pushover"
	"meetwatch/internal/transport/telegram"
	logx "meetwatch/pkg/logx"
)

// buildSender returns the single delivery backend selected by notify.backend.
// Dry run always uses the log sink.
func buildSender(cfg *Config, sendTimeout time.Duration, log logx.Logger) (kit.Sender, error) {
	n := cfg.Notify
	backend := strings.ToLower(strings.TrimSpace(n.Backend))
	if n.DryRun {
		backend = "log"
	}
	switch backend {
	case "log":
		return logsink.New(log), nil
	case "discord":
		return discord.New(discord.Config{
			WebhookURL: n.Discord.WebhookURL,
			Username:   n.Discord.Username,
			Timeout:    sendTimeout,
		})
	case "telegram":
		return telegram.New(telegram.Config{
			Token:    n.Telegram.Token,
			ChatID:   n.Telegram.ChatID,
			ThreadID: n.Telegram.ThreadID,
			Timeout:  sendTimeout,
		})
	case "pushover":
		return pushover.New(pushover.Config{
			Token:   n.Pushover.Token,
			User:    n.Pushover.User,
			Timeout: sendTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown notify.backend: %q", n.Backend)
	}
}
