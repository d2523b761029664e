package transport

import "strings"

// Plain strips the Discord-style emphasis markers used in message texts.
func Plain(text string) string {
	return strings.ReplaceAll(text, "**", "")
}

// Decorate returns the message text prefixed for its priority.
func Decorate(m Message) string {
	switch {
	case m.Priority >= 9:
		return "🚨 " + m.Text
	case m.Priority >= 7:
		return "⚠️ " + m.Text
	default:
		return m.Text
	}
}
