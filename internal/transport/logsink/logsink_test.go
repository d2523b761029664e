package logsink

import (
	"bytes"
	"context"
	"strings"
	"testing"

	kit "meetwatch/internal/transport"
	logx "meetwatch/pkg/logx"
)

func TestSendWritesLogLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := New(logx.NewWriter(&buf, "debug"))
	if s.Name() != "log" {
		t.Fatalf("Name = %s", s.Name())
	}
	err := s.Send(context.Background(), kit.Message{Kind: kit.KindEscalation, Mention: "9", Text: "manual intervention required! x"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"mention":"9"`, `"comp":"dry-run"`, "manual intervention required!"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q missing %s", out, want)
		}
	}
}

func TestSendHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(logx.Nop()).Send(ctx, kit.Message{Text: "x"}); err == nil {
		t.Fatal("expected context error")
	}
}
