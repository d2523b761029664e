package poller

import (
	"context"
	"errors"
	"strings"
	"testing"

	"meetwatch/internal/classifier"
	"meetwatch/internal/fetch"
	"meetwatch/internal/schedule"
	logx "meetwatch/pkg/logx"
)

type stubFetcher struct {
	page  fetch.Page
	err   error
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (fetch.Page, error) {
	s.calls++
	if s.err != nil {
		return fetch.Page{}, s.err
	}
	p := s.page
	p.URL = url
	return p, nil
}

var meetLink = schedule.Link{
	Name:    "Chemistry",
	Owner:   "Ms. Frizzle",
	Channel: "1234",
	URL:     "https://meet.google.com/abc-defg-hij",
	Enabled: true,
}

func TestPollActionTable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		html     string
		verdict  classifier.Verdict
		terminal bool
		notify   bool
		escalate bool
		abort    bool
	}{
		{name: "open", html: "Ready to join?", verdict: classifier.Open, terminal: true, notify: true},
		{name: "not yet", html: "Check your meeting code", verdict: classifier.NotOpenYet},
		{name: "reauth", html: "Not your computer?", verdict: classifier.ReauthRequired, escalate: true, abort: true},
		{name: "expired", html: "Your meeting code has expired", verdict: classifier.LinkExpired, terminal: true, escalate: true},
		{name: "invalid", html: "Invalid video call name", verdict: classifier.InvalidLink, terminal: true, escalate: true},
		{name: "bot", html: "You can't join this video call", verdict: classifier.BotDetected, escalate: true, abort: true},
		{name: "unrecognized", html: "<title>Oops</title>", verdict: classifier.Unrecognized, escalate: true},
		{name: "getting ready", html: "Getting ready", verdict: classifier.NotOpenYet},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &stubFetcher{page: fetch.Page{HTML: tt.html, Title: "Oops"}}
			p := New(f, classifier.New(classifier.Config{}), logx.Nop())
			out := p.Poll(context.Background(), meetLink)
			if out.Verdict != tt.verdict {
				t.Fatalf("Verdict = %v, want %v", out.Verdict, tt.verdict)
			}
			if out.Terminal != tt.terminal || (out.Notify != nil) != tt.notify ||
				out.Escalate != tt.escalate || out.Abort != tt.abort {
				t.Fatalf("unexpected outcome: %+v", out)
			}
			if out.ResetFetcher {
				t.Fatalf("content verdicts must not reset the fetcher")
			}
			if tt.escalate && !strings.Contains(out.Detail, "Chemistry") && tt.verdict != classifier.ReauthRequired {
				t.Fatalf("escalation detail %q should name the link", out.Detail)
			}
			if f.calls != 1 || !out.Fetched {
				t.Fatalf("fetch calls = %d, want 1", f.calls)
			}
		})
	}
}

func TestPollFetchFailures(t *testing.T) {
	t.Parallel()
	cls := classifier.New(classifier.Config{})

	out := New(&stubFetcher{err: fetch.ErrSessionInvalid}, cls, logx.Nop()).Poll(context.Background(), meetLink)
	if out.Verdict != classifier.FetchSessionInvalid || !out.ResetFetcher || out.Backoff || out.Escalate || out.Terminal {
		t.Fatalf("session invalid outcome: %+v", out)
	}

	out = New(&stubFetcher{err: errors.New("net::ERR_CONNECTION_RESET")}, cls, logx.Nop()).Poll(context.Background(), meetLink)
	if out.Verdict != classifier.FetchTimedOut || !out.ResetFetcher || !out.Backoff || out.Escalate || out.Terminal {
		t.Fatalf("timeout outcome: %+v", out)
	}
	if out.Err == nil {
		t.Fatalf("fetch error should be kept on the outcome")
	}
}

func TestPollNonNativeSkipsFetch(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{err: errors.New("must not be called")}
	p := New(f, classifier.New(classifier.Config{}), logx.Nop())
	link := meetLink
	link.URL = "https://zoom.us/j/987"
	out := p.Poll(context.Background(), link)
	if out.Verdict != classifier.Open || !out.Terminal || out.Notify == nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if f.calls != 0 || out.Fetched {
		t.Fatalf("fetcher called %d times for a non-native link", f.calls)
	}
}

func TestOpenMessage(t *testing.T) {
	t.Parallel()
	m := OpenMessage(meetLink)
	if m.Mention != "1234" || m.URL != meetLink.URL {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.Text != "**Chemistry** with Ms. Frizzle is now **open** at <https://meet.google.com/abc-defg-hij>!" {
		t.Fatalf("text = %q", m.Text)
	}
	noOwner := meetLink
	noOwner.Owner = ""
	if got := OpenMessage(noOwner).Text; strings.Contains(got, "with") {
		t.Fatalf("text without owner = %q", got)
	}
}
