// Package poller runs one availability check for one monitored link and turns
// the verdict into a decision for the watcher.
package poller

import (
	"context"
	"errors"
	"fmt"

	"meetwatch/internal/classifier"
	"meetwatch/internal/fetch"
	"meetwatch/internal/schedule"
	kit "meetwatch/internal/transport"
	logx "meetwatch/pkg/logx"
)

// PageFetcher is the part of fetch.Fetcher the poller needs.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Page, error)
}

// Outcome is the decision for one poll attempt.
type Outcome struct {
	Verdict classifier.Verdict
	// Signature is the matched classifier signature, if any.
	Signature string
	// Terminal means the link needs no further polling this run.
	Terminal bool
	// Notify is the announcement to send, if any.
	Notify *kit.Message
	// Escalate asks for operator attention with Detail as the reason.
	Escalate bool
	// Abort means the whole run must stop after escalating.
	Abort bool
	// ResetFetcher asks the owner to re-create the fetch session.
	ResetFetcher bool
	// Backoff asks the owner to wait before resetting.
	Backoff bool
	Detail  string
	// Fetched is false when the fetcher was not called (non-native links).
	Fetched bool
	Err     error
}

type Poller struct {
	fetcher PageFetcher
	cls     *classifier.Classifier
	log     logx.Logger
}

func New(f PageFetcher, cls *classifier.Classifier, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{fetcher: f, cls: cls, log: log}
}

// Poll checks link once. It never returns an error: fetch failures become
// FetchTimedOut / FetchSessionInvalid outcomes.
func (p *Poller) Poll(ctx context.Context, link schedule.Link) Outcome {
	log := p.log.With(logx.String("link", link.Name))

	if !p.cls.Native(link.URL) {
		log.Info("availability detection not supported for link; announcing at first opportunity",
			logx.String("url", link.URL))
		return decide(link, classifier.Match{Verdict: classifier.Open, Signature: "non_native"}, "")
	}

	page, err := p.fetcher.Fetch(ctx, link.URL)
	if err != nil {
		v := classifier.FetchTimedOut
		if errors.Is(err, fetch.ErrSessionInvalid) {
			v = classifier.FetchSessionInvalid
		}
		log.Warn("fetch failed", logx.String("verdict", v.String()), logx.Err(err))
		out := decide(link, classifier.Match{Verdict: v}, "")
		out.Fetched = true
		out.Err = err
		return out
	}

	m := p.cls.Match(page.HTML, link.URL)
	if m.Slow {
		log.Warn("page still loading; consider a longer settle delay", logx.Duration("took", page.Took))
	}
	log.Debug("polled",
		logx.String("verdict", m.Verdict.String()),
		logx.String("signature", m.Signature),
		logx.Duration("took", page.Took),
	)
	out := decide(link, m, page.Title)
	out.Fetched = true
	return out
}

// decide applies the verdict action table.
func decide(link schedule.Link, m classifier.Match, title string) Outcome {
	out := Outcome{Verdict: m.Verdict, Signature: m.Signature}
	switch m.Verdict {
	case classifier.Open:
		out.Terminal = true
		out.Notify = OpenMessage(link)
	case classifier.NotOpenYet:
	case classifier.ReauthRequired:
		out.Escalate, out.Abort = true, true
		out.Detail = "Bot is not logged in."
	case classifier.LinkExpired:
		out.Terminal, out.Escalate = true, true
		out.Detail = fmt.Sprintf("Link needs to be updated for %s.", link.Name)
	case classifier.InvalidLink:
		out.Terminal, out.Escalate = true, true
		out.Detail = fmt.Sprintf("Invalid link for %s.", link.Name)
	case classifier.BotDetected:
		out.Escalate, out.Abort = true, true
		out.Detail = fmt.Sprintf("Bot detection triggered or not authenticated with %s.", link.Name)
	case classifier.Unrecognized:
		out.Escalate = true
		out.Detail = fmt.Sprintf("Something unexpected happened with %s.", link.Name)
		if title != "" {
			out.Detail += fmt.Sprintf(" Page title: %q.", title)
		}
	case classifier.FetchSessionInvalid:
		out.ResetFetcher = true
	case classifier.FetchTimedOut:
		out.ResetFetcher, out.Backoff = true, true
	}
	return out
}

// OpenMessage is the announcement for a link that became joinable.
func OpenMessage(link schedule.Link) *kit.Message {
	text := fmt.Sprintf("**%s** is now **open** at <%s>!", link.Name, link.URL)
	if link.Owner != "" {
		text = fmt.Sprintf("**%s** with %s is now **open** at <%s>!", link.Name, link.Owner, link.URL)
	}
	return &kit.Message{
		Kind:     kit.KindAnnounce,
		Priority: 5,
		Mention:  link.Channel,
		Title:    link.Name + " is open",
		Text:     text,
		URL:      link.URL,
	}
}
