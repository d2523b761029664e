package app

import (
	"context"
	"fmt"
	"time"

	"meetwatch/internal/eventbus"
	"meetwatch/internal/storage"
	"meetwatch/internal/watch"
	logx "meetwatch/pkg/logx"
)

// consumeEvents mirrors watcher events into the journal and the systemd
// status line until ctx ends. Events already buffered are still written.
func (a *App) consumeEvents(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.handleEvent(ctx, e)
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.handleEvent(context.WithoutCancel(ctx), e)
				default:
					return nil
				}
			}
		}
	}
}

func (a *App) handleEvent(ctx context.Context, e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.PollVerdict:
		rec := storage.PollRecord{
			RunID:     e.RunID,
			At:        e.Time,
			Period:    d.Period,
			Index:     d.Index,
			Link:      d.Link,
			URL:       d.URL,
			Verdict:   d.Verdict,
			Signature: d.Signature,
			Detail:    d.Detail,
			TookMS:    d.Took.Milliseconds(),
		}
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.journal.AppendPoll(wctx, rec); err != nil {
			a.log.Warn("journal append failed", logx.Err(err), logx.String("link", d.Link))
		}
	case eventbus.PeriodChanged:
		a.status(fmt.Sprintf("polling period %d", d.To))
	case eventbus.LinkDone:
		a.log.Debug("link resolved", logx.String("link", d.Link), logx.String("verdict", d.Verdict))
	case eventbus.RunFinished:
		a.status(fmt.Sprintf("idle (last run: %s, %d announced)", d.Reason, d.Announced))
	case eventbus.Notification:
		if d.Status == "failed" || d.Status == "dropped" {
			a.log.Warn("notification not delivered",
				logx.String("kind", d.Kind), logx.String("status", d.Status), logx.String("err", d.Error))
		}
	}
}

func (a *App) status(s string) {
	if _, err := a.sd.Status(s); err != nil {
		a.log.Debug("systemd status failed", logx.Err(err))
	}
}

func (a *App) recordRun(ctx context.Context, rep watch.Report, started, finished time.Time, runErr error) {
	rec := storage.RunRecord{
		RunID:       rep.RunID,
		StartedAt:   started,
		FinishedAt:  finished,
		Reason:      string(rep.Reason),
		Announced:   rep.Announced,
		Escalations: rep.Escalations,
		Polls:       rep.Polls,
		Resets:      rep.Resets,
		Pending:     rep.Pending,
		Expired:     rep.Expired,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.journal.AppendRun(wctx, rec); err != nil {
		a.log.Warn("journal run record failed", logx.Err(err))
	}
}
