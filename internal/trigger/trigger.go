// Package trigger starts a day's run on a cron schedule when meetwatch runs
// as a daemon.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "meetwatch/pkg/logx"
)

// Func runs one day. A non-nil error stops the trigger and is returned by Run.
type Func func(ctx context.Context, firedAt time.Time) error

type Trigger struct {
	spec  string
	loc   *time.Location
	sched cron.Schedule
	log   logx.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New parses a five-field cron expression (or a descriptor such as "@daily")
// evaluated in loc. A nil loc means time.Local.
func New(spec string, loc *time.Location, log logx.Logger) (*Trigger, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("trigger.cron: schedule required")
	}
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("trigger.cron: invalid %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Trigger{spec: spec, loc: loc, sched: s, log: log}, nil
}

func (t *Trigger) Spec() string { return t.spec }

// Next returns the first fire time after now.
func (t *Trigger) Next(now time.Time) time.Time { return t.sched.Next(now.In(t.loc)) }

// Run calls fn on every fire until ctx ends or fn fails. Fires that land
// while fn is still running are skipped.
func (t *Trigger) Run(ctx context.Context, fn Func) error {
	fires := make(chan time.Time, 1)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(t.loc))
	c.Schedule(t.sched, cron.FuncJob(func() {
		now := time.Now().In(t.loc)
		select {
		case fires <- now:
		default:
			t.log.Warn("trigger fired while a run is active; skipped", logx.Time("at", now))
		}
	}))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	t.log.Info("trigger armed", logx.String("cron", t.spec), logx.String("tz", t.loc.String()),
		logx.Time("next", t.Next(time.Now())))

	for {
		select {
		case <-ctx.Done():
			return nil
		case at := <-fires:
			t.log.Info("trigger fired", logx.Time("at", at))
			if err := fn(ctx, at); err != nil {
				return err
			}
			t.log.Info("trigger idle", logx.Time("next", t.Next(time.Now())))
		}
	}
}
