// Package app wires configuration, delivery, journal and the watcher into a
// runnable process: either one run for today or a cron-triggered daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetwatch/internal/classifier"
	"meetwatch/internal/config"
	"meetwatch/internal/eventbus"
	"meetwatch/internal/fetch"
	"meetwatch/internal/notifier"
	"meetwatch/internal/observability/pprof"
	"meetwatch/internal/poller"
	"meetwatch/internal/runtime/supervisor"
	"meetwatch/internal/schedule"
	"meetwatch/internal/storage"
	kit "meetwatch/internal/transport"
	"meetwatch/internal/trigger"
	"meetwatch/internal/watch"
	logx "meetwatch/pkg/logx"
	"meetwatch/pkg/systemd"
)

type App struct {
	cfg  *Config
	cfgm *config.Manager
	once bool
	loc  *time.Location

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	journal storage.Journal
	sender  kit.Sender
	notif   *notifier.Service
	esc     *notifier.Escalator
	pprof   *pprof.Service
	sd      *systemd.Notifier
	trig    *trigger.Trigger
	drain   time.Duration

	sup *supervisor.Supervisor

	mu      sync.Mutex
	current *watch.Watcher
	last    *watch.Report
}

// Options are process-level switches that do not live in the config file.
type Options struct {
	// Once runs today's schedule and exits even when trigger.cron is set.
	Once bool
}

// New validates cfg and builds every long-lived component. Nothing is
// started. cfgm may be nil, which disables the config change notice.
func New(cfg *Config, cfgm *config.Manager, opt Options) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	loc, err := mapLocation(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %w", ErrConfig, err)
	}
	ncfg, drain, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	pcfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	scfg, journalOn, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	sender, err := buildSender(cfg, ncfg.SendTimeout, bootLog.With(logx.String("comp", "notify")))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	lcfg := mapLoggingConfig(cfg)
	if lcfg.Forward.Enabled && sender.Name() == "log" {
		// Forwarding into the log sink would only echo lines back to the log.
		lcfg.Forward.Enabled = false
	}
	logSvc, log := logx.New(lcfg, sender)

	var trig *trigger.Trigger
	if spec := strings.TrimSpace(cfg.Trigger.Cron); spec != "" && !opt.Once {
		if trig, err = trigger.New(spec, loc, log.With(logx.String("comp", "trigger"))); err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}

	// A zero storage.Config opens the no-op journal.
	journal, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if journalOn {
		log.Info("journal enabled", logx.String("driver", scfg.Driver))
	}

	bus := eventbus.New()
	notif := notifier.New(ncfg, sender, log.With(logx.String("comp", "notifier")), bus)
	a := &App{
		cfg:     cfg,
		cfgm:    cfgm,
		once:    opt.Once,
		loc:     loc,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		journal: journal,
		sender:  sender,
		notif:   notif,
		esc:     notifier.NewEscalator(notif, cfg.Notify.OperatorID, log.With(logx.String("comp", "escalator"))),
		sd:      systemd.New(),
		trig:    trig,
		drain:   drain,
	}
	a.pprof = pprof.New(pcfg, a.Status, log.With(logx.String("comp", "pprof")))
	if cfgm != nil {
		cfgm.SetLogger(log.With(logx.String("comp", "config")))
	}
	return a, nil
}

// Run starts the background services, performs one run or serves the cron
// trigger, and shuts everything down. It returns watch.ErrAborted (wrapped)
// after a run-fatal verdict.
func (a *App) Run(ctx context.Context) (err error) {
	// Services outlive ctx so queued notifications can drain after a signal.
	a.sup = supervisor.New(context.WithoutCancel(ctx), supervisor.WithLogger(a.log))
	a.notif.Start(a.sup.Context())
	defer func() { a.shutdown(err) }()

	if err := a.pprof.Start(a.sup.Context()); err != nil {
		a.log.Warn("debug server not started", logx.Err(err))
	}
	events, unsub := a.bus.Subscribe(256)
	a.sup.Go("events.consume", func(c context.Context) error {
		defer unsub()
		return a.consumeEvents(c, events)
	})
	a.sup.GoRestart("systemd.watchdog", supervisor.RestartPolicy{MaxRestarts: 3}, func(c context.Context) error {
		return a.sd.Watchdog(c)
	})
	if a.cfgm != nil {
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c, nil)
		})
	}

	if _, err := a.sd.Ready(); err != nil {
		a.log.Debug("systemd ready failed", logx.Err(err))
	}
	a.log.Info("meetwatch started",
		logx.String("notify", a.notif.Sink()),
		logx.Bool("dry_run", a.cfg.Notify.DryRun),
		logx.Bool("daemon", a.trig != nil),
		logx.String("tz", a.loc.String()),
	)

	if a.trig == nil {
		_, err = a.RunDay(ctx, time.Now())
		return err
	}
	a.status("waiting for trigger " + a.trig.Spec())
	return a.trig.Run(ctx, func(c context.Context, at time.Time) error {
		_, err := a.RunDay(c, at)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, watch.ErrAborted), errors.Is(err, ErrConfig):
			return err
		default:
			// A failed browser start today may work tomorrow.
			a.log.Error("run failed", logx.Err(err))
			return nil
		}
	})
}

// RunDay plans the day containing now and watches it to completion.
func (a *App) RunDay(ctx context.Context, now time.Time) (watch.Report, error) {
	cfg := a.cfg
	now = now.In(a.loc)
	plan := schedule.PlanDay(now, periodDefs(cfg.Periods), mapDayPolicy(cfg))
	if !plan.Run {
		a.log.Info("nothing to watch today", logx.String("reason", plan.Reason), logx.String("day", now.Format("Mon 2006-01-02")))
		return watch.Report{}, nil
	}
	links, skipped := linkDefs(cfg, plan)
	if len(skipped) > 0 {
		a.log.Info("links without a period today", logx.Strings("links", skipped))
	}

	opts, err := mapScheduleOptions(cfg, a.loc)
	if err != nil {
		return watch.Report{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	sched, err := schedule.Build(now, plan.Periods, links, opts)
	if err != nil {
		return watch.Report{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	runID := uuid.NewString()
	wcfg, err := mapWatchConfig(cfg, runID)
	if err != nil {
		return watch.Report{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	fcfg, err := mapFetchConfig(cfg)
	if err != nil {
		return watch.Report{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	log := a.log.With(logx.String("run_id", runID))
	log.Info("day planned",
		logx.String("reason", plan.Reason),
		logx.Int("periods", len(sched.Periods)),
		logx.Int("links", sched.Enabled()),
		logx.Bool("hammer", sched.Hammer),
	)

	fetcher, err := fetch.Open(ctx, fcfg, log.With(logx.String("comp", "fetch")))
	if err != nil {
		return watch.Report{}, fmt.Errorf("open fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			log.Debug("fetcher close", logx.Err(err))
		}
	}()

	cls := classifier.New(mapClassifierConfig(cfg))
	w, err := watch.New(wcfg, sched, watch.Deps{
		Poller:    poller.New(fetcher, cls, log.With(logx.String("comp", "poller"))),
		Fetcher:   fetcher,
		Notifier:  a.notif,
		Escalator: a.esc,
		Bus:       a.bus,
		Log:       log,
	})
	if err != nil {
		return watch.Report{}, err
	}

	a.mu.Lock()
	a.current = w
	a.mu.Unlock()

	started := time.Now()
	rep, runErr := w.Run(ctx)
	a.recordRun(ctx, rep, started, time.Now(), runErr)

	a.mu.Lock()
	a.current = nil
	a.last = &rep
	a.mu.Unlock()

	if len(rep.Expired) > 0 {
		log.Warn("links closed without opening", logx.Strings("links", rep.Expired))
	}
	return rep, runErr
}

// StatusDoc is served on /status.
type StatusDoc struct {
	Run      *watch.Snapshot        `json:"run,omitempty"`
	Last     *watch.Report          `json:"last,omitempty"`
	Notifier notifier.Stats         `json:"notifier"`
	Sent     []notifier.HistoryItem `json:"sent,omitempty"`
	Tasks    []supervisor.TaskStats `json:"tasks,omitempty"`
	Next     *time.Time             `json:"next_trigger,omitempty"`
}

// Status is safe to call from any goroutine.
func (a *App) Status() any {
	a.mu.Lock()
	cur, last := a.current, a.last
	a.mu.Unlock()

	doc := StatusDoc{Last: last, Notifier: a.notif.Stats(), Sent: a.notif.History()}
	if cur != nil {
		s := cur.Snapshot()
		doc.Run = &s
	}
	if a.sup != nil {
		doc.Tasks = a.sup.Tasks()
	}
	if a.trig != nil {
		next := a.trig.Next(time.Now())
		doc.Next = &next
	}
	return doc
}

func (a *App) shutdown(runErr error) {
	if _, err := a.sd.Stopping(); err != nil {
		a.log.Debug("systemd stopping failed", logx.Err(err))
	}
	a.log.Info("stopping", logx.String("result", resultName(runErr)))

	step := func(name string, max time.Duration, fn func(context.Context)) {
		ctx, cancel := context.WithTimeout(context.Background(), max)
		defer cancel()
		start := time.Now()
		fn(ctx)
		if ctx.Err() != nil {
			a.log.Warn("stop step deadline reached", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// The escalation of a run-fatal verdict is still queued here.
	step("notifier", a.drain, a.notif.Stop)
	step("pprof", 2*time.Second, a.pprof.Stop)
	step("supervisor", 3*time.Second, func(c context.Context) {
		a.sup.Cancel()
		_ = a.sup.Wait(c)
	})
	if err := a.journal.Close(); err != nil {
		a.log.Warn("journal close failed", logx.Err(err))
	}
	if c, ok := a.sender.(kit.Closer); ok {
		_ = c.Close()
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}

func resultName(err error) string {
	switch ExitCode(err) {
	case ExitOK:
		return "ok"
	case ExitAborted:
		return "aborted"
	default:
		return "failed"
	}
}
