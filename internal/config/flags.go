package config

import (
	"io"

	"github.com/spf13/pflag"
)

const DefaultPath = "./config.json"

// Flags are command-line overrides. Only flags that were set on the command
// line are applied over the file, so the file keeps its values otherwise.
type Flags struct {
	ConfigPath string
	Once       bool

	Verbose       bool
	WorkerVisible bool
	RenderBackend string
	DriverPath    string
	RunOnWeekends bool
	DryRun        bool
	Hammer        bool

	changed map[string]bool
}

// ParseFlags parses args (without the program name). Errors and usage are
// written to out.
func ParseFlags(name string, args []string, out io.Writer) (*Flags, error) {
	f := &Flags{changed: map[string]bool{}}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false

	fs.StringVarP(&f.ConfigPath, "config", "c", DefaultPath, "path to config file (.json, .yaml, .yml)")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "debug logging")
	fs.BoolVar(&f.WorkerVisible, "worker-visible", false, "show the browser window (disables headless)")
	fs.StringVar(&f.RenderBackend, "render-backend", "", "page fetcher backend: chromedp or http")
	fs.StringVar(&f.DriverPath, "driver-path", "", "browser executable path")
	fs.BoolVar(&f.RunOnWeekends, "run-on-weekends", false, "run on Saturdays and Sundays")
	fs.BoolVar(&f.DryRun, "dry-run", false, "log notifications instead of sending them")
	fs.BoolVar(&f.Hammer, "hammer", false, "poll every link all day in one period")
	fs.BoolVar(&f.Once, "once", false, "run today's schedule once and exit, even with trigger.cron set")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *pflag.Flag) { f.changed[fl.Name] = true })
	return f, nil
}

// Changed reports whether the named flag was given.
func (f *Flags) Changed(name string) bool { return f != nil && f.changed[name] }

// Apply overlays the explicitly set flags onto cfg.
func (f *Flags) Apply(cfg *Config) {
	if f == nil || cfg == nil {
		return
	}
	if f.Changed("verbose") && f.Verbose {
		cfg.Logging.Level = "debug"
	}
	if f.Changed("worker-visible") {
		headless := !f.WorkerVisible
		cfg.Browser.Headless = &headless
	}
	if f.Changed("render-backend") {
		cfg.Browser.Backend = f.RenderBackend
	}
	if f.Changed("driver-path") {
		cfg.Browser.ExecPath = f.DriverPath
	}
	if f.Changed("run-on-weekends") {
		cfg.Days.RunOnWeekends = f.RunOnWeekends
	}
	if f.Changed("dry-run") {
		cfg.Notify.DryRun = f.DryRun
	}
	if f.Changed("hammer") {
		cfg.Hammer.Enabled = f.Hammer
	}
}
