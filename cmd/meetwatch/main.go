package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"meetwatch/internal/app"
	"meetwatch/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags, err := config.ParseFlags("meetwatch", os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitFailure
	}

	cfgm := config.NewManager(flags.ConfigPath)
	fileCfg, err := cfgm.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %s: %v\n", flags.ConfigPath, err)
		return app.ExitFailure
	}
	// Flags override a copy so the change notice keeps diffing file contents.
	cfg := *fileCfg
	flags.Apply(&cfg)

	a, err := app.New(&cfg, cfgm, app.Options{Once: flags.Once})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return app.ExitFailure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = a.Run(ctx)
	code := app.ExitCode(err)
	if code != app.ExitOK {
		fmt.Fprintln(os.Stderr, "meetwatch:", err)
	}
	return code
}
