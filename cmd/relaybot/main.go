package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaybot/internal/app"
	"relaybot/internal/config"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(ctx, cfgPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigMissing) {
			fmt.Fprintln(os.Stderr, "fatal: incomplete configuration:", err)
		} else {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		stopCancel()
		os.Exit(1)
	}
}
