package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"invitebot/internal/app"
	"invitebot/internal/config"
	logx "invitebot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		envFile string
	)
	flag.StringVar(&cfgPath, "config", "", "optional path to a JSON or YAML config file")
	flag.StringVar(&envFile, "env-file", "", "dotenv file to load instead of .env and .env.local")
	flag.Parse()

	// used until the configured logging service exists, and for fatal exits
	boot := logx.NewConsole(os.Getenv("LOG_LEVEL"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := config.LoadOptions{Path: cfgPath}
	if strings.TrimSpace(envFile) != "" {
		opts.EnvFiles = []string{envFile}
	}
	cfg, err := config.Load(opts)
	if err != nil {
		boot.Error("config load failed", logx.Err(err))
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, app.Options{ConfigPath: cfgPath})
	if err != nil {
		boot.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		boot.Error("start failed", logx.Err(err))
		stop(a, app.StopFatalError)
		os.Exit(1)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	stop(a, reason)

	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		boot.Error("stopped on fatal error", logx.Err(err))
		os.Exit(1)
	}
}

func stop(a *app.App, reason app.StopReason) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)
}
