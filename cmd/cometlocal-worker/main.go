package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/cometlocal/cometlocal/internal/browser"
	"github.com/cometlocal/cometlocal/internal/browserhost"
	"github.com/cometlocal/cometlocal/internal/config"
	"github.com/cometlocal/cometlocal/internal/execflow"
)

func configureLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// main launches the Executor's long-lived browser container and hands
// its session to execflow.StartWorker, which polls the Temporal task
// queue until interrupted. One worker process owns one browser
// container; each plan item it executes reuses that same exclusive
// context (spec §5, "the browser context is exclusive to one run").
func main() {
	configPath := flag.String("config", "cometlocal.toml", "path to config file")
	flag.Parse()

	cfgManager, err := config.LoadManager(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()
	logger := configureLogger(cfg.General.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()
	host, err := browserhost.Launch(ctx, browserhost.Options{
		Image:    cfg.Browser.Image,
		Headless: true,
	}, "worker")
	if err != nil {
		logger.Error("failed to launch browser host", "error", err)
		os.Exit(1)
	}
	defer host.Close(ctx)

	rodBrowser := rod.New().ControlURL(host.ControlURL())
	if err := rodBrowser.Connect(); err != nil {
		logger.Error("failed to connect to browser host", "error", err)
		os.Exit(1)
	}
	defer rodBrowser.Close()

	page, err := rodBrowser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		logger.Error("failed to open browser page", "error", err)
		os.Exit(1)
	}

	driver := browser.New(page)
	session := browser.NewSession(driver)

	logger.Info("cometlocal-worker starting", "task_queue", execflow.TaskQueue, "temporal_host_port", cfg.Temporal.HostPort)
	if err := execflow.StartWorker(cfg.Temporal.HostPort, session); err != nil {
		logger.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
}
