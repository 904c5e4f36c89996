// Command refreshd is the long-running refresh daemon: cron-scheduled
// pipeline runs, cache cleanup, daily summaries, and the diagnostics
// HTTP listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"marketviz/internal/app"
	"marketviz/internal/config"
	"marketviz/internal/schedule"
	httptransport "marketviz/internal/transport/http"
	"marketviz/pkg/contracts"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("refreshd", flag.ContinueOnError)
	var (
		runOnStart  = fs.Bool("run-on-start", false, "run a refresh immediately before the first scheduled tick")
		showVersion = fs.Bool("version", false, "print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}
	if *runOnStart {
		cfg.Schedule.RunOnStart = true
	}

	application, err := app.New(cfg, app.Options{})
	if err != nil {
		slog.Error("Failed to assemble application", "error", err)
		return 1
	}
	logger := application.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.New(cfg, application.Runner, application.Store, application.Exporter, application.Universe, logger)
	if err := scheduler.Register(ctx); err != nil {
		logger.Error("Failed to register scheduled jobs", slog.String("error", err.Error()))
		return 1
	}

	var server *httptransport.Server
	serverErr := make(chan error, 1)
	if cfg.Diagnostics.Enabled {
		server = httptransport.NewServer(cfg.Diagnostics, application.Runner.Registry(), application.Providers.PrometheusHTTP, logger)
		go func() {
			serverErr <- server.Start()
		}()
	}

	scheduler.Start(ctx)
	logger.Info("refresh daemon running",
		slog.String("version", contracts.Version),
		slog.Bool("diagnostics", cfg.Diagnostics.Enabled),
		slog.String("listen_addr", cfg.Diagnostics.ListenAddr))

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("diagnostics listener failed", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Diagnostics.ShutdownTimeout)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("diagnostics shutdown failed", slog.String("error", err.Error()))
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("refresh daemon stopped")
	return exitCode
}
