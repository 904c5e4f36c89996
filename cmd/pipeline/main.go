// Command pipeline runs one complete market-data pipeline pass: fetch the
// universe, compute metrics, resample animation frames, and export every
// dataset to the data directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketviz/internal/app"
	"marketviz/internal/config"
	"marketviz/pkg/contracts"
	"marketviz/pkg/contracts/domain"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	var (
		symbolsFlag  = fs.String("symbols", "", "comma-separated ticker filter (defaults to the whole universe)")
		startFlag    = fs.String("start", "", "range start, YYYY-MM-DD (defaults to one year before end)")
		endFlag      = fs.String("end", "", "range end, YYYY-MM-DD (defaults to today)")
		periodFlag   = fs.String("period", "", "period code D, W, M, or Q (defaults to the configured period)")
		baselineFlag = fs.String("baseline", "", "return baseline date, YYYY-MM-DD (defaults to series start)")
		useCache     = fs.Bool("use-cache", true, "serve fresh cache entries instead of refetching")
		maxStocks    = fs.Int("max-stocks", 0, "universe size cap (defaults to the configured limit)")
		showVersion  = fs.Bool("version", false, "print version and exit")
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
	if *periodFlag != "" {
		cfg.Processing.Period = *periodFlag
	}
	if *baselineFlag != "" {
		cfg.Processing.BaselineDate = *baselineFlag
	}
	cfg.Cache.Enabled = *useCache

	application, err := app.New(cfg, app.Options{MaxStocks: *maxStocks, DisableTracing: true})
	if err != nil {
		slog.Error("Failed to assemble application", "error", err)
		return 1
	}
	logger := application.Logger

	start, end, err := resolveRange(*startFlag, *endFlag)
	if err != nil {
		logger.Error("Invalid date range", slog.String("error", err.Error()))
		return 2
	}

	params, err := application.RunParams(start, end)
	if err != nil {
		logger.Error("Invalid run parameters", slog.String("error", err.Error()))
		return 2
	}
	if *symbolsFlag != "" {
		params.Universe = filterUniverse(params.Universe, *symbolsFlag)
		if len(params.Universe) == 0 {
			logger.Error("No universe symbols match the filter", slog.String("symbols", *symbolsFlag))
			return 2
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Fetch.GlobalTimeout)
	defer cancel()

	result, err := application.Runner.Execute(ctx, "manual", params)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if shutdownErr := application.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("telemetry shutdown failed", slog.String("error", shutdownErr.Error()))
	}

	if err != nil {
		logger.Error("Pipeline run failed", slog.String("error", err.Error()))
		return 1
	}

	fmt.Printf("Run %s complete: %d/%d symbols, %d records, %d frames\n",
		result.RunID, result.SymbolsSucceeded, result.SymbolsRequested,
		len(result.Processed), len(result.Animation.Frames))
	if result.Report.HasFailures() {
		for _, f := range result.Report.Failures {
			fmt.Printf("  excluded %s (%s): %s\n", f.Symbol, f.Stage, f.Reason)
		}
	}
	return 0
}

// resolveRange applies the default one-year window ending today
func resolveRange(startStr, endStr string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if endStr != "" {
		parsed, err := time.Parse(config.DateFormat, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -end: %w", err)
		}
		end = parsed
	}

	start := end.AddDate(0, -config.DefaultLookbackMonths, 0)
	if startStr != "" {
		parsed, err := time.Parse(config.DateFormat, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -start: %w", err)
		}
		start = parsed
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is not after start %s",
			end.Format(config.DateFormat), start.Format(config.DateFormat))
	}
	return start, end, nil
}

// filterUniverse keeps the universe entries named in the comma-separated
// ticker list, case-insensitively
func filterUniverse(universe []domain.Symbol, filter string) []domain.Symbol {
	wanted := make(map[string]bool)
	for _, t := range strings.Split(filter, ",") {
		if t = strings.TrimSpace(t); t != "" {
			wanted[strings.ToUpper(t)] = true
		}
	}

	var out []domain.Symbol
	for _, s := range universe {
		if wanted[strings.ToUpper(s.Ticker)] {
			out = append(out, s)
		}
	}
	return out
}
