// Package schedule runs the refresh daemon's recurring jobs: the market
// refresh, cache cleanup, and the daily summary digest.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"marketviz/internal/cache"
	"marketviz/internal/config"
	"marketviz/internal/exporter"
	"marketviz/internal/pipeline"
	"marketviz/pkg/contracts/domain"
)

// TriggerSchedule labels runs started by the cron schedule
const TriggerSchedule = "schedule"

// Scheduler manages the daemon's cron jobs. Specs use six fields
// (seconds first).
type Scheduler struct {
	cron     *cron.Cron
	runner   *pipeline.Runner
	store    *cache.Store
	exporter *exporter.Exporter
	cfg      *config.Config
	universe []domain.Symbol
	logger   *slog.Logger

	mu         sync.Mutex
	lastResult *pipeline.RunResult
}

// New creates a scheduler; Register must be called before Start
func New(cfg *config.Config, runner *pipeline.Runner, store *cache.Store, exp *exporter.Exporter, universe []domain.Symbol, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		runner:   runner,
		store:    store,
		exporter: exp,
		cfg:      cfg,
		universe: universe,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Register binds the refresh, cleanup, and summary jobs to their cron specs
func (s *Scheduler) Register(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule.RefreshSpec, func() { s.refreshJob(ctx) }); err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule.CleanupSpec, func() { s.cleanupJob(ctx) }); err != nil {
		return fmt.Errorf("register cleanup job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule.SummarySpec, func() { s.summaryJob(ctx) }); err != nil {
		return fmt.Errorf("register summary job: %w", err)
	}
	return nil
}

// Start begins the cron loop, optionally running a refresh immediately
func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.Schedule.RunOnStart {
		s.refreshJob(ctx)
	}
	s.cron.Start()
	s.logger.InfoContext(ctx, "scheduler started",
		slog.String("refresh", s.cfg.Schedule.RefreshSpec),
		slog.String("cleanup", s.cfg.Schedule.CleanupSpec),
		slog.String("summary", s.cfg.Schedule.SummarySpec))
}

// Stop halts the cron loop and waits for in-flight jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// RefreshNow runs the refresh job immediately outside the schedule
func (s *Scheduler) RefreshNow(ctx context.Context) {
	s.refreshJob(ctx)
}

// refreshParams builds the scheduled run's parameters: the trailing
// lookback window ending today, cached fetches, configured period.
func (s *Scheduler) refreshParams(now time.Time) pipeline.Params {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -config.DefaultLookbackMonths, 0)

	params := pipeline.Params{
		Universe: s.universe,
		Start:    start,
		End:      end,
		Period:   domain.PeriodCode(s.cfg.Processing.Period),
		UseCache: s.cfg.Cache.Enabled,
	}
	if s.cfg.Processing.BaselineDate != "" {
		if baseline, err := time.Parse(config.DateFormat, s.cfg.Processing.BaselineDate); err == nil {
			params.Baseline = baseline
		}
	}
	return params
}

func (s *Scheduler) refreshJob(ctx context.Context) {
	s.logger.InfoContext(ctx, "running scheduled refresh")
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Fetch.GlobalTimeout)
	defer cancel()

	result, err := s.runner.Execute(ctx, TriggerSchedule, s.refreshParams(time.Now()))
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled refresh failed", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "scheduled refresh complete",
		slog.String("run_id", result.RunID),
		slog.Int("succeeded", result.SymbolsSucceeded),
		slog.Int("failed", len(result.Report.Failures)))
}

func (s *Scheduler) cleanupJob(ctx context.Context) {
	retention := time.Duration(s.cfg.Cache.RetentionDays) * 24 * time.Hour
	removed, err := s.store.Prune(ctx, retention)
	if err != nil {
		s.logger.ErrorContext(ctx, "cache cleanup failed", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "cache cleanup complete",
		slog.Int("removed", removed),
		slog.Int("retention_days", s.cfg.Cache.RetentionDays))
}

// summaryJob writes the daily digest from the most recent refresh,
// triggering a refresh first when none has run yet
func (s *Scheduler) summaryJob(ctx context.Context) {
	s.mu.Lock()
	result := s.lastResult
	s.mu.Unlock()

	if result == nil {
		s.refreshJob(ctx)
		s.mu.Lock()
		result = s.lastResult
		s.mu.Unlock()
		if result == nil {
			s.logger.WarnContext(ctx, "daily summary skipped: no successful refresh")
			return
		}
	}

	summary := exporter.BuildDailySummary(result.Processed, config.DefaultTopPerformers, time.Now())
	if err := s.exporter.WriteDailySummary(summary); err != nil {
		s.logger.ErrorContext(ctx, "daily summary export failed", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "daily summary written",
		slog.String("snapshot", summary.Snapshot),
		slog.Int("performers", len(summary.Performers)))
}
