package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/appminuta/mapa-ventas/internal/snapshots"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	errMissingGenerator = errors.New("scheduler: generator is required")
	errInvalidTimeout   = errors.New("scheduler: run timeout must be positive")
)

// Generator produces a snapshot run of the given kind.
type Generator interface {
	Generate(ctx context.Context, kind snapshots.Kind) (snapshots.GenerationSummary, error)
}

// Config describes the snapshot jobs.
type Config struct {
	Generator Generator
	Location  *time.Location
	// DailySpec and MonthlySpec are standard five-field cron expressions evaluated in Location.
	DailySpec   string
	MonthlySpec string
	Timeout     time.Duration
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Scheduler triggers the daily and month-end snapshot runs.
type Scheduler struct {
	cron      *cron.Cron
	generator Generator
	location  *time.Location
	timeout   time.Duration
	clock     func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// New validates the configuration and registers both jobs without starting them.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Generator == nil {
		return nil, errMissingGenerator
	}
	if cfg.Timeout <= 0 {
		return nil, errInvalidTimeout
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cronLog := cronLogger{sugar: logger.Sugar()}
	scheduler := &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		generator: cfg.Generator,
		location:  location,
		timeout:   cfg.Timeout,
		clock:     clock,
		logger:    logger,
	}

	if _, err := scheduler.cron.AddFunc(cfg.DailySpec, func() { scheduler.RunDaily(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduler: invalid daily spec %q: %w", cfg.DailySpec, err)
	}
	if _, err := scheduler.cron.AddFunc(cfg.MonthlySpec, func() { scheduler.RunMonthEnd(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduler: invalid monthly spec %q: %w", cfg.MonthlySpec, err)
	}
	return scheduler, nil
}

// Start launches the cron loop in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	for _, entry := range s.cron.Entries() {
		s.logger.Info("snapshot job scheduled", zap.Int("entry", int(entry.ID)), zap.Time("next_run", entry.Next))
	}
}

// Stop halts the cron loop and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("snapshot scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunDaily generates the daily snapshot.
func (s *Scheduler) RunDaily(ctx context.Context) {
	s.run(ctx, snapshots.KindDaily)
}

// RunMonthEnd generates the monthly snapshot when today is the last day of the month.
// The cron expression fires on days 28-31, so the calendar check happens here.
func (s *Scheduler) RunMonthEnd(ctx context.Context) {
	today := s.clock().In(s.location)
	if !IsLastDayOfMonth(today) {
		s.logger.Debug("monthly snapshot skipped before month end", zap.Time("today", today))
		return
	}
	s.run(ctx, snapshots.KindMonthly)
}

func (s *Scheduler) run(ctx context.Context, kind snapshots.Kind) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("snapshot run started", zap.String("tipo", string(kind)))
	summary, err := s.generator.Generate(runCtx, kind)
	fields := []zap.Field{
		zap.String("tipo", string(kind)),
		zap.Time("fecha", summary.Fecha),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", len(summary.Skipped)),
	}
	if err != nil {
		failed := make([]string, 0, len(summary.Failed))
		for _, failure := range summary.Failed {
			failed = append(failed, failure.ProjectName)
		}
		pending := make([]string, 0, len(summary.Pending))
		for _, ref := range summary.Pending {
			pending = append(pending, ref.ProjectName)
		}
		fields = append(fields, zap.Strings("failed_projects", failed), zap.Strings("pending_projects", pending), zap.Error(err))
		s.logger.Error("snapshot run failed", fields...)
		return
	}
	s.logger.Info("snapshot run completed", fields...)
}

// IsLastDayOfMonth reports whether the day after moment falls in another month.
func IsLastDayOfMonth(moment time.Time) bool {
	return moment.AddDate(0, 0, 1).Month() != moment.Month()
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
