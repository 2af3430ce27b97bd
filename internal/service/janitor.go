package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/homework-review-api/internal/models"
)

const (
	sweepDaily   = "daily"
	sweepEmpty   = "empty_submissions"
	sweepTimeout = "review_timeout"
)

type janitorSubmissionStore interface {
	DeleteEmpty(ctx context.Context, cutoff time.Time) (int64, error)
	TimeoutStale(ctx context.Context, cutoff, at time.Time, diagnostic string) (int64, error)
}

type homeworkCounter interface {
	CountCreatedBefore(ctx context.Context, t time.Time) (int, error)
}

// DailyHook runs after the daily sweep with the local start of the current day.
type DailyHook func(ctx context.Context, dayStart time.Time) error

// JanitorConfig schedules the sweeps.
type JanitorConfig struct {
	DailySpec     string
	SweepSpec     string
	ReviewTimeout time.Duration
	Location      *time.Location
	// SweepEmpty enables deletion of image-less submissions; it only makes sense when uploads are enabled.
	SweepEmpty bool
	RunTimeout time.Duration
}

// JanitorParams groups constructor dependencies.
type JanitorParams struct {
	Submissions janitorSubmissionStore
	Homeworks   homeworkCounter
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	DailyHook   DailyHook
	Config      JanitorConfig
}

// SweepReport summarises one periodic sweep.
type SweepReport struct {
	Deleted  int64
	TimedOut int64
}

// Janitor repairs persisted state no request or worker would otherwise fix.
type Janitor struct {
	submissions janitorSubmissionStore
	homeworks   homeworkCounter
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.SugaredLogger
	hook        DailyHook
	cfg         JanitorConfig
	cron        *cron.Cron
	now         func() time.Time
}

// NewJanitor builds the scheduler and registers both sweeps. It does not start it.
func NewJanitor(p JanitorParams) (*Janitor, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := p.Config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DailySpec == "" {
		cfg.DailySpec = "0 0 * * *"
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = "*/5 * * * *"
	}
	if cfg.ReviewTimeout <= 0 {
		cfg.ReviewTimeout = 5 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 4 * time.Minute
	}

	j := &Janitor{
		submissions: p.Submissions,
		homeworks:   p.Homeworks,
		cache:       p.Cache,
		metrics:     p.Metrics,
		logger:      logger.Sugar(),
		hook:        p.DailyHook,
		cfg:         cfg,
		now:         time.Now,
	}

	cronLog := cronLogger{logger: j.logger}
	j.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := j.cron.AddFunc(cfg.DailySpec, j.runDaily); err != nil {
		return nil, fmt.Errorf("schedule daily sweep %q: %w", cfg.DailySpec, err)
	}
	if _, err := j.cron.AddFunc(cfg.SweepSpec, j.runPeriodic); err != nil {
		return nil, fmt.Errorf("schedule periodic sweep %q: %w", cfg.SweepSpec, err)
	}
	return j, nil
}

// Start launches the scheduler in its own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Infow("janitor started", "daily", j.cfg.DailySpec, "sweep", j.cfg.SweepSpec,
		"timezone", j.cfg.Location.String(), "review_timeout", j.cfg.ReviewTimeout.String())
}

// Stop halts scheduling and waits for running sweeps until ctx expires.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.logger.Warnw("janitor stop timed out")
	}
}

func (j *Janitor) runDaily() {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.RunTimeout)
	defer cancel()
	j.DailySweep(ctx)
}

func (j *Janitor) runPeriodic() {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.RunTimeout)
	defer cancel()
	j.PeriodicSweep(ctx)
}

// DailySweep reports homework created before the local start of today and runs the daily hook.
// Student visibility is enforced by the board query, so nothing is deleted here.
func (j *Janitor) DailySweep(ctx context.Context) {
	dayStart := StartOfDay(j.now(), j.cfg.Location)

	count, err := j.homeworks.CountCreatedBefore(ctx, dayStart)
	j.metrics.RecordJanitorSweep(sweepDaily, 0, err)
	if err != nil {
		j.logger.Errorw("daily sweep failed", "error", err)
	} else {
		j.logger.Infow("daily sweep", "day_start", dayStart.Format(time.RFC3339), "previous_homeworks", count)
	}

	if j.hook != nil {
		if err := j.hook(ctx, dayStart); err != nil {
			j.logger.Errorw("daily hook failed", "error", err)
		}
	}
	j.cache.InvalidateBoard(ctx)
}

// PeriodicSweep deletes image-less submissions and times out stale reviews. The two steps are independent.
func (j *Janitor) PeriodicSweep(ctx context.Context) SweepReport {
	var report SweepReport
	now := j.now().UTC()

	if j.cfg.SweepEmpty {
		deleted, err := j.submissions.DeleteEmpty(ctx, now)
		j.metrics.RecordJanitorSweep(sweepEmpty, deleted, err)
		if err != nil {
			j.logger.Errorw("empty submission sweep failed", "error", err)
		} else {
			report.Deleted = deleted
		}
	}

	timedOut, err := j.submissions.TimeoutStale(ctx, now.Add(-j.cfg.ReviewTimeout), now, models.DiagnosticTimedOut)
	j.metrics.RecordJanitorSweep(sweepTimeout, timedOut, err)
	if err != nil {
		j.logger.Errorw("review timeout sweep failed", "error", err)
	} else {
		report.TimedOut = timedOut
	}

	if report.Deleted > 0 || report.TimedOut > 0 {
		j.logger.Infow("periodic sweep", "deleted_empty", report.Deleted, "timed_out", report.TimedOut)
		j.cache.InvalidateBoard(ctx)
	}
	return report
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
