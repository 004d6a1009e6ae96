// Package scheduler decides when targets are checked and hands due targets to
// the job queue, never more than one job per target at a time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/settings"
)

// Interval bounds in minutes.
const (
	MinIntervalMinutes     = 1
	MaxIntervalMinutes     = 1440
	DefaultIntervalMinutes = 5
)

const (
	defaultEnqueueTimeout = 5 * time.Second
	defaultDueSlack       = 30 * time.Second
)

// Submitter accepts check jobs.
type Submitter interface {
	Enqueue(ctx context.Context, job monitor.CheckJob) error
}

// IntervalSource exposes integer settings. *settings.Service satisfies it.
type IntervalSource interface {
	GetInt(ctx context.Context, key string, def int) int
}

// Config tunes the scheduler loop.
type Config struct {
	// IntervalMinutes is used when the settings source has no value.
	IntervalMinutes int
	// CronSpec, when set, replaces the interval with a standard 5-field cron schedule.
	CronSpec       string
	RunOnStart     bool
	EnqueueTimeout time.Duration
	// DueSlack lets a target run slightly early so it is not pushed a whole cycle.
	DueSlack time.Duration
}

// TriggerResult summarizes one scheduling pass.
type TriggerResult struct {
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
	NotDue   int `json:"not_due"`
	Failed   int `json:"failed"`
}

// Scheduler periodically enqueues checks for enabled, due targets.
type Scheduler struct {
	targets   monitor.TargetStore
	submitter Submitter
	tracker   *Tracker
	settings  IntervalSource
	clock     monitor.Clock
	cfg       Config
	schedule  cron.Schedule
	logger    *zap.Logger
}

// New builds a Scheduler. It fails only when CronSpec does not parse.
func New(
	targets monitor.TargetStore,
	submitter Submitter,
	tracker *Tracker,
	settingsSource IntervalSource,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if cfg.DueSlack <= 0 {
		cfg.DueSlack = defaultDueSlack
	}
	if minutes, ok := ValidateInterval(cfg.IntervalMinutes); !ok {
		cfg.IntervalMinutes = minutes
	}
	s := &Scheduler{
		targets:   targets,
		submitter: submitter,
		tracker:   tracker,
		settings:  settingsSource,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("scheduler"),
	}
	if cfg.CronSpec != "" {
		schedule, err := cron.ParseStandard(cfg.CronSpec)
		if err != nil {
			return nil, fmt.Errorf("parse cron spec %q: %w", cfg.CronSpec, err)
		}
		s.schedule = schedule
	}
	return s, nil
}

// ValidateInterval returns minutes when it lies in [1, 1440] and the default
// otherwise. The bool reports whether the input was valid.
func ValidateInterval(minutes int) (int, bool) {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return DefaultIntervalMinutes, false
	}
	return minutes, true
}

// Interval reads the global check interval from settings on every call.
func (s *Scheduler) Interval(ctx context.Context) time.Duration {
	minutes := s.cfg.IntervalMinutes
	if s.settings != nil {
		minutes = s.settings.GetInt(ctx, settings.KeyCheckIntervalMinutes, s.cfg.IntervalMinutes)
	}
	valid, ok := ValidateInterval(minutes)
	if !ok {
		s.logger.Warn("invalid check interval, using default",
			zap.Int("configured_minutes", minutes),
			zap.Int("default_minutes", valid),
		)
	}
	return time.Duration(valid) * time.Minute
}

// Next returns the next fire time after now.
func (s *Scheduler) Next(ctx context.Context, now time.Time) time.Time {
	if s.schedule != nil {
		return s.schedule.Next(now)
	}
	return cron.Every(s.Interval(ctx)).Next(now)
}

// Run drives Trigger until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.RunOnStart {
		s.runOnce(ctx)
	}
	for {
		now := s.clock.Now()
		next := s.Next(ctx, now)
		s.logger.Debug("next scheduling pass", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.Trigger(ctx)
	if err != nil {
		s.logger.Error("scheduling pass failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduling pass complete",
		zap.Int("enqueued", result.Enqueued),
		zap.Int("skipped", result.Skipped),
		zap.Int("not_due", result.NotDue),
		zap.Int("failed", result.Failed),
	)
}

// Trigger runs one scheduling pass over all enabled targets. Targets that are
// still in flight are skipped, never queued twice.
func (s *Scheduler) Trigger(ctx context.Context) (TriggerResult, error) {
	var result TriggerResult
	targets, err := s.targets.ListTargets(ctx, true)
	if err != nil {
		return result, fmt.Errorf("list targets: %w", err)
	}

	now := s.clock.Now()
	global := s.Interval(ctx)
	for _, target := range targets {
		if !s.due(target, now, global) {
			result.NotDue++
			continue
		}
		switch err := s.enqueue(ctx, target); {
		case err == nil:
			result.Enqueued++
		case IsInFlight(err):
			result.Skipped++
			s.logger.Debug("target still in flight", zap.String("target_id", target.ID))
		default:
			result.Failed++
			s.logger.Warn("enqueue check failed", zap.String("target_id", target.ID), zap.Error(err))
		}
	}

	metrics.ObserveSchedulerOutcome("enqueued", result.Enqueued)
	metrics.ObserveSchedulerOutcome("skipped", result.Skipped)
	metrics.ObserveSchedulerOutcome("not_due", result.NotDue)
	metrics.ObserveSchedulerOutcome("failed", result.Failed)
	return result, nil
}

// TriggerTarget queues a manual check for one target regardless of its
// interval. It returns monitor.ErrInFlight when a check is already pending.
func (s *Scheduler) TriggerTarget(ctx context.Context, targetID string) error {
	target, err := s.targets.GetTarget(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get target: %w", err)
	}
	return s.enqueue(ctx, target)
}

func (s *Scheduler) due(target monitor.Target, now time.Time, global time.Duration) bool {
	if target.LastCheckedAt == nil {
		return true
	}
	interval := global
	if minutes, ok := ValidateInterval(target.CheckIntervalMinutes); ok {
		interval = time.Duration(minutes) * time.Minute
	}
	return !now.Add(s.cfg.DueSlack).Before(target.LastCheckedAt.Add(interval))
}

func (s *Scheduler) enqueue(ctx context.Context, target monitor.Target) error {
	if err := s.tracker.TryQueue(target.ID); err != nil {
		return err
	}
	job := monitor.CheckJob{
		TargetID:  target.ID,
		URL:       target.URL,
		Attempt:   1,
		Submitted: s.clock.Now(),
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, s.cfg.EnqueueTimeout)
	defer cancel()
	if err := s.submitter.Enqueue(enqueueCtx, job); err != nil {
		if rollbackErr := s.tracker.Transition(target.ID, monitor.StateIdle); rollbackErr != nil {
			s.logger.Error("rollback tracker state", zap.String("target_id", target.ID), zap.Error(rollbackErr))
		}
		return fmt.Errorf("enqueue check: %w", err)
	}
	return nil
}
