// Package worker implements the check pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const defaultFetchTimeout = 30 * time.Second

// ErrBadStatus marks a response whose HTTP status is 400 or above.
var ErrBadStatus = errors.New("unexpected http status")

// Tracker records per-target job state. *scheduler.Tracker satisfies it.
type Tracker interface {
	Transition(targetID string, to monitor.JobState) error
}

// Config controls Worker behavior.
type Config struct {
	FetchTimeout time.Duration
	Retry        monitor.RetryPolicy
	// Screenshots enables a full-page capture whenever content hash changes.
	Screenshots      bool
	ScreenshotPrefix string
}

// Dependencies groups the collaborators a Worker needs. Limiter, Notifier,
// BlobStore and Screenshotter are optional.
type Dependencies struct {
	Queue         monitor.Queue
	Tracker       Tracker
	Store         monitor.Store
	Fetcher       monitor.Fetcher
	Normalizer    monitor.Normalizer
	Classifier    monitor.Classifier
	Hasher        monitor.Hasher
	IDs           monitor.IDGenerator
	Clock         monitor.Clock
	Limiter       monitor.Limiter
	Notifier      monitor.Notifier
	BlobStore     monitor.BlobStore
	Screenshotter monitor.Screenshotter
}

// Worker consumes check jobs and runs fetch, detection and persistence.
type Worker struct {
	deps    Dependencies
	cfg     Config
	logger  *zap.Logger
	retries sync.WaitGroup
}

// New constructs a Worker.
func New(deps Dependencies, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	cfg.Retry = monitor.NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.Multiplier, cfg.Retry.MaxDelay)
	if cfg.ScreenshotPrefix == "" {
		cfg.ScreenshotPrefix = "screenshots"
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes. Pending
// retries are released before Run returns.
func (w *Worker) Run(ctx context.Context) {
	defer w.retries.Wait()
	for {
		job, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, monitor.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued check",
			zap.String("target_id", job.TargetID),
			zap.Int("attempt", job.Attempt),
		)
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job monitor.CheckJob) {
	if err := w.deps.Tracker.Transition(job.TargetID, monitor.StateRunning); err != nil {
		w.logger.Error("start check", zap.String("target_id", job.TargetID), zap.Error(err))
		return
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.deps.Limiter != nil {
		if err := w.deps.Limiter.Wait(ctx, job.URL); err != nil {
			w.logger.Warn("dispatch wait aborted", zap.String("target_id", job.TargetID), zap.Error(err))
			w.fail(ctx, job)
			return
		}
	}

	start := w.deps.Clock.Now()
	resp, err := w.fetch(ctx, job)
	elapsed := w.deps.Clock.Now().Sub(start)
	if err != nil {
		status := fetchStatus(err)
		w.logger.Warn("fetch failed",
			zap.String("target_id", job.TargetID),
			zap.String("url", job.URL),
			zap.Int("attempt", job.Attempt),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		w.recordFailure(ctx, job, status, resp.StatusCode, elapsed, err)
		w.fail(ctx, job)
		return
	}

	if err := w.detectAndPersist(ctx, job, resp, elapsed); err != nil {
		w.logger.Error("persist check failed",
			zap.String("target_id", job.TargetID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		w.recordFailure(ctx, job, monitor.CheckStatusError, resp.StatusCode, elapsed, err)
		w.fail(ctx, job)
		return
	}

	w.transition(job.TargetID, monitor.StateSucceeded)
}

func (w *Worker) fetch(ctx context.Context, job monitor.CheckJob) (monitor.FetchResponse, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	resp, err := w.deps.Fetcher.Fetch(fetchCtx, monitor.FetchRequest{
		URL:     job.URL,
		Timeout: w.cfg.FetchTimeout,
	})
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return resp, fmt.Errorf("fetch %s: %w", job.URL, err)
	}
	if resp.StatusCode >= 400 {
		return resp, fmt.Errorf("fetch %s: %w %d", job.URL, ErrBadStatus, resp.StatusCode)
	}
	return resp, nil
}

func fetchStatus(err error) monitor.CheckStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return monitor.CheckStatusTimeout
	}
	return monitor.CheckStatusFailed
}

// detectAndPersist runs the success path: snapshot, classification, attempt
// and verdict rows, notification hand-off. The attempt, verdict and
// last_checked_at are committed as one unit.
func (w *Worker) detectAndPersist(ctx context.Context, job monitor.CheckJob, resp monitor.FetchResponse, elapsed time.Duration) error {
	now := w.deps.Clock.Now()
	// Stored content must be valid UTF-8; the hash covers what is stored.
	raw := strings.ToValidUTF8(string(resp.Body), "\uFFFD")
	hash, err := w.deps.Hasher.Hash([]byte(raw))
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}
	normalized := w.deps.Normalizer.Normalize(raw)

	prev, err := w.previousSnapshot(ctx, job.TargetID)
	if err != nil {
		return err
	}
	if _, err := w.deps.Store.InsertSnapshot(ctx, monitor.Snapshot{
		ContentHash:       hash,
		RawContent:        raw,
		NormalizedContent: normalized,
		FirstSeenAt:       now,
	}); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	var verdict monitor.Verdict
	if prev != nil && prev.ContentHash == hash {
		verdict = unchangedVerdict()
	} else {
		verdict = w.deps.Classifier.Classify(prev, raw, normalized)
	}

	checkID, err := w.deps.IDs.NewID()
	if err != nil {
		return fmt.Errorf("check id: %w", err)
	}
	statusCode := resp.StatusCode
	attempt := monitor.CheckAttempt{
		ID:             checkID,
		TargetID:       job.TargetID,
		Attempt:        job.Attempt,
		Status:         monitor.CheckStatusSuccess,
		ResponseTimeMs: responseTime(resp, elapsed).Milliseconds(),
		StatusCode:     &statusCode,
		ContentHash:    hash,
		Timestamp:      now,
	}
	if prev == nil || prev.ContentHash != hash {
		attempt.ScreenshotURI = w.captureScreenshot(ctx, job, hash)
	}
	verdictID, err := w.deps.IDs.NewID()
	if err != nil {
		return fmt.Errorf("verdict id: %w", err)
	}
	verdict.ID = verdictID
	verdict.CheckAttemptID = checkID
	verdict.TargetID = job.TargetID
	verdict.CreatedAt = now
	if err := w.deps.Store.RecordCheck(ctx, attempt, verdict); err != nil {
		return fmt.Errorf("record check: %w", err)
	}
	metrics.ObserveCheck(job.URL, string(monitor.CheckStatusSuccess))
	metrics.ObserveVerdict(string(verdict.Type), string(verdict.Priority))

	w.logger.Info("check complete",
		zap.String("target_id", job.TargetID),
		zap.String("hash", sha256.Short(hash)),
		zap.Bool("changed", verdict.HasChanged),
		zap.String("type", string(verdict.Type)),
		zap.String("priority", string(verdict.Priority)),
		zap.Bool("headless", resp.UsedHeadless),
	)

	if verdict.HasChanged {
		w.notify(ctx, job, verdict)
	}
	return nil
}

func unchangedVerdict() monitor.Verdict {
	return monitor.Verdict{
		HasChanged:  false,
		Type:        monitor.ChangeNone,
		Priority:    monitor.PriorityInfo,
		Confidence:  1.0,
		Similarity:  1.0,
		Description: "content unchanged",
	}
}

func responseTime(resp monitor.FetchResponse, elapsed time.Duration) time.Duration {
	if resp.Duration > 0 {
		return resp.Duration
	}
	return elapsed
}

// previousSnapshot returns the snapshot of the latest successful check or nil
// when the target has never been fetched successfully.
func (w *Worker) previousSnapshot(ctx context.Context, targetID string) (*monitor.Snapshot, error) {
	last, err := w.deps.Store.LatestSuccessfulCheck(ctx, targetID)
	if errors.Is(err, monitor.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest successful check: %w", err)
	}
	snap, err := w.deps.Store.GetSnapshot(ctx, last.ContentHash)
	if errors.Is(err, monitor.ErrNotFound) {
		w.logger.Warn("previous snapshot missing", zap.String("target_id", targetID), zap.String("hash", last.ContentHash))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &snap, nil
}

func (w *Worker) captureScreenshot(ctx context.Context, job monitor.CheckJob, hash string) string {
	if !w.cfg.Screenshots || w.deps.Screenshotter == nil || w.deps.BlobStore == nil {
		return ""
	}
	png, err := w.deps.Screenshotter.Capture(ctx, job.URL)
	if err != nil {
		w.logger.Warn("screenshot failed", zap.String("target_id", job.TargetID), zap.Error(err))
		return ""
	}
	uri, err := w.deps.BlobStore.PutObject(ctx, w.screenshotPath(job.TargetID, hash), "image/png", png)
	if err != nil {
		w.logger.Warn("store screenshot failed", zap.String("target_id", job.TargetID), zap.Error(err))
		return ""
	}
	return uri
}

func (w *Worker) screenshotPath(targetID, hash string) string {
	prefix := strings.Trim(w.cfg.ScreenshotPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.png", targetID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.png", prefix, targetID, hash)
}

func (w *Worker) notify(ctx context.Context, job monitor.CheckJob, verdict monitor.Verdict) {
	if w.deps.Notifier == nil {
		return
	}
	target, err := w.deps.Store.GetTarget(ctx, job.TargetID)
	if err != nil {
		w.logger.Warn("load target for notification", zap.String("target_id", job.TargetID), zap.Error(err))
		target = monitor.Target{ID: job.TargetID, URL: job.URL}
	}
	w.deps.Notifier.Notify(target, verdict)
}

func (w *Worker) recordFailure(
	ctx context.Context,
	job monitor.CheckJob,
	status monitor.CheckStatus,
	statusCode int,
	elapsed time.Duration,
	cause error,
) {
	metrics.ObserveCheck(job.URL, string(status))
	id, err := w.deps.IDs.NewID()
	if err != nil {
		w.logger.Error("check id", zap.String("target_id", job.TargetID), zap.Error(err))
		return
	}
	attempt := monitor.CheckAttempt{
		ID:             id,
		TargetID:       job.TargetID,
		Attempt:        job.Attempt,
		Status:         status,
		ResponseTimeMs: elapsed.Milliseconds(),
		Error:          cause.Error(),
		Timestamp:      w.deps.Clock.Now(),
	}
	if statusCode > 0 {
		attempt.StatusCode = &statusCode
	}
	if err := w.deps.Store.CreateCheck(ctx, attempt); err != nil {
		w.logger.Error("record failed check", zap.String("target_id", job.TargetID), zap.Error(err))
	}
}

// fail moves a RUNNING job to FAILED and then either schedules a retry or
// gives up.
func (w *Worker) fail(ctx context.Context, job monitor.CheckJob) {
	w.transition(job.TargetID, monitor.StateFailed)

	if ctx.Err() != nil {
		w.transition(job.TargetID, monitor.StateRetryBackoff)
		w.transition(job.TargetID, monitor.StateIdle)
		return
	}
	if !w.cfg.Retry.ShouldRetry(job.Attempt) {
		w.transition(job.TargetID, monitor.StateFailedTerminal)
		w.logger.Error("check failed permanently",
			zap.String("target_id", job.TargetID),
			zap.Int("attempts", job.Attempt),
		)
		if err := w.deps.Store.MarkChecked(ctx, job.TargetID, w.deps.Clock.Now()); err != nil {
			w.logger.Warn("mark checked", zap.String("target_id", job.TargetID), zap.Error(err))
		}
		return
	}

	w.transition(job.TargetID, monitor.StateRetryBackoff)
	delay := w.cfg.Retry.Backoff(job.Attempt)
	w.logger.Info("retrying check",
		zap.String("target_id", job.TargetID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("backoff", delay),
	)
	w.scheduleRetry(ctx, job, delay)
}

func (w *Worker) scheduleRetry(ctx context.Context, job monitor.CheckJob, delay time.Duration) {
	next := job
	next.Attempt++
	next.Submitted = w.deps.Clock.Now().Add(delay)

	w.retries.Add(1)
	go func() {
		defer w.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			w.transition(job.TargetID, monitor.StateIdle)
			return
		case <-timer.C:
		}
		w.transition(job.TargetID, monitor.StateQueued)
		if err := w.deps.Queue.Enqueue(ctx, next); err != nil {
			w.logger.Error("requeue check", zap.String("target_id", job.TargetID), zap.Error(err))
			w.transition(job.TargetID, monitor.StateIdle)
		}
	}()
}

func (w *Worker) transition(targetID string, to monitor.JobState) {
	if err := w.deps.Tracker.Transition(targetID, to); err != nil {
		w.logger.Error("tracker transition", zap.String("target_id", targetID), zap.Error(err))
	}
}
