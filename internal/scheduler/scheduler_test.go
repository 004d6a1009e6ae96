package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fakeTargets struct {
	targets []monitor.Target
	err     error
}

func (f *fakeTargets) CreateTarget(context.Context, monitor.Target) error { return nil }
func (f *fakeTargets) UpdateTarget(context.Context, monitor.Target) error { return nil }

func (f *fakeTargets) GetTarget(_ context.Context, id string) (monitor.Target, error) {
	for _, t := range f.targets {
		if t.ID == id {
			return t, nil
		}
	}
	return monitor.Target{}, monitor.ErrNotFound
}

func (f *fakeTargets) ListTargets(_ context.Context, enabledOnly bool) ([]monitor.Target, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []monitor.Target
	for _, t := range f.targets {
		if enabledOnly && !t.Enabled {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTargets) MarkChecked(context.Context, string, time.Time) error { return nil }

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []monitor.CheckJob
	err  error
}

func (r *recordingSubmitter) Enqueue(_ context.Context, job monitor.CheckJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type staticInterval int

func (s staticInterval) GetInt(context.Context, string, int) int { return int(s) }

func newTestScheduler(t *testing.T, targets *fakeTargets, sub Submitter, cfg Config) (*Scheduler, *Tracker, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(clk)
	s, err := New(targets, sub, tracker, staticInterval(5), clk, cfg, zap.NewNop())
	require.NoError(t, err)
	return s, tracker, clk
}

func TestValidateInterval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    int
		want  int
		valid bool
	}{
		{1, 1, true},
		{5, 5, true},
		{1440, 1440, true},
		{0, 5, false},
		{-3, 5, false},
		{1441, 5, false},
	}
	for _, tc := range cases {
		got, ok := ValidateInterval(tc.in)
		require.Equal(t, tc.want, got, "input %d", tc.in)
		require.Equal(t, tc.valid, ok, "input %d", tc.in)
	}
}

func TestIntervalFallsBackOnInvalidSetting(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Now()}
	s, err := New(&fakeTargets{}, &recordingSubmitter{}, NewTracker(clk), staticInterval(5000), clk, Config{}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, s.Interval(context.Background()))
}

func TestNextUsesIntervalOrCron(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 1, 30, 0, time.UTC)
	s, _, _ := newTestScheduler(t, &fakeTargets{}, &recordingSubmitter{}, Config{})
	require.Equal(t, now.Add(5*time.Minute), s.Next(context.Background(), now))

	s, _, _ = newTestScheduler(t, &fakeTargets{}, &recordingSubmitter{}, Config{CronSpec: "*/15 * * * *"})
	require.Equal(t, time.Date(2024, 5, 1, 12, 15, 0, 0, time.UTC), s.Next(context.Background(), now))
}

func TestNewRejectsBadCron(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	_, err := New(&fakeTargets{}, &recordingSubmitter{}, NewTracker(clk), nil, clk, Config{CronSpec: "not a cron"}, nil)
	require.Error(t, err)
}

func TestTriggerSkipsInFlightTargets(t *testing.T) {
	t.Parallel()

	targets := &fakeTargets{targets: []monitor.Target{
		{ID: "a", URL: "https://a.test", Enabled: true, CheckIntervalMinutes: 5},
		{ID: "b", URL: "https://b.test", Enabled: true, CheckIntervalMinutes: 5},
		{ID: "c", URL: "https://c.test", Enabled: false, CheckIntervalMinutes: 5},
	}}
	sub := &recordingSubmitter{}
	s, tracker, _ := newTestScheduler(t, targets, sub, Config{})

	first, err := s.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, TriggerResult{Enqueued: 2}, first)
	require.Equal(t, monitor.StateQueued, tracker.State("a").State)
	require.Equal(t, 1, sub.jobs[0].Attempt)

	second, err := s.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, TriggerResult{Skipped: 2}, second)
	require.Equal(t, 2, sub.count())
	require.Equal(t, 2, tracker.InFlight())
}

func TestTriggerHonoursPerTargetInterval(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Minute)
	almost := now.Add(-10*time.Minute + 20*time.Second)
	targets := &fakeTargets{targets: []monitor.Target{
		{ID: "recent", Enabled: true, CheckIntervalMinutes: 10, LastCheckedAt: &recent},
		{ID: "slack", Enabled: true, CheckIntervalMinutes: 10, LastCheckedAt: &almost},
	}}
	sub := &recordingSubmitter{}
	s, _, _ := newTestScheduler(t, targets, sub, Config{})

	result, err := s.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, TriggerResult{Enqueued: 1, NotDue: 1}, result)
	require.Equal(t, "slack", sub.jobs[0].TargetID)
}

func TestTriggerRollsBackOnEnqueueFailure(t *testing.T) {
	t.Parallel()

	targets := &fakeTargets{targets: []monitor.Target{{ID: "a", Enabled: true}}}
	sub := &recordingSubmitter{err: errors.New("queue full")}
	s, tracker, _ := newTestScheduler(t, targets, sub, Config{})

	result, err := s.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, TriggerResult{Failed: 1}, result)
	require.Equal(t, monitor.StateIdle, tracker.State("a").State)
}

func TestTriggerListError(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t, &fakeTargets{err: errors.New("db down")}, &recordingSubmitter{}, Config{})
	_, err := s.Trigger(context.Background())
	require.ErrorContains(t, err, "list targets: db down")
}

func TestTriggerTarget(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	targets := &fakeTargets{targets: []monitor.Target{{ID: "a", Enabled: true, LastCheckedAt: &now}}}
	sub := &recordingSubmitter{}
	s, _, _ := newTestScheduler(t, targets, sub, Config{})

	require.NoError(t, s.TriggerTarget(context.Background(), "a"))
	require.ErrorIs(t, s.TriggerTarget(context.Background(), "a"), monitor.ErrInFlight)
	require.ErrorIs(t, s.TriggerTarget(context.Background(), "missing"), monitor.ErrNotFound)
	require.Equal(t, 1, sub.count())
}

func TestRunTriggersOnStartAndStops(t *testing.T) {
	t.Parallel()

	targets := &fakeTargets{targets: []monitor.Target{{ID: "a", Enabled: true}}}
	sub := &recordingSubmitter{}
	s, _, _ := newTestScheduler(t, targets, sub, Config{RunOnStart: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
