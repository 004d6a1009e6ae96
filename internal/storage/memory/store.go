package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Store implements monitor.Store with RWMutex-guarded maps.
type Store struct {
	mu        sync.RWMutex
	targets   map[string]monitor.Target
	checks    map[string][]monitor.CheckAttempt
	snapshots map[string]monitor.Snapshot
	verdicts  map[string][]monitor.Verdict
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		targets:   make(map[string]monitor.Target),
		checks:    make(map[string][]monitor.CheckAttempt),
		snapshots: make(map[string]monitor.Snapshot),
		verdicts:  make(map[string][]monitor.Verdict),
	}
}

// CreateTarget stores a new target.
func (s *Store) CreateTarget(_ context.Context, target monitor.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.targets[target.ID]; exists {
		return fmt.Errorf("target %s already exists", target.ID)
	}
	s.targets[target.ID] = target
	return nil
}

// UpdateTarget replaces an existing target.
func (s *Store) UpdateTarget(_ context.Context, target monitor.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[target.ID]; !ok {
		return fmt.Errorf("target %s: %w", target.ID, monitor.ErrNotFound)
	}
	s.targets[target.ID] = target
	return nil
}

// GetTarget fetches a target by ID.
func (s *Store) GetTarget(_ context.Context, id string) (monitor.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.targets[id]
	if !ok {
		return monitor.Target{}, fmt.Errorf("target %s: %w", id, monitor.ErrNotFound)
	}
	return target, nil
}

// ListTargets returns targets ordered by creation time.
func (s *Store) ListTargets(_ context.Context, enabledOnly bool) ([]monitor.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if enabledOnly && !t.Enabled {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b monitor.Target) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// MarkChecked sets LastCheckedAt.
func (s *Store) MarkChecked(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("target %s: %w", id, monitor.ErrNotFound)
	}
	target.LastCheckedAt = &at
	s.targets[id] = target
	return nil
}

// CreateCheck appends an attempt.
func (s *Store) CreateCheck(_ context.Context, check monitor.CheckAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[check.TargetID] = append(s.checks[check.TargetID], check)
	return nil
}

// ListChecks returns up to limit attempts, newest first. limit <= 0 means all.
func (s *Store) ListChecks(_ context.Context, targetID string, limit int) ([]monitor.CheckAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := newestFirst(s.checks[targetID], func(c monitor.CheckAttempt) time.Time { return c.Timestamp })
	return truncate(out, limit), nil
}

// LatestSuccessfulCheck returns the newest SUCCESS attempt.
func (s *Store) LatestSuccessfulCheck(_ context.Context, targetID string) (monitor.CheckAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checks := newestFirst(s.checks[targetID], func(c monitor.CheckAttempt) time.Time { return c.Timestamp })
	for _, c := range checks {
		if c.Status == monitor.CheckStatusSuccess {
			return c, nil
		}
	}
	return monitor.CheckAttempt{}, fmt.Errorf("successful check for %s: %w", targetID, monitor.ErrNotFound)
}

// InsertSnapshot stores the snapshot unless its hash is already present.
func (s *Store) InsertSnapshot(_ context.Context, snapshot monitor.Snapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snapshots[snapshot.ContentHash]; exists {
		return false, nil
	}
	s.snapshots[snapshot.ContentHash] = snapshot
	return true, nil
}

// GetSnapshot fetches a snapshot by content hash.
func (s *Store) GetSnapshot(_ context.Context, hash string) (monitor.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[hash]
	if !ok {
		return monitor.Snapshot{}, fmt.Errorf("snapshot %s: %w", hash, monitor.ErrNotFound)
	}
	return snap, nil
}

// CreateVerdict appends a verdict.
func (s *Store) CreateVerdict(_ context.Context, verdict monitor.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts[verdict.TargetID] = append(s.verdicts[verdict.TargetID], verdict)
	return nil
}

// RecordCheck stores a successful attempt with its verdict and stamps the
// target, all under one lock.
func (s *Store) RecordCheck(_ context.Context, check monitor.CheckAttempt, verdict monitor.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.targets[check.TargetID]
	if !ok {
		return fmt.Errorf("target %s: %w", check.TargetID, monitor.ErrNotFound)
	}
	at := check.Timestamp
	target.LastCheckedAt = &at
	s.targets[check.TargetID] = target
	s.checks[check.TargetID] = append(s.checks[check.TargetID], check)
	s.verdicts[verdict.TargetID] = append(s.verdicts[verdict.TargetID], verdict)
	return nil
}

// ListVerdicts returns up to limit verdicts, newest first.
func (s *Store) ListVerdicts(_ context.Context, targetID string, limit int) ([]monitor.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := newestFirst(s.verdicts[targetID], func(v monitor.Verdict) time.Time { return v.CreatedAt })
	return truncate(out, limit), nil
}

// newestFirst copies items sorted by descending time, keeping insertion order
// for ties (later inserts first).
func newestFirst[T any](items []T, at func(T) time.Time) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	slices.SortStableFunc(out, func(a, b T) int {
		return at(b).Compare(at(a))
	})
	return out
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
