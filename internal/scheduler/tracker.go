package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// StateInfo is the externally visible lifecycle of one target.
type StateInfo struct {
	State monitor.JobState `json:"state"`
	Since time.Time        `json:"since"`
}

// Tracker owns the per-target job state. It is the only place that decides
// whether a target may be queued, so at most one job per target is in flight.
type Tracker struct {
	clock monitor.Clock

	mu     sync.Mutex
	states map[string]StateInfo
}

// NewTracker creates an empty Tracker. Unknown targets are IDLE.
func NewTracker(clock monitor.Clock) *Tracker {
	return &Tracker{
		clock:  clock,
		states: make(map[string]StateInfo),
	}
}

// State returns the current state of a target.
func (t *Tracker) State(targetID string) StateInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.states[targetID]; ok {
		return info
	}
	return StateInfo{State: monitor.StateIdle}
}

// TryQueue moves a target into QUEUED. It returns monitor.ErrInFlight when the
// target already owns a job.
func (t *Tracker) TryQueue(targetID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.stateLocked(targetID)
	if current.InFlight() {
		return fmt.Errorf("%w: target %s is %s", monitor.ErrInFlight, targetID, current)
	}
	return t.setLocked(targetID, current, monitor.StateQueued)
}

// Transition moves a target to the given state if the move is legal.
func (t *Tracker) Transition(targetID string, to monitor.JobState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLocked(targetID, t.stateLocked(targetID), to)
}

// InFlight counts targets that currently own a job.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlightLocked()
}

// Snapshot copies every tracked state.
func (t *Tracker) Snapshot() map[string]StateInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]StateInfo, len(t.states))
	for id, info := range t.states {
		out[id] = info
	}
	return out
}

func (t *Tracker) stateLocked(targetID string) monitor.JobState {
	if info, ok := t.states[targetID]; ok {
		return info.State
	}
	return monitor.StateIdle
}

func (t *Tracker) setLocked(targetID string, from, to monitor.JobState) error {
	if err := monitor.ValidateTransition(from, to); err != nil {
		return fmt.Errorf("target %s: %w", targetID, err)
	}
	t.states[targetID] = StateInfo{State: to, Since: t.clock.Now()}
	metrics.SetInFlight(t.inFlightLocked())
	return nil
}

func (t *Tracker) inFlightLocked() int {
	n := 0
	for _, info := range t.states {
		if info.State.InFlight() {
			n++
		}
	}
	return n
}

// IsInFlight reports whether err came from a rejected TryQueue.
func IsInFlight(err error) bool {
	return errors.Is(err, monitor.ErrInFlight)
}
