package monitor

import "fmt"

// JobState is the scheduler lifecycle state of a single target.
type JobState string

// Per-target scheduler states.
const (
	StateIdle           JobState = "IDLE"
	StateQueued         JobState = "QUEUED"
	StateRunning        JobState = "RUNNING"
	StateSucceeded      JobState = "SUCCEEDED"
	StateFailed         JobState = "FAILED"
	StateRetryBackoff   JobState = "RETRY_BACKOFF"
	StateFailedTerminal JobState = "FAILED_TERMINAL"
)

var allowedTransitions = map[JobState][]JobState{
	StateIdle:           {StateQueued},
	StateQueued:         {StateRunning, StateIdle},
	StateRunning:        {StateSucceeded, StateFailed},
	StateSucceeded:      {StateQueued},
	StateFailed:         {StateRetryBackoff, StateFailedTerminal},
	StateRetryBackoff:   {StateQueued, StateIdle},
	StateFailedTerminal: {StateQueued},
}

// InFlight reports whether a target in this state still owns a job. While in
// flight no other check may be queued for the same target.
func (s JobState) InFlight() bool {
	switch s {
	case StateQueued, StateRunning, StateFailed, StateRetryBackoff:
		return true
	default:
		return false
	}
}

// ValidateTransition returns ErrInvalidTransition when from -> to is not in
// the transition table.
func ValidateTransition(from, to JobState) error {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
