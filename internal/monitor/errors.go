package monitor

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInFlight is returned when a target already has a queued or running check.
	ErrInFlight = errors.New("check already in flight")
	// ErrInvalidTransition is returned when a job state change is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrQueueClosed is returned by queues after shutdown.
	ErrQueueClosed = errors.New("queue closed")
)
