package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// ErrUnavailable is returned when headless rendering is disabled.
var ErrUnavailable = errors.New("headless browser not configured")

// Noop stands in for the browser when headless rendering is turned off.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrUnavailable.
func (Noop) Fetch(_ context.Context, _ monitor.FetchRequest) (monitor.FetchResponse, error) {
	return monitor.FetchResponse{}, ErrUnavailable
}

// Capture always fails with ErrUnavailable.
func (Noop) Capture(_ context.Context, _ string) ([]byte, error) {
	return nil, ErrUnavailable
}
