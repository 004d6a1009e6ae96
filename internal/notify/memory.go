package notify

import (
	"context"
	"sync"
)

// MemoryChannel records alerts for inspection.
type MemoryChannel struct {
	name string

	mu     sync.RWMutex
	alerts []Alert
	err    error
}

// NewMemoryChannel returns a MemoryChannel with the given name.
func NewMemoryChannel(name string) *MemoryChannel {
	if name == "" {
		name = "memory"
	}
	return &MemoryChannel{name: name}
}

// Name implements Channel.
func (c *MemoryChannel) Name() string { return c.name }

// FailWith makes later sends return err (nil restores success).
func (c *MemoryChannel) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Send implements Channel.
func (c *MemoryChannel) Send(_ context.Context, alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Alerts returns the delivered alerts.
func (c *MemoryChannel) Alerts() []Alert {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}
