package settings

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
)

// MemorySource is an in-process Source for development and tests.
type MemorySource struct {
	mu     sync.RWMutex
	values map[string]string
	loads  atomic.Int64
}

// NewMemorySource seeds a MemorySource with initial values.
func NewMemorySource(initial map[string]string) *MemorySource {
	values := maps.Clone(initial)
	if values == nil {
		values = make(map[string]string)
	}
	return &MemorySource{values: values}
}

// LoadSettings returns a copy of all values.
func (m *MemorySource) LoadSettings(context.Context) (map[string]string, error) {
	m.loads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values), nil
}

// SaveSetting stores one value.
func (m *MemorySource) SaveSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Loads reports how many times LoadSettings was called.
func (m *MemorySource) Loads() int64 {
	return m.loads.Load()
}
