// Package settings provides a TTL-cached view of runtime settings that can be
// changed without restarting the process.
package settings

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Well-known setting keys.
const (
	KeyCheckIntervalMinutes = "check_interval_minutes"
	KeyNotificationsEnabled = "notifications_enabled"
)

const defaultTTL = 60 * time.Second

// Source loads and persists raw setting values.
type Source interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error
}

// Config controls the cache.
type Config struct {
	TTL      time.Duration
	Defaults map[string]string
}

// Service caches the full settings map for TTL. Reads never hold a lock
// across a source call; concurrent reloads are collapsed into one.
type Service struct {
	source   Source
	ttl      time.Duration
	defaults map[string]string
	clock    monitor.Clock
	logger   *zap.Logger
	group    singleflight.Group

	mu        sync.RWMutex
	cache     map[string]string
	expiresAt time.Time
}

// NewService builds a Service. A zero TTL selects 60s.
func NewService(source Source, cfg Config, clock monitor.Clock, logger *zap.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:   source,
		ttl:      cfg.TTL,
		defaults: maps.Clone(cfg.Defaults),
		clock:    clock,
		logger:   logger,
	}
}

// Get returns the value for key and whether it was set in the source or the
// defaults.
func (s *Service) Get(ctx context.Context, key string) (string, bool) {
	values := s.values(ctx)
	if v, ok := values[key]; ok {
		return v, true
	}
	v, ok := s.defaults[key]
	return v, ok
}

// GetString returns the value for key or def.
func (s *Service) GetString(ctx context.Context, key, def string) string {
	if v, ok := s.Get(ctx, key); ok {
		return v
	}
	return def
}

// GetInt parses the value for key, returning def when missing or malformed.
func (s *Service) GetInt(ctx context.Context, key string, def int) int {
	v, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		s.logger.Warn("setting is not an integer", zap.String("key", key), zap.String("value", v))
		return def
	}
	return n
}

// GetBool treats "true", "1", "yes" and "on" as true.
func (s *Service) GetBool(ctx context.Context, key string, def bool) bool {
	v, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

// All returns defaults overlaid with the source values.
func (s *Service) All(ctx context.Context) map[string]string {
	out := maps.Clone(s.defaults)
	if out == nil {
		out = make(map[string]string)
	}
	maps.Copy(out, s.values(ctx))
	return out
}

// Set writes through to the source and drops the cache so the next read
// observes the new value.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required")
	}
	if err := s.source.SaveSetting(ctx, key, value); err != nil {
		return fmt.Errorf("save setting %q: %w", key, err)
	}
	s.Invalidate()
	s.logger.Info("setting updated", zap.String("key", key))
	return nil
}

// Invalidate expires the cache immediately.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// Refresh reloads the cache from the source.
func (s *Service) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		values, err := s.source.LoadSettings(ctx)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		s.mu.Lock()
		s.cache = values
		s.expiresAt = s.clock.Now().Add(s.ttl)
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// values returns the cached map, reloading it when expired. A failed reload
// keeps serving the stale map until the next attempt.
func (s *Service) values(ctx context.Context) map[string]string {
	s.mu.RLock()
	fresh := s.clock.Now().Before(s.expiresAt)
	cache := s.cache
	s.mu.RUnlock()
	if fresh {
		return cache
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("settings refresh failed, serving cached values", zap.Error(err))
		return cache
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}
