// Package ratelimit gates check dispatch with token buckets: one global bucket
// for all targets and an optional bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/pagewatch/internal/metrics"
)

// DefaultDispatchRPS is one dispatch per second across all targets.
const DefaultDispatchRPS = 1.0

// Limiter implements monitor.Limiter.
type Limiter struct {
	global *rate.Limiter

	mu        sync.Mutex
	hosts     map[string]*rate.Limiter
	hostRate  rate.Limit
	hostBurst int
}

// Config holds rate limiter configuration. A non-positive GlobalRPS selects
// DefaultDispatchRPS; a non-positive PerHostRPS disables per-host limiting.
type Config struct {
	GlobalRPS    float64
	GlobalBurst  int
	PerHostRPS   float64
	PerHostBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	globalRPS := cfg.GlobalRPS
	if globalRPS <= 0 {
		globalRPS = DefaultDispatchRPS
	}
	hostRate := rate.Inf
	if cfg.PerHostRPS > 0 {
		hostRate = rate.Limit(cfg.PerHostRPS)
	}
	return &Limiter{
		global:    rate.NewLimiter(rate.Limit(globalRPS), max(cfg.GlobalBurst, 1)),
		hosts:     make(map[string]*rate.Limiter),
		hostRate:  hostRate,
		hostBurst: max(cfg.PerHostBurst, 1),
	}
}

// Wait blocks until both the global and the host bucket release a token.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	start := time.Now()
	if err := l.global.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay("global", d)
	}

	limiter := l.hostLimiter(hostOf(rawURL))
	if limiter == nil {
		return nil
	}
	start = time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay("host", d)
	}
	return nil
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	if l.hostRate == rate.Inf {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.hosts[host]
	if !ok {
		limiter = rate.NewLimiter(l.hostRate, l.hostBurst)
		l.hosts[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
