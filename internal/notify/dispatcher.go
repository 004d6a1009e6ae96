package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/settings"
)

const defaultDedupWindow = 5 * time.Minute

// Toggle reads boolean runtime settings. *settings.Service satisfies it.
type Toggle interface {
	GetBool(ctx context.Context, key string, def bool) bool
}

// Route binds a channel to its filters. A zero RateLimit disables the limit.
type Route struct {
	Channel     Channel
	MinPriority monitor.Priority
	RateLimit   int
	RateWindow  time.Duration
}

// DispatcherConfig tunes duplicate suppression.
type DispatcherConfig struct {
	DedupWindow time.Duration
}

// Dispatcher applies per-channel filters and fans alerts out in parallel.
type Dispatcher struct {
	routes []*route
	toggle Toggle
	clock  monitor.Clock
	window time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

type route struct {
	Route
	mu   sync.Mutex
	sent []time.Time
}

// NewDispatcher builds a Dispatcher. toggle may be nil.
func NewDispatcher(routes []Route, toggle Toggle, clock monitor.Clock, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = defaultDedupWindow
	}
	d := &Dispatcher{
		toggle:   toggle,
		clock:    clock,
		window:   cfg.DedupWindow,
		logger:   logger.Named("notify"),
		lastSent: make(map[string]time.Time),
	}
	for _, r := range routes {
		if r.Channel == nil {
			continue
		}
		if r.MinPriority == "" {
			r.MinPriority = monitor.PriorityInfo
		}
		d.routes = append(d.routes, &route{Route: r})
	}
	return d
}

// Dispatch sends the alert to every eligible channel and returns one Result
// per configured channel in route order.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) []Result {
	results := make([]Result, len(d.routes))
	for i, r := range d.routes {
		results[i] = Result{Channel: r.Channel.Name()}
	}

	if d.toggle != nil && !d.toggle.GetBool(ctx, settings.KeyNotificationsEnabled, true) {
		return d.finish(fill(results, OutcomeMuted))
	}

	now := d.clock.Now()
	key := dedupKey(alert)
	if d.isDuplicate(key, now) {
		return d.finish(fill(results, OutcomeDuplicate))
	}

	var g errgroup.Group
	for i, r := range d.routes {
		if !alert.Verdict.Priority.AtLeast(r.MinPriority) {
			results[i].Outcome = OutcomeFiltered
			continue
		}
		if !r.allow(now) {
			results[i].Outcome = OutcomeRateLimited
			continue
		}
		g.Go(func() error {
			if err := r.Channel.Send(ctx, alert); err != nil {
				results[i].Outcome = OutcomeFailed
				results[i].Err = fmt.Errorf("send via %s: %w", r.Channel.Name(), err)
				return nil
			}
			results[i].Outcome = OutcomeSent
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.Outcome == OutcomeSent {
			d.markSent(key, now)
			break
		}
	}
	return d.finish(results)
}

func (d *Dispatcher) finish(results []Result) []Result {
	for _, res := range results {
		metrics.ObserveNotification(res.Channel, string(res.Outcome))
		if res.Err != nil {
			d.logger.Warn("notification failed", zap.String("channel", res.Channel), zap.Error(res.Err))
		}
	}
	return results
}

func (d *Dispatcher) isDuplicate(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, at := range d.lastSent {
		if now.Sub(at) >= d.window {
			delete(d.lastSent, k)
		}
	}
	_, seen := d.lastSent[key]
	return seen
}

func (d *Dispatcher) markSent(key string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSent[key] = now
}

func dedupKey(a Alert) string {
	return a.Target.ID + "|" + string(a.Verdict.Type) + "|" + string(a.Verdict.Priority)
}

// allow records a send in the sliding window when there is room.
func (r *route) allow(now time.Time) bool {
	if r.RateLimit <= 0 || r.RateWindow <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-r.RateWindow)
	kept := r.sent[:0]
	for _, at := range r.sent {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	r.sent = kept
	if len(r.sent) >= r.RateLimit {
		return false
	}
	r.sent = append(r.sent, now)
	return true
}

func fill(results []Result, outcome Outcome) []Result {
	for i := range results {
		results[i].Outcome = outcome
	}
	return results
}
