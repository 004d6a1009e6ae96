package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Sender delivers one alert. *Dispatcher satisfies it.
type Sender interface {
	Dispatch(ctx context.Context, alert Alert) []Result
}

// HubConfig controls buffering for the Hub.
//   - BufferSize: size of the internal channel (default 256).
//   - SendTimeout: per-alert deadline for the Sender (default 30s).
//   - BaseContext: parent context for sends (defaults to context.Background()).
type HubConfig struct {
	BufferSize  int
	SendTimeout time.Duration
	BaseContext context.Context
}

const (
	defaultBufferSize  = 256
	defaultSendTimeout = 30 * time.Second
	dropLogInterval    = 5 * time.Second
)

// Hub implements monitor.Notifier. Notify never blocks: alerts are buffered
// and sent from a background goroutine, and dropped when the buffer is full.
type Hub struct {
	cfg         HubConfig
	sender      Sender
	clock       monitor.Clock
	alerts      chan Alert
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *zap.Logger
	dropLimiter rateLimiter
	dropped     atomic.Int64
	dropTotal   atomic.Int64

	// mu orders enqueues before Close so drain sees every accepted alert.
	mu     sync.RWMutex
	closed bool
}

// NewHub starts the background sender and returns a ready Hub.
func NewHub(sender Sender, clock monitor.Clock, cfg HubConfig, logger *zap.Logger) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:         cfg,
		sender:      sender,
		clock:       clock,
		alerts:      make(chan Alert, cfg.BufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger.Named("notify_hub"),
		dropLimiter: rateLimiter{interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Notify enqueues an alert for delivery. It never blocks; if the buffer is
// full or the Hub is closed the alert is dropped, counted, and a rate-limited
// warning is logged.
func (h *Hub) Notify(target monitor.Target, verdict monitor.Verdict) {
	if h == nil {
		return
	}
	alert := Alert{Target: target, Verdict: verdict, CreatedAt: h.clock.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.drop("hub closed")
		return
	}
	select {
	case h.alerts <- alert:
	default:
		h.drop("backpressure")
	}
}

// Dropped reports how many alerts were discarded since the Hub started.
func (h *Hub) Dropped() int64 {
	return h.dropTotal.Load()
}

func (h *Hub) drop(reason string) {
	h.dropTotal.Add(1)
	h.dropped.Add(1)
	metrics.ObserveNotification("hub", "dropped")
	if h.dropLimiter.Allow(time.Now()) {
		count := h.dropped.Swap(0)
		h.logger.Warn("alerts dropped", zap.String("reason", reason), zap.Int64("dropped", count))
	}
}

// Close stops accepting alerts, sends what is buffered, and waits for the
// background goroutine. It is safe to call multiple times.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.stopCh)
	}
	h.mu.Unlock()
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for {
		select {
		case alert := <-h.alerts:
			h.send(alert)
		case <-h.stopCh:
			h.drain()
			return
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case alert := <-h.alerts:
			h.send(alert)
		default:
			return
		}
	}
}

func (h *Hub) send(alert Alert) {
	ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SendTimeout)
	defer cancel()
	results := h.sender.Dispatch(ctx, alert)
	h.logger.Debug("alert dispatched",
		zap.String("target_id", alert.Target.ID),
		zap.String("type", string(alert.Verdict.Type)),
		zap.Int("channels", len(results)),
	)
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
