package notify

import (
	"context"
	"time"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Alert is one notification about a changed target.
type Alert struct {
	Target    monitor.Target  `json:"target"`
	Verdict   monitor.Verdict `json:"verdict"`
	CreatedAt time.Time       `json:"created_at"`
}

// Channel sends alerts to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// Outcome labels what happened to an alert on one channel.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeSent        Outcome = "sent"
	OutcomeFailed      Outcome = "failed"
	OutcomeFiltered    Outcome = "filtered"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeMuted       Outcome = "muted"
)

// Result reports the outcome for a single channel.
type Result struct {
	Channel string
	Outcome Outcome
	Err     error
}
