package monitor

import (
	"context"
	"time"
)

// TargetStore persists monitored targets.
type TargetStore interface {
	CreateTarget(ctx context.Context, target Target) error
	UpdateTarget(ctx context.Context, target Target) error
	GetTarget(ctx context.Context, id string) (Target, error)
	ListTargets(ctx context.Context, enabledOnly bool) ([]Target, error)
	MarkChecked(ctx context.Context, id string, at time.Time) error
}

// CheckStore persists immutable check attempts. Lists are newest first.
type CheckStore interface {
	CreateCheck(ctx context.Context, check CheckAttempt) error
	ListChecks(ctx context.Context, targetID string, limit int) ([]CheckAttempt, error)
	LatestSuccessfulCheck(ctx context.Context, targetID string) (CheckAttempt, error)
}

// SnapshotStore persists content-addressed snapshots. InsertSnapshot is
// insert-if-absent and reports whether a new row was written.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snapshot Snapshot) (bool, error)
	GetSnapshot(ctx context.Context, hash string) (Snapshot, error)
}

// VerdictStore persists classifier verdicts. Lists are newest first.
type VerdictStore interface {
	CreateVerdict(ctx context.Context, verdict Verdict) error
	ListVerdicts(ctx context.Context, targetID string, limit int) ([]Verdict, error)
}

// CheckRecorder commits the outcome of a successful check as one unit: the
// SUCCESS attempt, its verdict and the target's last_checked_at (set to
// check.Timestamp). Either all three are written or none is.
type CheckRecorder interface {
	RecordCheck(ctx context.Context, check CheckAttempt, verdict Verdict) error
}

// Store bundles every persistence capability the pipeline needs.
type Store interface {
	TargetStore
	CheckStore
	SnapshotStore
	VerdictStore
	CheckRecorder
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Screenshotter captures a full-page PNG of a URL.
type Screenshotter interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Normalizer turns raw HTML into stable comparison text.
type Normalizer interface {
	Normalize(rawHTML string) string
}

// Classifier decides whether the current content changed meaningfully
// relative to prev. A nil prev means there is no baseline yet.
type Classifier interface {
	Classify(prev *Snapshot, currentRaw, currentNormalized string) Verdict
}

// Notifier hands a changed verdict to notification dispatch. Implementations
// must not block the caller.
type Notifier interface {
	Notify(target Target, verdict Verdict)
}

// Queue provides enqueue/dequeue semantics for check jobs.
type Queue interface {
	Enqueue(ctx context.Context, job CheckJob) error
	Dequeue(ctx context.Context) (CheckJob, error)
}

// Limiter gates how fast checks are dispatched.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
