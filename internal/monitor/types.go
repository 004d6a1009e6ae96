// Package monitor defines the core types shared across the change-detection pipeline.
package monitor

import (
	"net/http"
	"time"
)

// CheckStatus is the outcome of a single fetch attempt.
type CheckStatus string

// Check attempt outcomes persisted in the history.
const (
	CheckStatusSuccess CheckStatus = "SUCCESS"
	CheckStatusFailed  CheckStatus = "FAILED"
	CheckStatusTimeout CheckStatus = "TIMEOUT"
	CheckStatusError   CheckStatus = "ERROR"
)

// ChangeType classifies what kind of change a verdict describes.
type ChangeType string

// Change types emitted by the classifier.
const (
	ChangeNone         ChangeType = "NONE"
	ChangeContent      ChangeType = "CONTENT"
	ChangeFormDetected ChangeType = "FORM_DETECTED"
	ChangeKeywordMatch ChangeType = "KEYWORD_MATCH"
	ChangeStructure    ChangeType = "STRUCTURE"
)

// Priority ranks how urgently a verdict should be surfaced.
type Priority string

// Supported priorities, lowest first.
const (
	PriorityInfo      Priority = "INFO"
	PriorityImportant Priority = "IMPORTANT"
	PriorityCritical  Priority = "CRITICAL"
)

// Rank orders priorities so they can be compared. Unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 2
	case PriorityImportant:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether p is as urgent as min.
func (p Priority) AtLeast(minimum Priority) bool {
	return p.Rank() >= minimum.Rank()
}

// ParsePriority maps a case-sensitive name to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityInfo, PriorityImportant, PriorityCritical:
		return Priority(s), true
	default:
		return PriorityInfo, false
	}
}

// Target is a monitored URL with scheduling metadata.
type Target struct {
	ID                   string     `json:"id"`
	URL                  string     `json:"url"`
	Name                 string     `json:"name"`
	Enabled              bool       `json:"enabled"`
	CheckIntervalMinutes int        `json:"check_interval_minutes"`
	LastCheckedAt        *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// CheckAttempt records one fetch of a target. Attempts are never updated.
type CheckAttempt struct {
	ID             string      `json:"id"`
	TargetID       string      `json:"target_id"`
	Attempt        int         `json:"attempt"`
	Status         CheckStatus `json:"status"`
	ResponseTimeMs int64       `json:"response_time_ms"`
	StatusCode     *int        `json:"status_code,omitempty"`
	Error          string      `json:"error,omitempty"`
	ContentHash    string      `json:"content_hash,omitempty"`
	ScreenshotURI  string      `json:"screenshot_uri,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Snapshot is content-addressed page content. ContentHash is always the
// digest of RawContent.
type Snapshot struct {
	ContentHash       string    `json:"content_hash"`
	RawContent        string    `json:"raw_content"`
	NormalizedContent string    `json:"normalized_content"`
	FirstSeenAt       time.Time `json:"first_seen_at"`
}

// FormField describes one named control of a detected form.
type FormField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Verdict is the classifier decision for one successful check attempt.
// A verdict with HasChanged false always carries ChangeNone.
type Verdict struct {
	ID              string      `json:"id"`
	CheckAttemptID  string      `json:"check_attempt_id"`
	TargetID        string      `json:"target_id"`
	HasChanged      bool        `json:"has_changed"`
	Type            ChangeType  `json:"type"`
	Priority        Priority    `json:"priority"`
	Confidence      float64     `json:"confidence"`
	Similarity      float64     `json:"similarity"`
	Description     string      `json:"description"`
	Diff            string      `json:"diff,omitempty"`
	MatchedKeywords []string    `json:"matched_keywords,omitempty"`
	FormType        string      `json:"form_type,omitempty"`
	FormFields      []FormField `json:"form_fields,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// FetchRequest describes a single page fetch.
type FetchRequest struct {
	URL     string
	Timeout time.Duration
	Headers http.Header
}

// FetchResponse captures the fetched document and response metadata.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// CheckJob is the queue payload for one scheduled check of a target.
type CheckJob struct {
	TargetID  string    `json:"target_id"`
	URL       string    `json:"url"`
	Attempt   int       `json:"attempt"`
	Submitted time.Time `json:"submitted"`
}
