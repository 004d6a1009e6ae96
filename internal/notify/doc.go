// Package notify delivers change alerts to outbound channels.
//
// The worker hands verdicts to a Hub, which never blocks. The Hub feeds a
// Dispatcher that filters by priority, enforces a per-channel sliding-window
// rate limit, suppresses duplicates and sends to every channel in parallel.
package notify
