// Package main hosts the pagewatch entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, target management, manual checks and
//     history endpoints. Requests are validated with go-playground/validator before they touch the store.
//   - Scheduler & queue: internal/scheduler fires on a fixed interval (or a cron expression), enqueues one
//     CheckJob per due target, and refuses to queue a target that is already in flight. Jobs flow through a
//     bounded in-memory queue to a fixed worker pool sized by worker.concurrency.
//   - Fetch pipeline: workers wait on the global dispatch limiter, probe with the Colly fetcher, and promote
//     to a headless Chromedp fetch when the heuristic detector flags a script-driven shell.
//   - Detection: content is hashed and normalized, compared with the snapshot of the last successful check,
//     and classified as a new form, a keyword match, a large content change, or no change.
//   - Persistence & fanout: attempts, snapshots and verdicts go to memory or Postgres; screenshots go to the
//     configured BlobStore (memory/local/GCS). Changed verdicts are handed to the notification hub, which never
//     blocks the worker and fans out to log, Pub/Sub or memory channels.
//
// Operational notes:
//   - Failed fetches are retried with exponential backoff; each try is recorded as its own attempt.
//   - The check interval and the notification mute switch live in runtime settings and can be changed through
//     PUT /v1/settings/{key} without a restart.
//   - The process reacts to SIGINT/SIGTERM by stopping the scheduler, draining workers and flushing pending
//     notifications.
//
// Quick checklist:
//   - Configure env vars: PAGEWATCH_SERVER_PORT, PAGEWATCH_SCHEDULER_INTERVAL_MINUTES,
//     PAGEWATCH_STORAGE_DRIVER=postgres with PAGEWATCH_DB_DSN, PAGEWATCH_BLOB_DRIVER, and the pubsub section when
//     the pubsub channel is enabled.
//   - Run locally: go run ./cmd/pagewatch serve --config config.yaml
//   - One-off check: go run ./cmd/pagewatch check https://example.com --previous old.html
package main
