package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const checkColumns = `id, target_id, attempt, status, response_time_ms, status_code, error, content_hash, screenshot_uri, checked_at`

// CreateCheck inserts an immutable attempt row.
func (s *Store) CreateCheck(ctx context.Context, c monitor.CheckAttempt) error {
	return insertCheck(ctx, s.db, c)
}

// RecordCheck writes a successful attempt, its verdict and the target's
// last_checked_at in one transaction.
func (s *Store) RecordCheck(ctx context.Context, c monitor.CheckAttempt, v monitor.Verdict) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record check: %w", err)
	}
	if err := recordCheckTx(ctx, tx, c, v); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback record check: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record check: %w", err)
	}
	return nil
}

func recordCheckTx(ctx context.Context, tx pgx.Tx, c monitor.CheckAttempt, v monitor.Verdict) error {
	if err := insertCheck(ctx, tx, c); err != nil {
		return err
	}
	if err := insertVerdict(ctx, tx, v); err != nil {
		return err
	}
	return markChecked(ctx, tx, c.TargetID, c.Timestamp)
}

func insertCheck(ctx context.Context, db execer, c monitor.CheckAttempt) error {
	_, err := db.Exec(ctx, `
INSERT INTO check_attempts (`+checkColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.TargetID, c.Attempt, string(c.Status), c.ResponseTimeMs, c.StatusCode,
		c.Error, c.ContentHash, c.ScreenshotURI, c.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

// ListChecks returns attempts newest first. limit <= 0 returns all rows.
func (s *Store) ListChecks(ctx context.Context, targetID string, limit int) ([]monitor.CheckAttempt, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+checkColumns+`
FROM check_attempts
WHERE target_id = $1
ORDER BY checked_at DESC
LIMIT $2`, targetID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var out []monitor.CheckAttempt
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	return out, nil
}

// LatestSuccessfulCheck returns the newest SUCCESS attempt for a target.
func (s *Store) LatestSuccessfulCheck(ctx context.Context, targetID string) (monitor.CheckAttempt, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+checkColumns+`
FROM check_attempts
WHERE target_id = $1 AND status = $2
ORDER BY checked_at DESC
LIMIT 1`, targetID, string(monitor.CheckStatusSuccess))
	c, err := scanCheck(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.CheckAttempt{}, fmt.Errorf("successful check for %s: %w", targetID, monitor.ErrNotFound)
	}
	if err != nil {
		return monitor.CheckAttempt{}, fmt.Errorf("latest successful check: %w", err)
	}
	return c, nil
}

func scanCheck(row pgx.Row) (monitor.CheckAttempt, error) {
	var (
		c      monitor.CheckAttempt
		status string
	)
	err := row.Scan(&c.ID, &c.TargetID, &c.Attempt, &status, &c.ResponseTimeMs, &c.StatusCode,
		&c.Error, &c.ContentHash, &c.ScreenshotURI, &c.Timestamp)
	c.Status = monitor.CheckStatus(status)
	return c, err
}
