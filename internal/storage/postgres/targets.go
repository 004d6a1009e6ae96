package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const targetColumns = `id, url, name, enabled, check_interval_minutes, last_checked_at, created_at`

// CreateTarget inserts a target row.
func (s *Store) CreateTarget(ctx context.Context, t monitor.Target) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO targets (`+targetColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.URL, t.Name, t.Enabled, t.CheckIntervalMinutes, t.LastCheckedAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

// UpdateTarget rewrites the mutable target columns.
func (s *Store) UpdateTarget(ctx context.Context, t monitor.Target) error {
	tag, err := s.db.Exec(ctx, `
UPDATE targets
SET url = $2, name = $3, enabled = $4, check_interval_minutes = $5
WHERE id = $1`,
		t.ID, t.URL, t.Name, t.Enabled, t.CheckIntervalMinutes,
	)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("target %s: %w", t.ID, monitor.ErrNotFound)
	}
	return nil
}

// GetTarget loads one target.
func (s *Store) GetTarget(ctx context.Context, id string) (monitor.Target, error) {
	row := s.db.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id)
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Target{}, fmt.Errorf("target %s: %w", id, monitor.ErrNotFound)
	}
	if err != nil {
		return monitor.Target{}, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// ListTargets returns targets in creation order.
func (s *Store) ListTargets(ctx context.Context, enabledOnly bool) ([]monitor.Target, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+targetColumns+`
FROM targets
WHERE NOT $1 OR enabled
ORDER BY created_at, id`, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []monitor.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return out, nil
}

// MarkChecked stamps last_checked_at.
func (s *Store) MarkChecked(ctx context.Context, id string, at time.Time) error {
	return markChecked(ctx, s.db, id, at)
}

func markChecked(ctx context.Context, db execer, id string, at time.Time) error {
	tag, err := db.Exec(ctx, `UPDATE targets SET last_checked_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("target %s: %w", id, monitor.ErrNotFound)
	}
	return nil
}

func scanTarget(row pgx.Row) (monitor.Target, error) {
	var t monitor.Target
	err := row.Scan(&t.ID, &t.URL, &t.Name, &t.Enabled, &t.CheckIntervalMinutes, &t.LastCheckedAt, &t.CreatedAt)
	return t, err
}
