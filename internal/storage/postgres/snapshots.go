package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// InsertSnapshot writes a snapshot unless its hash is already stored and
// reports whether a row was inserted.
func (s *Store) InsertSnapshot(ctx context.Context, snap monitor.Snapshot) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO snapshots (content_hash, raw_content, normalized_content, first_seen_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (content_hash) DO NOTHING`,
		snap.ContentHash, snap.RawContent, snap.NormalizedContent, snap.FirstSeenAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetSnapshot loads a snapshot by content hash.
func (s *Store) GetSnapshot(ctx context.Context, hash string) (monitor.Snapshot, error) {
	var snap monitor.Snapshot
	err := s.db.QueryRow(ctx, `
SELECT content_hash, raw_content, normalized_content, first_seen_at
FROM snapshots
WHERE content_hash = $1`, hash).Scan(&snap.ContentHash, &snap.RawContent, &snap.NormalizedContent, &snap.FirstSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Snapshot{}, fmt.Errorf("snapshot %s: %w", hash, monitor.ErrNotFound)
	}
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}
