package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const verdictColumns = `id, check_attempt_id, target_id, has_changed, change_type, priority, confidence,
similarity, description, diff, matched_keywords, form_type, form_fields, created_at`

// CreateVerdict inserts a verdict row. Form fields are stored as JSONB.
func (s *Store) CreateVerdict(ctx context.Context, v monitor.Verdict) error {
	return insertVerdict(ctx, s.db, v)
}

func insertVerdict(ctx context.Context, db execer, v monitor.Verdict) error {
	fields, err := json.Marshal(nonNilFields(v.FormFields))
	if err != nil {
		return fmt.Errorf("marshal form fields: %w", err)
	}
	keywords := v.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	_, err = db.Exec(ctx, `
INSERT INTO verdicts (`+verdictColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		v.ID, v.CheckAttemptID, v.TargetID, v.HasChanged, string(v.Type), string(v.Priority), v.Confidence,
		v.Similarity, v.Description, v.Diff, keywords, v.FormType, fields, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// ListVerdicts returns verdicts newest first. limit <= 0 returns all rows.
func (s *Store) ListVerdicts(ctx context.Context, targetID string, limit int) ([]monitor.Verdict, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+verdictColumns+`
FROM verdicts
WHERE target_id = $1
ORDER BY created_at DESC
LIMIT $2`, targetID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	var out []monitor.Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	return out, nil
}

func scanVerdict(row pgx.Row) (monitor.Verdict, error) {
	var (
		v          monitor.Verdict
		changeType string
		priority   string
		fields     []byte
	)
	if err := row.Scan(&v.ID, &v.CheckAttemptID, &v.TargetID, &v.HasChanged, &changeType, &priority,
		&v.Confidence, &v.Similarity, &v.Description, &v.Diff, &v.MatchedKeywords, &v.FormType,
		&fields, &v.CreatedAt); err != nil {
		return v, err
	}
	v.Type = monitor.ChangeType(changeType)
	v.Priority = monitor.Priority(priority)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &v.FormFields); err != nil {
			return v, fmt.Errorf("decode form fields: %w", err)
		}
	}
	if len(v.FormFields) == 0 {
		v.FormFields = nil
	}
	if len(v.MatchedKeywords) == 0 {
		v.MatchedKeywords = nil
	}
	return v, nil
}

func nonNilFields(f []monitor.FormField) []monitor.FormField {
	if f == nil {
		return []monitor.FormField{}
	}
	return f
}
