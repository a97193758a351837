package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveFeedback upserts one (run_id, user_id) verdict. A later call for the
// same pair replaces the earlier row, matching the "last writer wins"
// invariant.
func (p *Postgres) SaveFeedback(fb *Feedback) error {
	if fb == nil || fb.RunID == "" {
		return fmt.Errorf("store: feedback with a run id is required")
	}
	createdAt := fb.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	ctx := context.Background()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO feedback (run_id, user_id, outcome, comment, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (run_id, user_id) DO UPDATE
			SET outcome = excluded.outcome, comment = excluded.comment, created_at = excluded.created_at`,
		fb.RunID, fb.UserID, string(fb.Outcome), fb.Comment, createdAt)
	if err != nil {
		return fmt.Errorf("store: insert feedback: %w", err)
	}
	return nil
}

// GetFeedback fetches the feedback row for (runID, userID), if any.
func (p *Postgres) GetFeedback(runID, userID string) (*Feedback, error) {
	ctx := context.Background()
	row := p.db.QueryRowContext(ctx,
		`SELECT run_id, user_id, outcome, comment, created_at FROM feedback WHERE run_id = $1 AND user_id = $2`,
		runID, userID)

	var fb Feedback
	var outcome string
	if err := row.Scan(&fb.RunID, &fb.UserID, &outcome, &fb.Comment, &fb.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get feedback: %w", err)
	}
	fb.Outcome = FeedbackOutcome(outcome)
	return &fb, nil
}
