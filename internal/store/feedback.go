package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
)

// SaveFeedback upserts feedback keyed by insight id. Fields left nil keep their
// stored value, so a client can report the rating first and outcomes later.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb model.Feedback) (model.Feedback, error) {
	insightID := strings.TrimSpace(fb.InsightID)
	if insightID == "" {
		return model.Feedback{}, apperrors.New(apperrors.CodeInvalidArgument, "insight_id is required")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insight_feedback (
			id, insight_id, streamer_id, created_at, rating, followed_advice,
			subsequent_delta, time_to_feedback_ms, outcome_30s, outcome_60s,
			action_taken, context_before, context_after, feedback_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(insight_id) DO UPDATE SET
			streamer_id = CASE WHEN excluded.streamer_id = '' THEN insight_feedback.streamer_id ELSE excluded.streamer_id END,
			rating = COALESCE(excluded.rating, insight_feedback.rating),
			followed_advice = COALESCE(excluded.followed_advice, insight_feedback.followed_advice),
			subsequent_delta = COALESCE(excluded.subsequent_delta, insight_feedback.subsequent_delta),
			time_to_feedback_ms = COALESCE(excluded.time_to_feedback_ms, insight_feedback.time_to_feedback_ms),
			outcome_30s = COALESCE(excluded.outcome_30s, insight_feedback.outcome_30s),
			outcome_60s = COALESCE(excluded.outcome_60s, insight_feedback.outcome_60s),
			action_taken = COALESCE(excluded.action_taken, insight_feedback.action_taken),
			context_before = COALESCE(excluded.context_before, insight_feedback.context_before),
			context_after = COALESCE(excluded.context_after, insight_feedback.context_after),
			feedback_text = COALESCE(excluded.feedback_text, insight_feedback.feedback_text)`,
		s.newID(now), insightID, strings.TrimSpace(fb.StreamerID), now.Format(timeLayout),
		fb.Rating, fb.FollowedAdvice, fb.SubsequentDelta, fb.TimeToFeedbackMs,
		fb.Outcome30s, fb.Outcome60s, fb.ActionTaken, fb.ContextBefore, fb.ContextAfter, fb.FeedbackText,
	)
	if err != nil {
		return model.Feedback{}, apperrors.Wrapf(err, apperrors.CodeStorage, "upsert feedback for %s", insightID)
	}
	return s.GetFeedback(ctx, insightID)
}

// GetFeedback returns the merged feedback row for an insight.
func (s *SQLiteStore) GetFeedback(ctx context.Context, insightID string) (model.Feedback, error) {
	var (
		fb        model.Feedback
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, insight_id, streamer_id, created_at, rating, followed_advice,
			subsequent_delta, time_to_feedback_ms, outcome_30s, outcome_60s,
			action_taken, context_before, context_after, feedback_text
		FROM insight_feedback WHERE insight_id = ?`, insightID).Scan(
		&fb.ID, &fb.InsightID, &fb.StreamerID, &createdAt, &fb.Rating, &fb.FollowedAdvice,
		&fb.SubsequentDelta, &fb.TimeToFeedbackMs, &fb.Outcome30s, &fb.Outcome60s,
		&fb.ActionTaken, &fb.ContextBefore, &fb.ContextAfter, &fb.FeedbackText,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Feedback{}, apperrors.Newf(apperrors.CodeNotFound, "no feedback for insight %s", insightID)
	}
	if err != nil {
		return model.Feedback{}, apperrors.Wrapf(err, apperrors.CodeStorage, "get feedback for %s", insightID)
	}
	fb.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return model.Feedback{}, apperrors.Wrapf(err, apperrors.CodeStorage, "parse created_at %q", createdAt)
	}
	return fb, nil
}
