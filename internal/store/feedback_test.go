package store

import (
	"context"
	"testing"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestSaveFeedbackInsertsThenMerges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.SaveFeedback(ctx, model.Feedback{
		InsightID:      "ins-1",
		StreamerID:     "streamer-a",
		Rating:         ptr(4),
		FollowedAdvice: ptr(true),
		FeedbackText:   ptr("worked well"),
	})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and created_at, got %+v", first)
	}

	merged, err := s.SaveFeedback(ctx, model.Feedback{
		InsightID:  "ins-1",
		Outcome30s: ptr(12),
		Outcome60s: ptr(-3),
	})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if merged.ID != first.ID {
		t.Errorf("id changed on upsert: %s -> %s", first.ID, merged.ID)
	}
	if merged.StreamerID != "streamer-a" {
		t.Errorf("streamer_id = %q, want kept value", merged.StreamerID)
	}
	if merged.Rating == nil || *merged.Rating != 4 {
		t.Errorf("rating = %v, want kept 4", merged.Rating)
	}
	if merged.FollowedAdvice == nil || !*merged.FollowedAdvice {
		t.Errorf("followed_advice = %v, want kept true", merged.FollowedAdvice)
	}
	if merged.FeedbackText == nil || *merged.FeedbackText != "worked well" {
		t.Errorf("feedback_text = %v, want kept", merged.FeedbackText)
	}
	if merged.Outcome30s == nil || *merged.Outcome30s != 12 || merged.Outcome60s == nil || *merged.Outcome60s != -3 {
		t.Errorf("outcomes = %v/%v, want 12/-3", merged.Outcome30s, merged.Outcome60s)
	}
	if merged.SubsequentDelta != nil || merged.ActionTaken != nil {
		t.Errorf("unreported fields should stay null, got %+v", merged)
	}

	overwrite, err := s.SaveFeedback(ctx, model.Feedback{InsightID: "ins-1", Rating: ptr(1)})
	if err != nil {
		t.Fatalf("third save: %v", err)
	}
	if *overwrite.Rating != 1 {
		t.Errorf("rating = %d, want overwritten 1", *overwrite.Rating)
	}
}

func TestSaveFeedbackRequiresInsightID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveFeedback(context.Background(), model.Feedback{InsightID: "  ", Rating: ptr(5)})
	if !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestGetFeedbackNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFeedback(context.Background(), "missing")
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
