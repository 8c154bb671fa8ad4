package clients

import (
	"context"

	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/resilience"
	"github.com/spikely/platform/internal/trace"
)

// GenerateInsight asks the scoring collaborator for a label and next move.
// Field validation is left to the caller; an empty field is a malformed answer there.
func (h *HTTP) GenerateInsight(ctx context.Context, req model.ScoreRequest) (model.ScoreResponse, error) {
	ctx, span := trace.StartSpan(ctx, "scoring_generate")
	defer span.End()
	span.SetAttr("delta", req.ViewerDelta)

	return resilience.ExecuteWithResult(h.scoring, func() (model.ScoreResponse, error) {
		var out model.ScoreResponse
		if err := h.postJSON(ctx, "scoring", h.scoringURL+ScoringEndpoint, req, &out); err != nil {
			span.SetAttr("error", err.Error())
			return model.ScoreResponse{}, err
		}
		return out, nil
	})
}

// ScoringBreaker exposes the scoring breaker state for diagnostics.
func (h *HTTP) ScoringBreaker() resilience.State { return h.scoring.State() }
