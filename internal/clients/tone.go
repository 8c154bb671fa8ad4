package clients

import (
	"context"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/resilience"
	"github.com/spikely/platform/internal/trace"
)

type toneReq struct {
	Text string `json:"text"`
}

type toneResp struct {
	Emotion    string   `json:"emotion"`
	Score      *float64 `json:"score"`
	Confidence *float64 `json:"confidence"`
}

// AnalyzeText classifies the tone of a transcript segment.
func (h *HTTP) AnalyzeText(ctx context.Context, text string) (model.ToneResult, error) {
	ctx, span := trace.StartSpan(ctx, "tone_analyze")
	defer span.End()

	return resilience.ExecuteWithResult(h.tone, func() (model.ToneResult, error) {
		var out toneResp
		if err := h.postJSON(ctx, "tone", h.toneURL+ToneEndpoint, toneReq{Text: text}, &out); err != nil {
			span.SetAttr("error", err.Error())
			return model.ToneResult{}, err
		}
		if out.Emotion == "" || out.Score == nil {
			return model.ToneResult{}, apperrors.New(apperrors.CodeMalformedResponse, "tone response missing emotion or score")
		}
		res := model.ToneResult{Emotion: out.Emotion, Score: *out.Score, Confidence: *out.Score}
		if out.Confidence != nil {
			res.Confidence = *out.Confidence
		}
		span.SetAttr("emotion", res.Emotion)
		return res, nil
	})
}
