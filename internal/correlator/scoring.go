package correlator

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
)

// Scorer is the external scoring collaborator. Implementations must honour ctx cancellation.
type Scorer interface {
	GenerateInsight(ctx context.Context, req model.ScoreRequest) (model.ScoreResponse, error)
}

// OutcomeKind tags the result of a scoring call.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeMalformed
	OutcomeTransportError
	OutcomeTimeout
	OutcomeSuperseded
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Outcome is a scoring result. Label and Move are set only for OutcomeOK.
type Outcome struct {
	Kind    OutcomeKind
	Label   string
	Move    string
	Err     error
	Latency time.Duration
}

var errNoScorer = apperrors.New(apperrors.CodeUnavailable, "no scoring collaborator configured")

// classify maps a collaborator response onto an Outcome.
func classify(fl *flight, resp model.ScoreResponse, err error) Outcome {
	if fl != nil && fl.superseded() {
		return Outcome{Kind: OutcomeSuperseded, Err: err}
	}
	if err == nil {
		label := strings.TrimSpace(resp.EmotionalLabel)
		move := strings.TrimSpace(resp.NextMove)
		if label == "" || move == "" {
			return Outcome{Kind: OutcomeMalformed, Err: apperrors.New(apperrors.CodeMalformedResponse, "missing emotionalLabel or nextMove")}
		}
		return Outcome{Kind: OutcomeOK, Label: label, Move: move}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		apperrors.IsCode(err, apperrors.CodeTimeout),
		fl != nil && errors.Is(fl.ctx.Err(), context.DeadlineExceeded):
		return Outcome{Kind: OutcomeTimeout, Err: err}
	case apperrors.IsCode(err, apperrors.CodeMalformedResponse):
		return Outcome{Kind: OutcomeMalformed, Err: err}
	default:
		return Outcome{Kind: OutcomeTransportError, Err: err}
	}
}
