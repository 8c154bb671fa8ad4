// Package clients talks to the tone and scoring collaborators over JSON/HTTP.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/resilience"
	"github.com/spikely/platform/internal/trace"
)

// Endpoint paths
const (
	ToneEndpoint    = "/analyze-text"
	ScoringEndpoint = "/generate-insight"

	// Upper bound for any request; per-call deadlines come from ctx.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 512
)

// HTTP calls the tone and scoring collaborators over JSON HTTP.
type HTTP struct {
	c          *http.Client
	toneURL    string
	scoringURL string
	tone       *resilience.Breaker
	scoring    *resilience.Breaker
}

// NewHTTP builds a client for the given collaborator base URLs.
func NewHTTP(toneURL, scoringURL string) *HTTP {
	return &HTTP{
		c:          &http.Client{Timeout: DefaultTimeout},
		toneURL:    strings.TrimRight(toneURL, "/"),
		scoringURL: strings.TrimRight(scoringURL, "/"),
		tone:       resilience.New(resilience.DefaultConfig("tone")),
		scoring:    resilience.New(resilience.ScoringConfig("scoring")),
	}
}

// WithClient swaps the underlying http.Client.
func (h *HTTP) WithClient(c *http.Client) *HTTP {
	h.c = c
	return h
}

// postJSON sends in as JSON and decodes the 2xx response body into out.
func (h *HTTP) postJSON(ctx context.Context, name, url string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, name+" encode")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, name+" request")
	}
	req.Header.Set("Content-Type", "application/json")
	trace.InjectHeaders(ctx, req.Header)

	resp, err := h.c.Do(req)
	if err != nil {
		return transportError(ctx, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		code := apperrors.CodeUnavailable
		if resp.StatusCode == http.StatusTooManyRequests {
			code = apperrors.CodeRateLimited
		}
		return apperrors.Newf(code, "%s %s: %s", name, resp.Status, strings.TrimSpace(string(body))).
			WithMetadata("status", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return transportError(ctx, name, ctxErr)
		}
		return apperrors.Wrap(err, apperrors.CodeMalformedResponse, name+" decode")
	}
	return nil
}

// transportError maps a failed round trip onto a timeout, cancellation or unavailable AppError.
func transportError(ctx context.Context, name string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(errors.Join(err, context.DeadlineExceeded), apperrors.CodeTimeout, name+" deadline exceeded")
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(errors.Join(err, context.Canceled), apperrors.CodeCancelled, name+" cancelled")
	default:
		return apperrors.Wrap(err, apperrors.CodeUnavailable, name+" unreachable")
	}
}
