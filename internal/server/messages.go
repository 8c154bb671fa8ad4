package server

import (
	"time"

	"github.com/spikely/platform/internal/model"
)

// Message carries only the type discriminator.
type Message struct {
	Type string `json:"type"`
}

// TranscriptMessage is one transcript line. T is unix milliseconds; zero means now.
type TranscriptMessage struct {
	Type       string   `json:"type"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	T          *int64   `json:"t,omitempty"`
	TraceID    string   `json:"trace_id,omitempty"`
}

type ViewerCountMessage struct {
	Type    string `json:"type"`
	Count   *int   `json:"count"`
	T       *int64 `json:"t,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type ThresholdMessage struct {
	Type     string `json:"type"`
	MinDelta *int   `json:"minDelta"`
	TraceID  string `json:"trace_id,omitempty"`
}

type InsightMessage struct {
	Type    string        `json:"type"`
	Insight model.Insight `json:"insight"`
}

type EngineStatusMessage struct {
	Type   string             `json:"type"`
	Status model.EngineStatus `json:"status"`
	Meta   model.StatusMeta   `json:"meta"`
	At     time.Time          `json:"at"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status   model.EngineStatus `json:"status"`
	Meta     model.StatusMeta   `json:"meta"`
	At       time.Time          `json:"at"`
	MinDelta int                `json:"minDelta"`
	Clients  int                `json:"clients"`
}

// FeedbackResponse is the body of POST /api/feedback.
type FeedbackResponse struct {
	Success  bool           `json:"success"`
	ID       string         `json:"id"`
	Feedback model.Feedback `json:"feedback"`
}

func statusMessage(ev model.StatusEvent) EngineStatusMessage {
	return EngineStatusMessage{Type: TypeEngineStatus, Status: ev.Status, Meta: ev.Meta, At: ev.At}
}
