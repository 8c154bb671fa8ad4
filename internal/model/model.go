// Package model holds the value types exchanged between the correlation core and its adapters.
package model

import "time"

// TranscriptLine is one timestamped line from the speech-to-text source.
// Confidence is nil when the source did not report one.
type TranscriptLine struct {
	Timestamp  time.Time `json:"t" yaml:"t"`
	Text       string    `json:"text" yaml:"text"`
	Confidence *float64  `json:"conf,omitempty" yaml:"conf,omitempty"`
}

// HasConfidence reports whether the line carries a confidence score.
func (l TranscriptLine) HasConfidence() bool { return l.Confidence != nil }

// Conf returns the confidence or 0 when absent.
func (l TranscriptLine) Conf() float64 {
	if l.Confidence == nil {
		return 0
	}
	return *l.Confidence
}

// Confidence is a helper for building lines with a literal score.
func Confidence(v float64) *float64 { return &v }

// ViewerSample is one viewer-count reading.
type ViewerSample struct {
	Timestamp time.Time `json:"t" yaml:"t"`
	Count     int       `json:"count" yaml:"count"`
}

// Topic is the closed set of segment categories.
type Topic string

const (
	TopicInteraction Topic = "interaction"
	TopicFood        Topic = "food"
	TopicFitness     Topic = "fitness"
	TopicFinance     Topic = "finance"
	TopicPersonal    Topic = "personal"
	TopicGeneral     Topic = "general"
)

// Quality tells whether an insight came from the scoring collaborator or the local template.
type Quality string

const (
	QualityAIEnhanced Quality = "AI_ENHANCED"
	QualityFallback   Quality = "FALLBACK"
)

// Source values attached to SUCCESS status and stored insights.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// EngineStatus is the process-wide correlation state broadcast on every transition.
type EngineStatus string

const (
	StatusIdle        EngineStatus = "IDLE"
	StatusCollecting  EngineStatus = "COLLECTING"
	StatusCorrelating EngineStatus = "CORRELATING"
	StatusAICalling   EngineStatus = "AI_CALLING"
	StatusAIFallback  EngineStatus = "AI_FALLBACK"
	StatusSuccess     EngineStatus = "SUCCESS"
	StatusFailed      EngineStatus = "FAILED"
)

// StatusMeta is optional detail attached to a status transition.
type StatusMeta struct {
	Source    string `json:"source,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// StatusEvent pairs a status with its metadata.
type StatusEvent struct {
	Status EngineStatus `json:"status"`
	Meta   StatusMeta   `json:"meta"`
	At     time.Time    `json:"at"`
}

// ToneResult is the output of the tone classifier.
type ToneResult struct {
	Emotion    string  `json:"emotion"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Insight explains one qualifying viewer delta. Immutable once emitted.
type Insight struct {
	ID                 string    `json:"id,omitempty"`
	SessionID          string    `json:"sessionId,omitempty"`
	Timestamp          time.Time `json:"t"`
	Delta              int       `json:"delta"`
	ViewerCount        int       `json:"count"`
	PrevCount          int       `json:"prevCount"`
	SegmentText        string    `json:"text"`
	Topic              Topic     `json:"topic"`
	ContextLabel       string    `json:"contextLabel"`
	Emotion            string    `json:"emotion,omitempty"`
	EmotionScore       float64   `json:"emotionScore,omitempty"`
	EmotionConfidence  float64   `json:"emotionConfidence,omitempty"`
	SegmentHash        string    `json:"segmentHash"`
	EmotionalLabel     string    `json:"emotionalLabel"`
	NextMove           string    `json:"nextMove"`
	CorrelationQuality Quality   `json:"correlationQuality"`
	Source             string    `json:"source"`
	LatencyMs          int64     `json:"latencyMs"`
}

// HistoryEntry is one recent tone observation sent to the scoring collaborator.
type HistoryEntry struct {
	Delta   int    `json:"delta"`
	Emotion string `json:"emotion"`
}

// ScoreRequest is the payload for the scoring collaborator.
type ScoreRequest struct {
	Transcript    string         `json:"transcript"`
	ViewerDelta   int            `json:"viewerDelta"`
	ViewerCount   int            `json:"viewerCount"`
	PrevCount     int            `json:"prevCount"`
	TopicHint     Topic          `json:"topic"`
	Emotion       string         `json:"emotion,omitempty"`
	SilenceMs     int64          `json:"silenceMs"`
	RecentHistory []HistoryEntry `json:"recentHistory"`
}

// ScoreResponse is the scoring collaborator's answer. Both fields are required.
type ScoreResponse struct {
	EmotionalLabel string `json:"emotionalLabel"`
	NextMove       string `json:"nextMove"`
}

// Feedback is the streamer's verdict on one insight. Nil fields were not reported
// and leave any stored value untouched on upsert.
type Feedback struct {
	ID               string    `json:"id,omitempty"`
	InsightID        string    `json:"insight_id"`
	StreamerID       string    `json:"streamer_id,omitempty"`
	Rating           *int      `json:"rating,omitempty"`
	FollowedAdvice   *bool     `json:"followed_advice,omitempty"`
	SubsequentDelta  *int      `json:"subsequent_delta,omitempty"`
	TimeToFeedbackMs *int64    `json:"time_to_feedback_ms,omitempty"`
	Outcome30s       *int      `json:"outcome_30s,omitempty"`
	Outcome60s       *int      `json:"outcome_60s,omitempty"`
	ActionTaken      *string   `json:"action_taken,omitempty"`
	ContextBefore    *string   `json:"context_before,omitempty"`
	ContextAfter     *string   `json:"context_after,omitempty"`
	FeedbackText     *string   `json:"feedback_text,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
