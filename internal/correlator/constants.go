package correlator

import "time"

// Gating defaults
const (
	DefaultMinDelta         = 3
	DefaultCooldown         = 20 * time.Second
	DefaultWindow           = 25 * time.Second
	DefaultMinAvgConfidence = 0.3
	DefaultScoringDeadline  = 1000 * time.Millisecond
	DefaultDumpThreshold    = 30
	DefaultIdleDelay        = 3 * time.Second
)

// Buffer sizes
const (
	transcriptCap    = 2000
	viewerCap        = 2000
	segmentRingCap   = 20
	rebuildEvery     = 10
	rebuildWindow    = 50
	segmentDedupeDt  = 500 * time.Millisecond
	confidenceDt     = 5 * time.Second
	confidencePrefix = 10
)

// Scoring payload bounds
const (
	toneHistoryWindow  = 60 * time.Second
	recentHistoryLen   = 7
	maxTranscriptWords = 100
)

// Output limits
const (
	maxLabelWords = 3
	maxMoveWords  = 8
	maxOutputLen  = 200
	leakPrefixLen = 10
	leakMinPair   = 4
	leakMaxShare  = 0.4
)

// Neutral replacements for output that echoes the transcript.
const (
	neutralLabelUp   = "✅ Neutral"
	neutralLabelDown = "❌ Neutral"
	neutralMoveUp    = "Keep momentum"
	neutralMoveDown  = "Pivot to engaging content"
)
