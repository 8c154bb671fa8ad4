// Package tone serializes calls to the tone classifier behind a content-addressed cache
package tone

import "time"

// Tone cache defaults
const (
	// Scores below this are reported as Inconclusive
	DefaultMinScore = 0.6

	// Pause after every classifier call; this is the rate-limit contract
	DefaultCallDelay = 400 * time.Millisecond

	// Upper bound on a single classifier call so one hung request cannot stall the queue
	DefaultCallTimeout = 5 * time.Second

	EmotionInconclusive = "Inconclusive"
	EmotionNeutral      = "Neutral"
)
