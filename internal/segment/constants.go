// Package segment folds transcript lines into cleaned utterance segments
package segment

import "time"

// Segmenter thresholds
const (
	// Lines below this confidence are dropped as noise
	MinConfidence = 0.3

	// Segments shorter than this are discarded on flush
	MinWords = 5

	// Accumulator flushes once it reaches this many words
	MaxWords = 30

	// A pause longer than this between lines starts a new segment
	MaxGap = 1500 * time.Millisecond

	// Hex characters kept from the sha256 digest in HashText
	hashLen = 16
)
