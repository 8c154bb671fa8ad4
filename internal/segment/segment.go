// Package segment folds transcript lines into cleaned utterance segments
package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/spikely/platform/internal/model"
)

// Segment is one cleaned, word-bounded utterance. Timestamp is the end of the utterance.
type Segment struct {
	Start     time.Time `json:"start"`
	Timestamp time.Time `json:"t"`
	Text      string    `json:"text"`
}

// accumulator holds the lines of the segment being built.
type accumulator struct {
	start time.Time
	end   time.Time
	words []string
}

func (a *accumulator) empty() bool { return len(a.words) == 0 }

// Build converts an ordered window of lines into segments. It has no side effects and can be
// re-run over any sub-window.
func Build(lines []model.TranscriptLine) []Segment {
	var segs []Segment
	var cur accumulator

	flush := func() {
		if cur.empty() {
			return
		}
		text := Clean(strings.Join(cur.words, " "))
		if CountWords(text) >= MinWords {
			segs = append(segs, Segment{Start: cur.start, Timestamp: cur.end, Text: text})
		}
		cur = accumulator{}
	}

	for _, l := range lines {
		if isNoise(l) {
			continue
		}

		// The line that opens a long pause belongs to the next segment.
		if !cur.empty() && l.Timestamp.Sub(cur.end) > MaxGap {
			flush()
		}

		if cur.empty() {
			cur.start = l.Timestamp
		}
		cur.end = l.Timestamp
		cur.words = append(cur.words, l.Text)

		if CountWords(strings.Join(cur.words, " ")) >= MaxWords || endsSentence(l.Text) {
			flush()
		}
	}
	flush()

	return segs
}

func isNoise(l model.TranscriptLine) bool {
	if l.HasConfidence() && l.Conf() < MinConfidence {
		return true
	}
	return !hasWordChar(l.Text)
}

func hasWordChar(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return true
		}
	}
	return false
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// Clean collapses immediate word repetition ("I I I" -> "I", "yeah, yeah" -> "yeah") and
// normalizes whitespace. Comparison is case-insensitive and the first occurrence is kept.
func Clean(s string) string {
	words := strings.Fields(s)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := len(out); n > 0 && sameWord(out[n-1], w) {
			out[n-1] = strings.TrimSuffix(out[n-1], ",")
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func sameWord(prev, cur string) bool {
	return strings.EqualFold(strings.TrimSuffix(prev, ","), strings.TrimSuffix(cur, ","))
}

// CountWords counts non-empty whitespace-separated tokens. Every word-count decision in the
// module goes through this function.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// HashText returns a stable content hash used for caching and duplicate suppression.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLen]
}
