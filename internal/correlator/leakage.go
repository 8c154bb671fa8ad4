package correlator

import (
	"strings"
	"unicode/utf8"
)

// DetectLeakage reports whether output echoes source: any two-word phrase longer than
// four characters appearing verbatim in source, or more than 40% of output words
// (counting only words longer than three characters) appearing as source words.
func DetectLeakage(output, source string) bool {
	out := strings.Fields(strings.ToLower(output))
	if len(out) == 0 {
		return false
	}
	src := strings.ToLower(source)
	srcWords := make(map[string]struct{})
	for _, w := range strings.Fields(src) {
		srcWords[w] = struct{}{}
	}

	for i := 0; i+1 < len(out); i++ {
		pair := out[i] + " " + out[i+1]
		if len(pair) > leakMinPair && strings.Contains(src, pair) {
			return true
		}
	}

	matching := 0
	for _, w := range out {
		if len(w) <= 3 {
			continue
		}
		if _, ok := srcWords[w]; ok {
			matching++
		}
	}
	return float64(matching)/float64(len(out)) > leakMaxShare
}

// leakSource is the lowercased first words of the segment that outputs are checked against.
func leakSource(segmentText string) string {
	words := strings.Fields(segmentText)
	if len(words) > leakPrefixLen {
		words = words[:leakPrefixLen]
	}
	return strings.ToLower(strings.Join(words, " "))
}

// Sanitize replaces a label or move that leaks the transcript with a fixed neutral
// phrase chosen by delta sign. It reports which fields were replaced.
func Sanitize(label, move, segmentText string, delta int) (string, string, []string) {
	source := leakSource(segmentText)
	var replaced []string
	if DetectLeakage(label, source) {
		replaced = append(replaced, "emotionalLabel")
		label = neutralLabelDown
		if delta > 0 {
			label = neutralLabelUp
		}
	}
	if DetectLeakage(move, source) {
		replaced = append(replaced, "nextMove")
		move = neutralMoveDown
		if delta > 0 {
			move = neutralMoveUp
		}
	}
	return label, move, replaced
}

// Limit truncates text to maxWords words and maxChars characters.
func Limit(text string, maxWords, maxChars int) string {
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	out := strings.Join(words, " ")
	if utf8.RuneCountInString(out) > maxChars {
		out = string([]rune(out)[:maxChars])
	}
	return out
}

func lastWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
