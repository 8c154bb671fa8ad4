package correlator

import "github.com/spikely/platform/internal/model"

// Fallback builds the deterministic label and move for a delta when the scoring
// collaborator cannot answer. A negative delta larger than dumpThreshold is a dump.
func Fallback(t model.Topic, delta, dumpThreshold int) (label, move string) {
	w := TopicWord(t)
	switch {
	case delta > 0:
		return w + " engaged", "Do more " + w + " talk"
	case delta < 0 && -delta > dumpThreshold:
		return w + " dump", "Stop " + w + ". Change topic now"
	default:
		return w + " dip", "Less " + w + ". Do more energy"
	}
}
