package tone

import (
	"time"

	"github.com/spikely/platform/internal/model"
)

// Offline answers every request immediately with no emotion. Used when no classifier is configured.
type Offline struct{}

// Request invokes callback synchronously with an empty result.
func (Offline) Request(_ string, _ time.Time, callback Callback) {
	callback(model.ToneResult{})
}
