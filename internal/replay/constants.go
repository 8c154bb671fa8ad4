// Package replay drives a correlation session from a scripted stream timeline
package replay

import "time"

const (
	// How long a busy correlator gets to settle after a qualifying viewer sample
	DefaultSettleTimeout = 3 * time.Second
	settlePoll           = 5 * time.Millisecond

	// Status returns to IDLE quickly; replay does not display it
	replayIdleDelay = 10 * time.Millisecond
)
