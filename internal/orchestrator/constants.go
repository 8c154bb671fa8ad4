// Package orchestrator wires one correlation session: tone cache, correlator, hub and sinks.
package orchestrator

import "time"

// Session defaults
const (
	// Insights kept in memory for the API and websocket catch-up
	RecentInsightsCap = 100

	// Diagnostics log cadence
	StatsLogInterval = 30 * time.Second
)
