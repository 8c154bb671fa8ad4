// Package server exposes a correlation session over HTTP and WebSocket
package server

import "time"

// Server configuration constants
const (
	// Per-connection sliding window
	RateLimitMessages = 20
	RateLimitWindow   = time.Second

	// Global IP-based rate limiting (prevents multi-connection bypass attacks)
	IPRateLimitMessages        = 60               // Max messages per IP per window
	IPRateLimitWindow          = time.Second      // Sliding window duration
	IPRateLimitCleanupInterval = 5 * time.Minute  // How often to purge stale IP entries
	IPRateLimitEntryTTL        = 10 * time.Minute // TTL for inactive IP entries

	// Outbound queue per websocket; a slow client loses messages rather than stalling the core
	SendBufferSize = 64
	WriteTimeout   = 5 * time.Second

	// Request body cap for the JSON API
	MaxBodyBytes = 64 << 10

	DefaultInsightsLimit = 50

	// Feedback rating scale
	MinFeedbackRating = 1
	MaxFeedbackRating = 5
)

// Message types
const (
	TypeTranscript      = "transcript"
	TypeViewerCount     = "viewer_count"
	TypeThresholdUpdate = "threshold_update"
	TypeInsight         = "insight"
	TypeEngineStatus    = "engine_status"
	TypeError           = "error"
)
