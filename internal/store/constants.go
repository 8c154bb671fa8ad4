// Package store persists emitted insights to a local SQLite history.
package store

import "time"

// Batcher defaults
const (
	DefaultBatcherMaxSize    = 20
	DefaultBatcherFlushDelay = 2 * time.Second

	// Upper bound on a single flush so Stop cannot hang on a locked database.
	flushTimeout = 5 * time.Second

	DefaultListLimit = 50
	MaxListLimit     = 500
)
