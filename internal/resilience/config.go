package resilience

import "time"

// Breaker presets
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Scoring has a one-second budget per call, so trip fast and probe again soon.
	ScoringThreshold         = 3
	ScoringResetTimeout      = 10 * time.Second
	ScoringHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
	IsFailure         func(error) bool
}

// DefaultConfig returns defaults suited to the tone classifier and relay sinks.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// ScoringConfig returns aggressive settings for the deadline-bound scoring collaborator.
func ScoringConfig(name string) Config {
	return Config{
		Name:              name,
		Threshold:         ScoringThreshold,
		ResetTimeout:      ScoringResetTimeout,
		HalfOpenSuccesses: ScoringHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	if c.IsFailure == nil {
		c.IsFailure = countsAsFailure
	}
	return c
}
