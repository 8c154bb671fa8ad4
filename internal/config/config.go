// Package config handles platform configuration
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Collaborator transports
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

type Config struct {
	HTTPAddr        string
	InferenceAddr   string
	CollabTransport string // "http" or "grpc"
	ScoringURL      string
	ToneURL         string

	MinDelta          int
	Cooldown          time.Duration
	CorrelationWindow time.Duration
	ScoringDeadline   time.Duration
	DumpThreshold     int
	ToneMinScore      float64
	ToneDelay         time.Duration
	StatusIdleDelay   time.Duration

	DBPath     string
	RelayURL   string
	StreamerID string
	Platform   string
	LogLevel   slog.Level
}

// Load reads a .env file when present, then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	return &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8000"),
		InferenceAddr:     getEnv("INFERENCE_ADDR", "localhost:50051"),
		CollabTransport:   strings.ToLower(getEnv("COLLAB_TRANSPORT", TransportHTTP)),
		ScoringURL:        getEnv("SCORING_URL", "http://localhost:8001"),
		ToneURL:           getEnv("TONE_URL", "http://localhost:8001"),
		MinDelta:          getEnvInt("MIN_DELTA", 3),
		Cooldown:          getEnvMillis("COOLDOWN_MS", 20*time.Second),
		CorrelationWindow: getEnvMillis("CORRELATION_WINDOW_MS", 25*time.Second),
		ScoringDeadline:   getEnvMillis("SCORING_DEADLINE_MS", time.Second),
		DumpThreshold:     getEnvInt("DUMP_THRESHOLD", 30),
		ToneMinScore:      getEnvFloat("TONE_MIN_SCORE", 0.6),
		ToneDelay:         getEnvMillis("TONE_DELAY_MS", 400*time.Millisecond),
		StatusIdleDelay:   getEnvMillis("STATUS_IDLE_DELAY_MS", 3*time.Second),
		DBPath:            getEnv("DB_PATH", "spikely.db"),
		RelayURL:          getEnv("RELAY_URL", ""),
		StreamerID:        getEnv("STREAMER_ID", "local"),
		Platform:          getEnv("PLATFORM", "local"),
		LogLevel:          getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate rejects values the correlator cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.CollabTransport != TransportHTTP && c.CollabTransport != TransportGRPC {
		errs = append(errs, fmt.Errorf("COLLAB_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportGRPC, c.CollabTransport))
	}
	if c.MinDelta < 1 {
		errs = append(errs, fmt.Errorf("MIN_DELTA must be >= 1, got %d", c.MinDelta))
	}
	if c.Cooldown < 0 {
		errs = append(errs, errors.New("COOLDOWN_MS must not be negative"))
	}
	if c.CorrelationWindow <= 0 {
		errs = append(errs, errors.New("CORRELATION_WINDOW_MS must be positive"))
	}
	if c.ScoringDeadline <= 0 {
		errs = append(errs, errors.New("SCORING_DEADLINE_MS must be positive"))
	}
	if c.DumpThreshold <= 0 {
		errs = append(errs, fmt.Errorf("DUMP_THRESHOLD must be positive, got %d", c.DumpThreshold))
	}
	if c.ToneMinScore < 0 || c.ToneMinScore > 1 {
		errs = append(errs, fmt.Errorf("TONE_MIN_SCORE must be within [0,1], got %v", c.ToneMinScore))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func getEnvLevel(key string, def slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			return lvl
		}
	}
	return def
}
