// Package grpcclient talks to the tone and scoring collaborators over gRPC
package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Readiness probe used at startup
	DefaultReadyTimeout = 2 * time.Second
)

// Fully qualified method names. Messages are google.protobuf.Struct in both directions.
const (
	MethodGenerateInsight = "/spikely.v1.InsightService/GenerateInsight"
	MethodAnalyzeText     = "/spikely.v1.ToneService/AnalyzeText"
)
