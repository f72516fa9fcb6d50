package api

import (
	"time"
)

// AnalysisSubmittedResponse is returned by POST /api/v1/analyses. The result
// fields are always null/false at submission; they mirror the shape clients
// later read from GET /api/v1/analyses/:id.
type AnalysisSubmittedResponse struct {
	AnalysisID        string             `json:"analysis_id"`
	Status            string             `json:"status"`
	Confidence        *float64           `json:"coordination_confidence"`
	Evidence          map[string]float64 `json:"evidence"`
	EnrichmentApplied bool               `json:"enrichment_applied"`
}

// BulkSubmittedResponse is returned by POST /api/v1/analyses/bulk.
type BulkSubmittedResponse struct {
	AnalysisIDs []string `json:"analysis_ids"`
	Status      string   `json:"status"`
	BatchCount  int      `json:"batch_count"`
}

// CancelResponse is returned by POST /api/v1/analyses/:id/cancel.
type CancelResponse struct {
	AnalysisID string `json:"analysis_id"`
	Message    string `json:"message"`
}

// ErrorResponse is the envelope for all error bodies.
type ErrorResponse struct {
	Detail    string    `json:"detail"`
	ErrorCode string    `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheck is a single named check inside a health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// LivenessResponse is returned by GET /health/live.
type LivenessResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadinessResponse is returned by GET /health/ready.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}
