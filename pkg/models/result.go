package models

import "time"

// AnalysisStatus is the lifecycle status of an analysis.
type AnalysisStatus string

// Analysis lifecycle states.
const (
	StatusQueued     AnalysisStatus = "queued"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// Canonical evidence dimensions. Every evidence breakdown carries exactly
// these five keys.
const (
	DimTemporal       = "temporal_correlation"
	DimBehavioral     = "behavioral_similarity"
	DimInfrastructure = "infrastructure_clustering"
	DimGeographic     = "geographic_proximity"
	DimPayload        = "payload_similarity"
)

// Dimensions lists the canonical evidence dimensions in reporting order.
var Dimensions = []string{DimTemporal, DimBehavioral, DimInfrastructure, DimGeographic, DimPayload}

// Assessment labels bucketed from the final confidence.
const (
	AssessmentHighlyCoordinated   = "highly_coordinated"
	AssessmentLikelyCoordinated   = "likely_coordinated"
	AssessmentPossiblyCoordinated = "possibly_coordinated"
	AssessmentLikelyCoincidental  = "likely_coincidental"
	AssessmentCoincidental        = "coincidental"
)

// AssessmentLabel maps a confidence in [0,1] to its unique assessment bucket.
func AssessmentLabel(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return AssessmentHighlyCoordinated
	case confidence >= 0.6:
		return AssessmentLikelyCoordinated
	case confidence >= 0.4:
		return AssessmentPossiblyCoordinated
	case confidence >= 0.2:
		return AssessmentLikelyCoincidental
	default:
		return AssessmentCoincidental
	}
}

// Result is the caller-visible outcome of an analysis, returned by Get and
// posted to callback URLs.
type Result struct {
	AnalysisID        string             `json:"analysis_id"`
	Status            AnalysisStatus     `json:"status"`
	Confidence        *float64           `json:"coordination_confidence"` // nil until terminal
	Evidence          map[string]float64 `json:"evidence"`                // nil until terminal
	EnrichmentApplied bool               `json:"enrichment_applied"`
	Reasoning         string             `json:"reasoning,omitempty"`
	KeyFactors        []string           `json:"key_factors,omitempty"`
	ModelUsed         string             `json:"model_used,omitempty"`
	Error             string             `json:"error,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// Progress describes where a still-running analysis currently is.
type Progress struct {
	AnalysisID string    `json:"analysis_id"`
	Step       string    `json:"step"`
	Percent    int       `json:"percent"` // milestone: 10, 20, 80, 90, 100
	State      string    `json:"state"`   // progress | success | failure
	UpdatedAt  time.Time `json:"updated_at"`
}
