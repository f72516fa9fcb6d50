package api

import (
	"github.com/dshield-labs/coordengine/pkg/models"
)

// SubmitAnalysisRequest is the HTTP request body for POST /api/v1/analyses.
type SubmitAnalysisRequest struct {
	Sessions    []models.AttackSession `json:"attack_sessions"`
	Depth       models.AnalysisDepth   `json:"analysis_depth,omitempty"`
	CallbackURL string                 `json:"callback_url,omitempty"`
}

// BulkSubmitRequest is the HTTP request body for POST /api/v1/analyses/bulk.
// Each batch becomes an independent analysis sharing the depth and callback.
type BulkSubmitRequest struct {
	Batches     [][]models.AttackSession `json:"session_batches"`
	Depth       models.AnalysisDepth     `json:"analysis_depth,omitempty"`
	CallbackURL string                   `json:"callback_url,omitempty"`
}
