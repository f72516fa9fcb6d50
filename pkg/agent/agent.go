// Package agent implements the pipeline stages: orchestrator routing,
// pattern analysis, tool coordination, confidence scoring, and enrichment.
// Stages are stateless over the shared AnalysisState; the workflow engine
// owns sequencing and error capture.
package agent

import (
	"context"

	"github.com/dshield-labs/coordengine/pkg/llm"
	"github.com/dshield-labs/coordengine/pkg/models"
)

// Stage names as they appear in processing steps and analysis plans.
const (
	StageOrchestrator     = "orchestrator"
	StagePatternAnalyzer  = "pattern_analyzer"
	StageToolCoordinator  = "tool_coordinator"
	StageConfidenceScorer = "confidence_scorer"
	StageEnricher         = "elasticsearch_enrichment"
)

// Plan step names emitted by the orchestrator.
const (
	PlanPatternAnalysis   = "pattern_analysis"
	PlanToolCoordination  = "tool_coordination"
	PlanConfidenceScoring = "confidence_scoring"
	PlanEnrichment        = "elasticsearch_enrichment"
)

// Stage is one unit of pipeline work. Execute mutates the state it is handed;
// on error the engine records it and calls ApplyDefaults so downstream stages
// always see well-formed state.
type Stage interface {
	Name() string
	Execute(ctx context.Context, st *models.AnalysisState) error
	ApplyDefaults(st *models.AnalysisState)
}

// ReasoningClient is the subset of the LLM client used by stages. Narrowed
// to an interface so tests can script responses.
type ReasoningClient interface {
	AnalyzeCoordination(ctx context.Context, sessions []models.AttackSession, analysisType string, extra map[string]string) (*llm.CoordinationAnalysis, error)
	ScoreConfidence(ctx context.Context, evidence map[string]float64) float64
	Health(ctx context.Context) error
}
