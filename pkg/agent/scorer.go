package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dshield-labs/coordengine/pkg/llm"
	"github.com/dshield-labs/coordengine/pkg/models"
)

// ConfidenceScorer assembles the canonical five-dimension evidence vector
// and produces the final assessment. The deterministic weighted mean is the
// ground truth; an available reasoning client may override it, clamped to
// [0,1], with any failure falling back to the mean.
type ConfidenceScorer struct {
	llm ReasoningClient // nil = weighted mean only
}

// NewConfidenceScorer creates the scoring stage. client may be nil.
func NewConfidenceScorer(client ReasoningClient) *ConfidenceScorer {
	return &ConfidenceScorer{llm: client}
}

// Name implements Stage.
func (c *ConfidenceScorer) Name() string { return StageConfidenceScorer }

// Execute writes evidence_breakdown, coordination_confidence, and the final
// assessment.
func (c *ConfidenceScorer) Execute(ctx context.Context, st *models.AnalysisState) error {
	evidence := assembleEvidence(st)

	confidence := llm.EstimateConfidence(evidence)
	if c.llm != nil {
		// ScoreConfidence clamps and already falls back to the weighted
		// mean on transport or parse failure.
		confidence = c.llm.ScoreConfidence(ctx, evidence)
	}

	c.finalize(st, evidence, confidence)
	return nil
}

// ApplyDefaults implements Stage: the pure weighted-mean path, which cannot
// fail.
func (c *ConfidenceScorer) ApplyDefaults(st *models.AnalysisState) {
	evidence := assembleEvidence(st)
	c.finalize(st, evidence, llm.EstimateConfidence(evidence))
}

func (c *ConfidenceScorer) finalize(st *models.AnalysisState, evidence map[string]float64, confidence float64) {
	label := models.AssessmentLabel(confidence)
	st.EvidenceBreakdown = evidence
	st.CoordinationConfidence = confidence
	st.FinalAssessment = &models.FinalAssessment{
		Confidence: confidence,
		Evidence:   evidence,
		Assessment: label,
		Reasoning:  buildReasoning(evidence, label),
	}
}

// assembleEvidence builds the canonical vector from state:
//
//   - temporal, behavioral: pattern sub-scores (default 0.0)
//   - infrastructure: synthesized clustering preferred over the pattern score
//   - geographic: synthesized proximity (default 0.0)
//   - payload: fixed 0.5 until a payload-similarity source exists
func assembleEvidence(st *models.AnalysisState) map[string]float64 {
	evidence := map[string]float64{
		models.DimTemporal:       0.0,
		models.DimBehavioral:     0.0,
		models.DimInfrastructure: 0.0,
		models.DimGeographic:     0.0,
		models.DimPayload:        0.5,
	}

	if r, ok := st.CorrelationResults["temporal"]; ok {
		evidence[models.DimTemporal] = r.Score
	}
	if r, ok := st.CorrelationResults["behavioral"]; ok {
		evidence[models.DimBehavioral] = r.Score
	}
	if score, ok := st.EnrichmentData[models.DimInfrastructure]; ok {
		evidence[models.DimInfrastructure] = score
	} else if r, ok := st.CorrelationResults["infrastructure"]; ok {
		evidence[models.DimInfrastructure] = r.Score
	}
	if score, ok := st.EnrichmentData[models.DimGeographic]; ok {
		evidence[models.DimGeographic] = score
	}

	return evidence
}

// buildReasoning enumerates strong (>0.7) and weak (<0.3) dimensions, then
// states the assessment.
func buildReasoning(evidence map[string]float64, label string) string {
	var strong, weak []string
	dims := make([]string, 0, len(evidence))
	for dim := range evidence {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	for _, dim := range dims {
		switch {
		case evidence[dim] > 0.7:
			strong = append(strong, dim)
		case evidence[dim] < 0.3:
			weak = append(weak, dim)
		}
	}

	var parts []string
	if len(strong) > 0 {
		parts = append(parts, fmt.Sprintf("strong evidence: %s", strings.Join(strong, ", ")))
	}
	if len(weak) > 0 {
		parts = append(parts, fmt.Sprintf("weak evidence: %s", strings.Join(weak, ", ")))
	}
	parts = append(parts, fmt.Sprintf("assessment: %s", label))
	return strings.Join(parts, "; ")
}
