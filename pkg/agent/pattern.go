package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dshield-labs/coordengine/pkg/models"
)

// patternDimensions maps each sub-analysis flavor to the evidence dimension
// it feeds.
var patternDimensions = []struct {
	analysisType string
	dimension    string
}{
	{"temporal", "temporal"},
	{"behavioral", "behavioral"},
	{"infrastructure", "infrastructure"},
}

// PatternAnalyzer runs the three LLM sub-analyses (temporal, behavioral,
// infrastructure). The stage never raises: each failed sub-analysis is
// absorbed as a neutral 0.5 fallback and recorded in the state's errors.
type PatternAnalyzer struct {
	llm ReasoningClient // nil = always fall back
}

// NewPatternAnalyzer creates the pattern analysis stage. client may be nil.
func NewPatternAnalyzer(client ReasoningClient) *PatternAnalyzer {
	return &PatternAnalyzer{llm: client}
}

// Name implements Stage.
func (p *PatternAnalyzer) Name() string { return StagePatternAnalyzer }

// Execute fills correlation_results for all three dimensions.
func (p *PatternAnalyzer) Execute(ctx context.Context, st *models.AnalysisState) error {
	if st.CorrelationResults == nil {
		st.CorrelationResults = make(map[string]models.CorrelationResult)
	}

	for _, dim := range patternDimensions {
		result, err := p.analyze(ctx, st, dim.analysisType)
		if err != nil {
			st.AddError(fmt.Sprintf("%s analysis failed: %v", dim.analysisType, err))
			slog.Warn("Pattern sub-analysis fell back",
				"analysis_id", st.AnalysisID, "dimension", dim.dimension, "error", err)
			result = fallbackCorrelation(dim.analysisType)
		}
		st.CorrelationResults[dim.dimension] = result
	}
	return nil
}

// ApplyDefaults implements Stage: neutral fallback for any missing dimension.
func (p *PatternAnalyzer) ApplyDefaults(st *models.AnalysisState) {
	if st.CorrelationResults == nil {
		st.CorrelationResults = make(map[string]models.CorrelationResult)
	}
	for _, dim := range patternDimensions {
		if _, ok := st.CorrelationResults[dim.dimension]; !ok {
			st.CorrelationResults[dim.dimension] = fallbackCorrelation(dim.analysisType)
		}
	}
}

func (p *PatternAnalyzer) analyze(ctx context.Context, st *models.AnalysisState, analysisType string) (models.CorrelationResult, error) {
	if p.llm == nil {
		return models.CorrelationResult{}, fmt.Errorf("reasoning client not configured")
	}

	analysis, err := p.llm.AnalyzeCoordination(ctx, st.Sessions, analysisType, map[string]string{
		"analysis_depth": string(st.Depth),
	})
	if err != nil {
		return models.CorrelationResult{}, err
	}

	if analysis.Model != "" {
		st.ModelUsed = analysis.Model
	}

	return models.CorrelationResult{
		Score:     analysis.Confidence,
		Evidence:  analysis.Evidence,
		Reasoning: analysis.Reasoning,
		Method:    models.MethodLLM,
	}, nil
}

func fallbackCorrelation(analysisType string) models.CorrelationResult {
	return models.CorrelationResult{
		Score:     0.5,
		Reasoning: fmt.Sprintf("%s analysis unavailable, using neutral score", analysisType),
		Method:    models.MethodFallback,
	}
}
