package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-labs/coordengine/pkg/llm"
	"github.com/dshield-labs/coordengine/pkg/models"
)

// stubReasoner is a canned ReasoningClient for stage tests.
type stubReasoner struct {
	analysis   *llm.CoordinationAnalysis
	analyzeErr error
	score      float64
	calls      []string
}

func (s *stubReasoner) AnalyzeCoordination(_ context.Context, _ []models.AttackSession, analysisType string, _ map[string]string) (*llm.CoordinationAnalysis, error) {
	s.calls = append(s.calls, analysisType)
	if s.analyzeErr != nil {
		return nil, s.analyzeErr
	}
	return s.analysis, nil
}

func (s *stubReasoner) ScoreConfidence(context.Context, map[string]float64) float64 {
	return s.score
}

func (s *stubReasoner) Health(context.Context) error { return nil }

func patternState() *models.AnalysisState {
	return models.NewAnalysisState("wf-1", models.AnalysisRequest{
		Sessions: burstSessions(3, 30*time.Second),
		Depth:    models.DepthStandard,
	})
}

func TestPatternAnalyzer_Execute(t *testing.T) {
	reasoner := &stubReasoner{
		analysis: &llm.CoordinationAnalysis{
			Confidence: 0.8,
			Evidence:   map[string]float64{models.DimTemporal: 0.9},
			Reasoning:  "tight clustering",
			Model:      "llama-3.1-8b-instruct",
		},
	}
	p := NewPatternAnalyzer(reasoner)
	st := patternState()

	require.NoError(t, p.Execute(context.Background(), st))

	assert.Equal(t, []string{"temporal", "behavioral", "infrastructure"}, reasoner.calls)
	require.Len(t, st.CorrelationResults, 3)
	for _, dim := range []string{"temporal", "behavioral", "infrastructure"} {
		r := st.CorrelationResults[dim]
		assert.Equal(t, 0.8, r.Score)
		assert.Equal(t, models.MethodLLM, r.Method)
	}
	assert.Equal(t, "llama-3.1-8b-instruct", st.ModelUsed)
	assert.Empty(t, st.Errors)
}

func TestPatternAnalyzer_FallsBackPerDimension(t *testing.T) {
	reasoner := &stubReasoner{analyzeErr: errors.New("llm unavailable")}
	p := NewPatternAnalyzer(reasoner)
	st := patternState()

	// The stage absorbs sub-analysis failures and never raises.
	require.NoError(t, p.Execute(context.Background(), st))

	require.Len(t, st.CorrelationResults, 3)
	for dim, r := range st.CorrelationResults {
		assert.Equal(t, 0.5, r.Score, "dimension %s", dim)
		assert.Equal(t, models.MethodFallback, r.Method, "dimension %s", dim)
	}
	assert.Len(t, st.Errors, 3, "each failed sub-analysis is recorded")
}

func TestPatternAnalyzer_NilClientFallsBack(t *testing.T) {
	p := NewPatternAnalyzer(nil)
	st := patternState()

	require.NoError(t, p.Execute(context.Background(), st))
	for _, r := range st.CorrelationResults {
		assert.Equal(t, models.MethodFallback, r.Method)
	}
}

func TestPatternAnalyzer_ApplyDefaults(t *testing.T) {
	p := NewPatternAnalyzer(nil)
	st := patternState()
	st.CorrelationResults["temporal"] = models.CorrelationResult{Score: 0.9, Method: models.MethodLLM}

	p.ApplyDefaults(st)

	// Existing results are preserved, missing dimensions filled neutrally.
	assert.Equal(t, 0.9, st.CorrelationResults["temporal"].Score)
	assert.Equal(t, models.MethodFallback, st.CorrelationResults["behavioral"].Method)
	assert.Equal(t, models.MethodFallback, st.CorrelationResults["infrastructure"].Method)
}
