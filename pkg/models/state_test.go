package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessions() []AttackSession {
	now := time.Now().Add(-time.Hour)
	return []AttackSession{
		{SourceIP: "203.0.113.10", Timestamp: now, Payload: "GET /admin"},
		{SourceIP: "203.0.113.11", Timestamp: now.Add(time.Minute), Payload: "GET /admin"},
		{SourceIP: "203.0.113.10", Timestamp: now.Add(2 * time.Minute), Payload: "GET /login"},
	}
}

func TestNewAnalysisState(t *testing.T) {
	st := NewAnalysisState("abc-123", AnalysisRequest{
		Sessions:    testSessions(),
		Depth:       DepthStandard,
		CallbackURL: "https://example.com/hook",
		UserID:      "alice",
	})

	assert.Equal(t, "abc-123", st.AnalysisID)
	assert.Equal(t, StatusQueued, st.Status)
	assert.Equal(t, DepthStandard, st.Depth)
	assert.Equal(t, "https://example.com/hook", st.CallbackURL)
	assert.NotNil(t, st.CorrelationResults)
	assert.NotNil(t, st.ToolResults)
	assert.NotNil(t, st.EnrichmentData)
	assert.Empty(t, st.ProcessingSteps)
}

func TestAnalysisState_Steps(t *testing.T) {
	st := NewAnalysisState("abc", AnalysisRequest{Sessions: testSessions(), Depth: DepthMinimal})

	assert.False(t, st.HasStep("orchestrator"))
	st.AddStep("orchestrator")
	st.AddStep("pattern_analyzer")
	assert.True(t, st.HasStep("orchestrator"))
	assert.True(t, st.HasStep("pattern_analyzer"))
	assert.False(t, st.HasStep("confidence_scorer"))

	// Append-only: the step log preserves order.
	require.Len(t, st.ProcessingSteps, 2)
	assert.Equal(t, "orchestrator", st.ProcessingSteps[0].Step)
	assert.Equal(t, "pattern_analyzer", st.ProcessingSteps[1].Step)
}

func TestAnalysisState_SourceAddresses(t *testing.T) {
	st := NewAnalysisState("abc", AnalysisRequest{Sessions: testSessions()})

	// Duplicates collapse, input order preserved.
	assert.Equal(t, []string{"203.0.113.10", "203.0.113.11"}, st.SourceAddresses())
}

func TestAnalysisState_Result(t *testing.T) {
	t.Run("queued hides confidence and evidence", func(t *testing.T) {
		st := NewAnalysisState("abc", AnalysisRequest{Sessions: testSessions()})
		st.CoordinationConfidence = 0.9 // not yet terminal

		res := st.Result()
		assert.Equal(t, StatusQueued, res.Status)
		assert.Nil(t, res.Confidence)
		assert.Nil(t, res.Evidence)
	})

	t.Run("completed exposes confidence and evidence", func(t *testing.T) {
		st := NewAnalysisState("abc", AnalysisRequest{Sessions: testSessions()})
		st.Status = StatusCompleted
		st.CoordinationConfidence = 0.72
		st.EvidenceBreakdown = map[string]float64{DimTemporal: 0.8}
		st.FinalAssessment = &FinalAssessment{Reasoning: "strong temporal clustering"}

		res := st.Result()
		require.NotNil(t, res.Confidence)
		assert.Equal(t, 0.72, *res.Confidence)
		assert.Equal(t, 0.8, res.Evidence[DimTemporal])
		assert.Equal(t, "strong temporal clustering", res.Reasoning)
		assert.Empty(t, res.Error)
	})

	t.Run("failed carries the last recorded error", func(t *testing.T) {
		st := NewAnalysisState("abc", AnalysisRequest{Sessions: testSessions()})
		st.Status = StatusFailed
		st.AddError("stage pattern_analyzer: llm unavailable")
		st.AddError("analysis timed out")

		res := st.Result()
		assert.Equal(t, "analysis timed out", res.Error)
		require.NotNil(t, res.Confidence)
	})
}

func TestAnalysisState_ProcessingTime(t *testing.T) {
	st := NewAnalysisState("abc", AnalysisRequest{Sessions: testSessions()})
	assert.Zero(t, st.ProcessingTime())

	start := time.Now().Add(-3 * time.Second)
	end := start.Add(2 * time.Second)
	st.StartTime = &start
	st.EndTime = &end
	assert.Equal(t, 2*time.Second, st.ProcessingTime())
}
