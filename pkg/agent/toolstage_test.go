package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/tools"
)

func TestToolCoordinatorStage_Execute(t *testing.T) {
	stage := NewToolCoordinatorStage(tools.NewCoordinator(tools.NewRegistry(), nil, 4))
	st := models.NewAnalysisState("wf-1", models.AnalysisRequest{
		Sessions: []models.AttackSession{
			{SourceIP: "10.0.0.1", Timestamp: time.Now().Add(-time.Hour), Payload: "a"},
			{SourceIP: "10.0.0.2", Timestamp: time.Now().Add(-time.Hour), Payload: "a"},
			{SourceIP: "10.0.0.3", Timestamp: time.Now().Add(-time.Hour), Payload: "a"},
		},
		Depth: models.DepthStandard,
	})

	require.NoError(t, stage.Execute(context.Background(), st))

	assert.Len(t, st.ToolResults, 3)
	// All three synthesis slots are present.
	assert.Contains(t, st.EnrichmentData, tools.SynthInfrastructure)
	assert.Contains(t, st.EnrichmentData, tools.SynthGeographic)
	assert.Contains(t, st.EnrichmentData, tools.SynthThreat)

	// Same /8, so the geolocation providers agree on country.
	assert.Equal(t, 0.8, st.EnrichmentData[tools.SynthGeographic])
	// Same /16, so the BGP provider maps all addresses to one ASN.
	assert.Equal(t, 0.8, st.EnrichmentData[tools.SynthInfrastructure])
	assert.Greater(t, st.EnrichmentData[tools.SynthThreat], 0.0)
}

func TestToolCoordinatorStage_ExecuteAfterStateRoundTrip(t *testing.T) {
	stage := NewToolCoordinatorStage(tools.NewCoordinator(tools.NewRegistry(), nil, 4))
	st := models.NewAnalysisState("wf-1", models.AnalysisRequest{
		Sessions: []models.AttackSession{
			{SourceIP: "10.0.0.1", Timestamp: time.Now().Add(-time.Hour), Payload: "a"},
			{SourceIP: "10.0.0.2", Timestamp: time.Now().Add(-time.Hour), Payload: "a"},
			{SourceIP: "10.0.0.3", Timestamp: time.Now().Add(-time.Hour), Payload: "a"},
		},
		Depth: models.DepthDeep,
	})

	// Empty maps are dropped on marshal, so a recovered state carries them
	// back as nil.
	data, err := json.Marshal(st)
	require.NoError(t, err)
	var recovered models.AnalysisState
	require.NoError(t, json.Unmarshal(data, &recovered))
	require.Nil(t, recovered.EnrichmentData)

	require.NoError(t, stage.Execute(context.Background(), &recovered))
	assert.Contains(t, recovered.EnrichmentData, tools.SynthInfrastructure)
}

func TestToolCoordinatorStage_CancelledContext(t *testing.T) {
	stage := NewToolCoordinatorStage(tools.NewCoordinator(tools.NewRegistry(), nil, 4))
	st := models.NewAnalysisState("wf-1", models.AnalysisRequest{
		Sessions: burstSessions(3, time.Second),
		Depth:    models.DepthStandard,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, stage.Execute(ctx, st), context.Canceled)
}

func TestToolCoordinatorStage_ApplyDefaults(t *testing.T) {
	stage := NewToolCoordinatorStage(tools.NewCoordinator(tools.NewRegistry(), nil, 4))
	st := models.NewAnalysisState("wf-1", models.AnalysisRequest{})
	st.EnrichmentData[tools.SynthThreat] = 0.4

	stage.ApplyDefaults(st)

	// Existing values survive, missing slots zero-fill.
	assert.Equal(t, 0.4, st.EnrichmentData[tools.SynthThreat])
	assert.Equal(t, 0.0, st.EnrichmentData[tools.SynthInfrastructure])
	assert.Equal(t, 0.0, st.EnrichmentData[tools.SynthGeographic])
}
