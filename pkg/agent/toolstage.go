package agent

import (
	"context"

	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/tools"
)

// ToolCoordinatorStage wraps the tools coordinator as a pipeline stage. Only
// routed to when needs_deep_analysis is set.
type ToolCoordinatorStage struct {
	coordinator *tools.Coordinator
}

// NewToolCoordinatorStage creates the tool coordination stage.
func NewToolCoordinatorStage(coordinator *tools.Coordinator) *ToolCoordinatorStage {
	if coordinator == nil {
		panic("agent.NewToolCoordinatorStage: coordinator must not be nil")
	}
	return &ToolCoordinatorStage{coordinator: coordinator}
}

// Name implements Stage.
func (t *ToolCoordinatorStage) Name() string { return StageToolCoordinator }

// Execute fans out the depth's tool set over the distinct source addresses
// and synthesizes the enrichment dimensions. Per-tool failures are already
// isolated inside the coordinator; only cancellation reaches the engine.
func (t *ToolCoordinatorStage) Execute(ctx context.Context, st *models.AnalysisState) error {
	st.ToolResults = t.coordinator.Execute(ctx, st.SourceAddresses(), st.Depth)
	if err := ctx.Err(); err != nil {
		return err
	}

	// The map is dropped by omitempty when the queued state round-trips
	// through the store, so it can come back nil.
	if st.EnrichmentData == nil {
		st.EnrichmentData = make(map[string]float64)
	}
	for dim, score := range tools.Synthesize(st.ToolResults) {
		st.EnrichmentData[dim] = score
	}
	return nil
}

// ApplyDefaults implements Stage: missing tool outputs contribute 0.0 to
// every synthesis slot.
func (t *ToolCoordinatorStage) ApplyDefaults(st *models.AnalysisState) {
	if st.EnrichmentData == nil {
		st.EnrichmentData = make(map[string]float64)
	}
	for _, dim := range []string{tools.SynthInfrastructure, tools.SynthGeographic, tools.SynthThreat} {
		if _, ok := st.EnrichmentData[dim]; !ok {
			st.EnrichmentData[dim] = 0.0
		}
	}
}
