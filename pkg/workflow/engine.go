// Package workflow drives an analysis through the conditional stage DAG:
// orchestrator → pattern analyzer → [tool coordinator] → confidence scorer →
// [enricher] → terminal. The engine is the single writer of the analysis
// state; stages receive it only for the duration of their call.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshield-labs/coordengine/pkg/agent"
	"github.com/dshield-labs/coordengine/pkg/events"
	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/state"
)

// Progress state tags.
const (
	ProgressStateRunning = "progress"
	ProgressStateSuccess = "success"
	ProgressStateFailure = "failure"
)

// Stages bundles the five pipeline stages handed to the engine.
type Stages struct {
	Orchestrator     agent.Stage
	PatternAnalyzer  agent.Stage
	ToolCoordinator  agent.Stage
	ConfidenceScorer agent.Stage
	Enricher         agent.Stage
}

// Engine executes the routing DAG over an AnalysisState, capturing stage
// errors, checkpointing at stage boundaries, and reporting milestone
// progress.
type Engine struct {
	stages    Stages
	store     *state.Store      // nil disables persistence (tests)
	publisher *events.Publisher // nil disables event broadcasting
}

// NewEngine creates a workflow engine.
func NewEngine(stages Stages, store *state.Store) *Engine {
	for _, s := range []agent.Stage{stages.Orchestrator, stages.PatternAnalyzer, stages.ToolCoordinator, stages.ConfidenceScorer, stages.Enricher} {
		if s == nil {
			panic("workflow.NewEngine: all stages must be non-nil")
		}
	}
	return &Engine{stages: stages, store: store}
}

// WithPublisher enables milestone progress broadcasting over pub/sub.
func (e *Engine) WithPublisher(p *events.Publisher) *Engine {
	e.publisher = p
	return e
}

// Run drives st to a terminal state and returns it. The pipeline is
// crash-tolerant across stages: a stage error is recorded, that stage's
// defaults are applied, and execution continues. Only a state-store write
// failure terminates early.
func (e *Engine) Run(ctx context.Context, st *models.AnalysisState) *models.AnalysisState {
	log := slog.With("analysis_id", st.AnalysisID)

	if st.StartTime == nil {
		now := time.Now().UTC()
		st.StartTime = &now
	}
	st.Status = models.StatusProcessing
	e.publish(ctx, st)
	e.progress(ctx, st, agent.StageOrchestrator, 10, ProgressStateRunning)

	executed, failed := 0, 0
	fatal := false

	current := e.stages.Orchestrator
	for current != nil {
		name := current.Name()

		// Checkpoint recovery: skip stages a prior run already completed.
		if st.HasStep(name) {
			log.Info("Skipping completed stage", "stage", name)
			current = e.next(current, st)
			continue
		}

		executed++
		if err := current.Execute(ctx, st); err != nil {
			failed++
			st.AddError(fmt.Sprintf("stage %s: %v", name, err))
			current.ApplyDefaults(st)
			log.Warn("Stage failed, defaults applied", "stage", name, "error", err)
		}
		st.AddStep(name)

		if err := e.checkpoint(ctx, st); err != nil {
			// State-store write failure is fatal: readers could otherwise
			// never observe a consistent state.
			st.AddError(fmt.Sprintf("checkpoint after %s: %v", name, err))
			log.Error("Checkpoint write failed, terminating pipeline", "stage", name, "error", err)
			fatal = true
			break
		}

		if name == agent.StageOrchestrator {
			e.progress(ctx, st, agent.StagePatternAnalyzer, 20, ProgressStateRunning)
		}
		if name == agent.StageConfidenceScorer {
			e.progress(ctx, st, name, 80, ProgressStateRunning)
		}

		current = e.next(current, st)
	}

	e.progress(ctx, st, "finalizing", 90, ProgressStateRunning)
	e.finalize(ctx, st, executed, failed, fatal)

	log.Info("Workflow finished",
		"status", st.Status,
		"confidence", st.CoordinationConfidence,
		"steps", len(st.ProcessingSteps),
		"errors", len(st.Errors),
		"duration", st.ProcessingTime())
	return st
}

// next resolves the routing edge out of a stage against the current state.
func (e *Engine) next(current agent.Stage, st *models.AnalysisState) agent.Stage {
	switch current.Name() {
	case agent.StageOrchestrator:
		return e.stages.PatternAnalyzer
	case agent.StagePatternAnalyzer:
		if st.NeedsDeepAnalysis {
			return e.stages.ToolCoordinator
		}
		return e.stages.ConfidenceScorer
	case agent.StageToolCoordinator:
		return e.stages.ConfidenceScorer
	case agent.StageConfidenceScorer:
		if st.Depth == models.DepthDeep {
			return e.stages.Enricher
		}
		return nil
	default:
		return nil
	}
}

func (e *Engine) finalize(ctx context.Context, st *models.AnalysisState, executed, failed int, fatal bool) {
	now := time.Now().UTC()
	st.EndTime = &now

	cancelled := ctx.Err() != nil
	if cancelled {
		msg := "analysis cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "analysis timed out"
		}
		st.AddError(msg)
	}

	switch {
	case fatal || cancelled || (executed > 0 && failed == executed):
		st.Status = models.StatusFailed
		if st.FinalAssessment == nil {
			neutralAssessment(st)
		}
	default:
		st.Status = models.StatusCompleted
		if st.FinalAssessment == nil {
			neutralAssessment(st)
		}
	}

	tag := ProgressStateSuccess
	if st.Status == models.StatusFailed {
		tag = ProgressStateFailure
	}
	e.publish(ctx, st)
	e.progress(ctx, st, "terminal", 100, tag)
}

// neutralAssessment is the all-stages-failed default: confidence 0.5, empty
// evidence, possibly_coordinated.
func neutralAssessment(st *models.AnalysisState) {
	st.CoordinationConfidence = 0.5
	st.EvidenceBreakdown = map[string]float64{}
	st.FinalAssessment = &models.FinalAssessment{
		Confidence: 0.5,
		Evidence:   map[string]float64{},
		Assessment: models.AssessmentPossiblyCoordinated,
		Reasoning:  "no stage produced evidence; neutral assessment",
	}
}

// checkpoint publishes the live state and replaces the stage-boundary
// checkpoint. Uses a background-derived context on cancellation so terminal
// writes still land.
func (e *Engine) checkpoint(ctx context.Context, st *models.AnalysisState) error {
	if e.store == nil {
		return nil
	}
	wctx := writeContext(ctx)
	if err := e.store.SaveState(wctx, st); err != nil {
		return err
	}
	return e.store.SaveCheckpoint(wctx, st)
}

func (e *Engine) publish(ctx context.Context, st *models.AnalysisState) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveState(writeContext(ctx), st); err != nil {
		slog.Warn("Failed to publish state", "analysis_id", st.AnalysisID, "error", err)
	}
}

func (e *Engine) progress(ctx context.Context, st *models.AnalysisState, step string, percent int, tag string) {
	slog.Info("Analysis progress",
		"analysis_id", st.AnalysisID, "step", step, "percent", percent, "state", tag)

	if e.publisher != nil {
		err := e.publisher.PublishProgress(writeContext(ctx), events.ProgressEvent{
			AnalysisID: st.AnalysisID,
			Step:       step,
			Percent:    percent,
			State:      tag,
		})
		if err != nil {
			slog.Warn("Failed to publish progress event",
				"analysis_id", st.AnalysisID, "step", step, "error", err)
		}
	}

	if e.store == nil {
		return
	}
	err := e.store.SaveProgress(writeContext(ctx), &models.Progress{
		AnalysisID: st.AnalysisID,
		Step:       step,
		Percent:    percent,
		State:      tag,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("Failed to save progress", "analysis_id", st.AnalysisID, "error", err)
	}
}

// writeContext detaches persistence writes from a cancelled analysis context
// so terminal state still lands. The Redis client's own timeouts bound the
// write.
func writeContext(ctx context.Context) context.Context {
	if ctx.Err() == nil {
		return ctx
	}
	return context.WithoutCancel(ctx)
}
