package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/events"
	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/notify"
	"github.com/dshield-labs/coordengine/pkg/state"
	"github.com/dshield-labs/coordengine/pkg/workflow"
)

// RealAnalysisExecutor runs a claimed analysis through the workflow engine,
// caches the terminal result, broadcasts lifecycle events, and fires the
// optional callback.
type RealAnalysisExecutor struct {
	store       *state.Store
	resultCache *cache.Cache
	engine      *workflow.Engine
	notifier    *notify.CallbackNotifier
	publisher   *events.Publisher
}

// NewRealAnalysisExecutor creates an executor bound to the shared stores.
// notifier and publisher may be nil to disable callback delivery and event
// broadcasting respectively.
func NewRealAnalysisExecutor(store *state.Store, resultCache *cache.Cache, engine *workflow.Engine, notifier *notify.CallbackNotifier, publisher *events.Publisher) *RealAnalysisExecutor {
	if store == nil {
		panic("queue.NewRealAnalysisExecutor: store must not be nil")
	}
	if resultCache == nil {
		panic("queue.NewRealAnalysisExecutor: resultCache must not be nil")
	}
	if engine == nil {
		panic("queue.NewRealAnalysisExecutor: engine must not be nil")
	}
	return &RealAnalysisExecutor{
		store:       store,
		resultCache: resultCache,
		engine:      engine,
		notifier:    notifier,
		publisher:   publisher,
	}
}

// Execute recovers the analysis state (checkpoint preferred), runs the engine
// to a terminal status, and handles post-terminal bookkeeping.
func (e *RealAnalysisExecutor) Execute(ctx context.Context, analysisID string) *ExecutionResult {
	log := slog.With("analysis_id", analysisID)

	// A cancelled analysis still needs its state read so a terminal result
	// can land; the store's own timeouts bound the detached read.
	readCtx := ctx
	if ctx.Err() != nil {
		readCtx = context.WithoutCancel(ctx)
	}
	st, err := e.store.Recover(readCtx, analysisID)
	if err != nil {
		log.Error("Failed to recover analysis state", "error", err)
		return &ExecutionResult{
			Status: models.StatusFailed,
			Error:  fmt.Errorf("recovering state for %s: %w", analysisID, err),
		}
	}

	e.publishStatus(ctx, analysisID, string(models.StatusProcessing), "")

	st = e.engine.Run(ctx, st)
	result := st.Result()

	// Terminal bookkeeping uses a detached context so a cancelled analysis
	// still lands its result.
	postCtx := context.WithoutCancel(ctx)

	if err := e.resultCache.Set(postCtx, cache.NamespaceAnalysis, analysisID, result); err != nil {
		log.Warn("Failed to cache terminal result", "error", err)
	}

	if st.Status == models.StatusFailed {
		if err := e.store.SaveErrorState(postCtx, st); err != nil {
			log.Warn("Failed to save error state", "error", err)
		}
	}

	e.publishStatus(postCtx, analysisID, string(st.Status), result.Error)

	if st.CallbackURL != "" && e.notifier != nil {
		if err := e.notifier.Deliver(postCtx, st.CallbackURL, result); err != nil {
			log.Warn("Callback delivery failed", "url", st.CallbackURL, "error", err)
		}
	}

	execResult := &ExecutionResult{Status: st.Status, Result: result}
	if st.Status == models.StatusFailed && result.Error != "" {
		execResult.Error = fmt.Errorf("%s", result.Error)
	}
	return execResult
}

// publishStatus broadcasts a lifecycle event. Best-effort: subscribers that
// miss an event catch up from the state store.
func (e *RealAnalysisExecutor) publishStatus(ctx context.Context, analysisID, status, errMsg string) {
	if e.publisher == nil {
		return
	}
	ev := events.StatusEvent{AnalysisID: analysisID, Status: status, Error: errMsg}
	if err := e.publisher.PublishStatus(ctx, ev); err != nil {
		slog.Warn("Failed to publish status event",
			"analysis_id", analysisID, "status", status, "error", err)
	}
}
