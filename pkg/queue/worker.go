package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/models"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that polls for and processes analyses.
type Worker struct {
	id       string
	queue    *Dispatch
	config   *config.QueueConfig
	executor AnalysisExecutor
	pool     AnalysisRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu                sync.RWMutex
	status            WorkerStatus
	currentAnalysisID string
	analysesProcessed int
	lastActivity      time.Time
}

// AnalysisRegistry is the subset of WorkerPool used by Worker for
// cancellation registration.
type AnalysisRegistry interface {
	RegisterAnalysis(analysisID string, cancel context.CancelFunc)
	UnregisterAnalysis(analysisID string)
}

// NewWorker creates a new queue worker.
func NewWorker(id string, queue *Dispatch, cfg *config.QueueConfig, executor AnalysisExecutor, pool AnalysisRegistry) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            string(w.status),
		CurrentAnalysisID: w.currentAnalysisID,
		AnalysesProcessed: w.analysesProcessed,
		LastActivity:      w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoAnalysesAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing analysis", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the next queued analysis and runs it to completion.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	analysisID, err := w.queue.Dequeue()
	if err != nil {
		return err
	}

	log := slog.With("analysis_id", analysisID, "worker_id", w.id)
	log.Info("Analysis claimed")

	w.setStatus(WorkerStatusWorking, analysisID)
	defer w.setStatus(WorkerStatusIdle, "")

	// Analysis context with timeout, registered for API-triggered cancellation.
	analysisCtx, cancelAnalysis := context.WithTimeout(ctx, w.config.AnalysisTimeout)
	defer cancelAnalysis()

	w.pool.RegisterAnalysis(analysisID, cancelAnalysis)
	defer w.pool.UnregisterAnalysis(analysisID)

	result := w.executor.Execute(analysisCtx, analysisID)

	// Nil-guard: synthesize a safe result if the executor returned nil.
	if result == nil {
		switch {
		case errors.Is(analysisCtx.Err(), context.DeadlineExceeded):
			result = &ExecutionResult{
				Status: models.StatusFailed,
				Error:  fmt.Errorf("analysis timed out after %v", w.config.AnalysisTimeout),
			}
		case errors.Is(analysisCtx.Err(), context.Canceled):
			result = &ExecutionResult{
				Status: models.StatusFailed,
				Error:  context.Canceled,
			}
		default:
			result = &ExecutionResult{
				Status: models.StatusFailed,
				Error:  fmt.Errorf("executor returned nil result"),
			}
		}
	}

	w.mu.Lock()
	w.analysesProcessed++
	w.mu.Unlock()

	if result.Error != nil {
		log.Warn("Analysis processing finished with error", "status", result.Status, "error", result.Error)
	} else {
		log.Info("Analysis processing complete", "status", result.Status)
	}
	return nil
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, analysisID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentAnalysisID = analysisID
	w.lastActivity = time.Now()
}
