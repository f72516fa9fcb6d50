package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dshield-labs/coordengine/pkg/config"
)

// WorkerPool manages the dispatch queue and its pool of workers.
type WorkerPool struct {
	queue    *Dispatch
	config   *config.QueueConfig
	executor AnalysisExecutor
	workers  []*Worker

	// Analysis cancel registry: analysis_id → cancel function
	activeAnalyses map[string]context.CancelFunc
	mu             sync.RWMutex
	started        bool
}

// NewWorkerPool creates a new worker pool over a bounded dispatch queue.
func NewWorkerPool(cfg *config.QueueConfig, executor AnalysisExecutor) *WorkerPool {
	if cfg == nil {
		cfg = config.DefaultQueueConfig()
	}
	if executor == nil {
		panic("queue.NewWorkerPool: executor must not be nil")
	}
	return &WorkerPool{
		queue:          NewDispatch(cfg.Capacity),
		config:         cfg,
		executor:       executor,
		workers:        make([]*Worker, 0, cfg.WorkerCount),
		activeAnalyses: make(map[string]context.CancelFunc),
	}
}

// Enqueue admits an analysis id to the dispatch queue. Satisfies
// services.Enqueuer.
func (p *WorkerPool) Enqueue(analysisID string) error {
	return p.queue.Enqueue(analysisID)
}

// Start spawns the worker goroutines.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool",
		"worker_count", p.config.WorkerCount,
		"queue_capacity", p.queue.Capacity())

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		worker := NewWorker(workerID, p.queue, p.config, p.executor, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current analyses before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	active := p.getActiveAnalysisIDs()
	if len(active) > 0 {
		slog.Info("Waiting for active analyses to complete",
			"count", len(active),
			"analysis_ids", active)
	}

	for _, worker := range p.workers {
		worker.Stop()
	}

	slog.Info("Worker pool stopped gracefully")
}

// RegisterAnalysis stores a cancel function for manual cancellation.
func (p *WorkerPool) RegisterAnalysis(analysisID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeAnalyses[analysisID] = cancel
}

// UnregisterAnalysis removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterAnalysis(analysisID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeAnalyses, analysisID)
}

// CancelAnalysis triggers context cancellation for an in-flight analysis.
// Returns true if the analysis was found and cancelled.
func (p *WorkerPool) CancelAnalysis(analysisID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeAnalyses[analysisID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	p.mu.RLock()
	activeAnalyses := len(p.activeAnalyses)
	p.mu.RUnlock()

	return &PoolHealth{
		IsHealthy:      len(p.workers) > 0,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		ActiveAnalyses: activeAnalyses,
		QueueDepth:     p.queue.Depth(),
		QueueCapacity:  p.queue.Capacity(),
		WorkerStats:    workerStats,
	}
}

// getActiveAnalysisIDs returns ids of currently processing analyses (for logging).
func (p *WorkerPool) getActiveAnalysisIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeAnalyses))
	for id := range p.activeAnalyses {
		ids = append(ids, id)
	}
	return ids
}
