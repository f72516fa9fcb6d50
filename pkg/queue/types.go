// Package queue provides the bounded dispatch queue and the worker pool that
// drains it, processing analyses in the background.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/services"
)

// Sentinel errors for queue operations.
var (
	// ErrNoAnalysesAvailable indicates the dispatch queue is empty.
	ErrNoAnalysesAvailable = errors.New("no analyses available")
)

// AnalysisExecutor is the interface for analysis processing.
//
// The executor owns the entire analysis lifecycle internally: recovering
// state, running the workflow engine to a terminal stage, caching the
// result, and firing the callback. The worker only handles claiming,
// timeout classification, and health tracking.
type AnalysisExecutor interface {
	Execute(ctx context.Context, analysisID string) *ExecutionResult
}

// ExecutionResult carries just the terminal outcome. All
// intermediate state was already persisted by the engine during processing.
type ExecutionResult struct {
	Status models.AnalysisStatus // completed or failed
	Result *models.Result
	Error  error
}

// Dispatch is the bounded in-process queue feeding the worker pool.
type Dispatch struct {
	ch chan string
}

// NewDispatch creates a queue with the given capacity.
func NewDispatch(capacity int) *Dispatch {
	if capacity < 1 {
		capacity = 1
	}
	return &Dispatch{ch: make(chan string, capacity)}
}

// Enqueue admits an analysis id without blocking. A full queue returns
// services.ErrQueueFull so intake can surface a retryable error.
func (d *Dispatch) Enqueue(analysisID string) error {
	select {
	case d.ch <- analysisID:
		return nil
	default:
		return services.ErrQueueFull
	}
}

// Dequeue claims the next analysis id without blocking.
func (d *Dispatch) Dequeue() (string, error) {
	select {
	case id := <-d.ch:
		return id, nil
	default:
		return "", ErrNoAnalysesAvailable
	}
}

// Depth returns the number of queued analyses.
func (d *Dispatch) Depth() int {
	return len(d.ch)
}

// Capacity returns the bounded queue size.
func (d *Dispatch) Capacity() int {
	return cap(d.ch)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy      bool           `json:"is_healthy"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	ActiveAnalyses int            `json:"active_analyses"`
	QueueDepth     int            `json:"queue_depth"`
	QueueCapacity  int            `json:"queue_capacity"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"` // "idle" or "working"
	CurrentAnalysisID string    `json:"current_analysis_id,omitempty"`
	AnalysesProcessed int       `json:"analyses_processed"`
	LastActivity      time.Time `json:"last_activity"`
}
