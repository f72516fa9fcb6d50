package config

import "time"

// QueueConfig contains dispatch queue and worker pool configuration.
// These values control how analyses are queued, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines draining the queue.
	WorkerCount int

	// Capacity is the bounded size of the dispatch queue. A full queue
	// rejects new submissions with a retryable error.
	Capacity int

	// PollInterval is the base interval workers wait when the queue is empty.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// AnalysisTimeout is the maximum time a single analysis can be processed.
	AnalysisTimeout time.Duration

	// GracefulShutdownTimeout is the max time to wait for active analyses
	// to complete during shutdown. Should match AnalysisTimeout.
	GracefulShutdownTimeout time.Duration
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		Capacity:                100,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		AnalysisTimeout:         5 * time.Minute,
		GracefulShutdownTimeout: 5 * time.Minute,
	}
}

func applyQueueEnv(c *QueueConfig) {
	c.WorkerCount = getEnvInt("QUEUE_WORKER_COUNT", c.WorkerCount)
	c.Capacity = getEnvInt("QUEUE_CAPACITY", c.Capacity)
	c.AnalysisTimeout = getEnvDuration("ANALYSIS_TIMEOUT", c.AnalysisTimeout)
	c.GracefulShutdownTimeout = getEnvDuration("GRACEFUL_SHUTDOWN_TIMEOUT", c.GracefulShutdownTimeout)
}
