// Package cleanup runs the background janitor for the state store.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/state"
)

// Service periodically reconciles state-store indexes. Redis TTLs expire the
// per-analysis keys on their own; the active-workflow set has no TTL, so a
// worker crash can leave ids in it forever. The janitor prunes those.
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	config *config.RetentionConfig
	store  *state.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, store *state.Store) *Service {
	if cfg == nil {
		cfg = config.DefaultRetentionConfig()
	}
	if store == nil {
		panic("cleanup.NewService: store must not be nil")
	}
	return &Service{config: cfg, store: store}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started", "interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.pruneActiveSet(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneActiveSet(ctx)
		}
	}
}

func (s *Service) pruneActiveSet(ctx context.Context) {
	count, err := s.store.PruneActive(ctx)
	if err != nil {
		slog.Error("Retention: active-set prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned orphaned active entries", "count", count)
	}
}
