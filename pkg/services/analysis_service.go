package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/state"
)

// Enqueuer admits an analysis id to the background dispatch queue.
// Implemented by the queue package; narrowed here so the service does not
// depend on worker internals.
type Enqueuer interface {
	Enqueue(analysisID string) error // returns ErrQueueFull when at capacity
}

// AnalysisService handles submission, bulk submission, and result retrieval.
type AnalysisService struct {
	store       *state.Store
	resultCache *cache.Cache
	queue       Enqueuer
	cfg         *config.AnalysisConfig
}

// NewAnalysisService creates the intake service.
func NewAnalysisService(store *state.Store, resultCache *cache.Cache, queue Enqueuer, cfg *config.AnalysisConfig) *AnalysisService {
	if store == nil {
		panic("NewAnalysisService: store must not be nil")
	}
	if resultCache == nil {
		panic("NewAnalysisService: resultCache must not be nil")
	}
	if queue == nil {
		panic("NewAnalysisService: queue must not be nil")
	}
	if cfg == nil {
		cfg = config.DefaultAnalysisConfig()
	}
	return &AnalysisService{store: store, resultCache: resultCache, queue: queue, cfg: cfg}
}

// Submit validates a request, mints an analysis id, persists the initial
// queued state, and enqueues the id for background processing. Non-blocking:
// the pipeline may start later.
func (s *AnalysisService) Submit(ctx context.Context, req models.AnalysisRequest) (*models.Result, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	analysisID := uuid.New().String()
	st := models.NewAnalysisState(analysisID, req)

	if err := s.store.SaveState(ctx, st); err != nil {
		return nil, fmt.Errorf("persisting initial state: %w", err)
	}

	if err := s.queue.Enqueue(analysisID); err != nil {
		// Roll the orphaned state back so Get doesn't report a queued
		// analysis that will never run.
		if cleanupErr := s.store.Cleanup(ctx, analysisID); cleanupErr != nil {
			slog.Warn("Failed to clean up state after enqueue failure",
				"analysis_id", analysisID, "error", cleanupErr)
		}
		return nil, err
	}

	slog.Info("Analysis submitted",
		"analysis_id", analysisID,
		"user_id", req.UserID,
		"session_count", len(req.Sessions),
		"depth", req.Depth)

	return st.Result(), nil
}

// BulkSubmit admits up to MaxBulkBatches independent batches sharing a depth
// and callback URL. All batches are validated before any is admitted.
func (s *AnalysisService) BulkSubmit(ctx context.Context, batches [][]models.AttackSession, depth models.AnalysisDepth, callbackURL, userID string) ([]string, error) {
	if len(batches) == 0 {
		return nil, NewValidationError("session_batches", "at least one batch is required")
	}
	if len(batches) > s.cfg.MaxBulkBatches {
		return nil, NewValidationError("session_batches",
			fmt.Sprintf("at most %d batches per call, got %d", s.cfg.MaxBulkBatches, len(batches)))
	}

	requests := make([]models.AnalysisRequest, len(batches))
	for i, sessions := range batches {
		requests[i] = models.AnalysisRequest{
			Sessions:    sessions,
			Depth:       depth,
			CallbackURL: callbackURL,
			UserID:      userID,
		}
		if err := s.validateRequest(requests[i]); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}

	ids := make([]string, 0, len(requests))
	for i, req := range requests {
		result, err := s.Submit(ctx, req)
		if err != nil {
			return ids, fmt.Errorf("batch %d: %w", i, err)
		}
		ids = append(ids, result.AnalysisID)
	}
	return ids, nil
}

// Get returns the terminal result from the analysis cache, or the current
// status for an in-flight analysis. Idempotent.
func (s *AnalysisService) Get(ctx context.Context, analysisID string) (*models.Result, error) {
	var cached models.Result
	if hit, err := s.resultCache.Get(ctx, cache.NamespaceAnalysis, analysisID, &cached); err == nil && hit {
		return &cached, nil
	} else if err != nil {
		slog.Warn("Result cache degraded, falling back to state store",
			"analysis_id", analysisID, "error", err)
	}

	st, err := s.store.LoadState(ctx, analysisID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	return st.Result(), nil
}

// validateRequest enforces the structural and semantic submission contract.
func (s *AnalysisService) validateRequest(req models.AnalysisRequest) error {
	if len(req.Sessions) < 2 {
		return NewValidationError("attack_sessions", "at least 2 sessions are required")
	}
	if len(req.Sessions) > s.cfg.MaxSessions {
		return NewValidationError("attack_sessions",
			fmt.Sprintf("at most %d sessions per request, got %d", s.cfg.MaxSessions, len(req.Sessions)))
	}
	if !req.Depth.Valid() {
		return NewValidationError("analysis_depth",
			fmt.Sprintf("must be one of minimal, standard, deep; got %q", req.Depth))
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return NewValidationError("callback_url", "must be a valid http or https URL")
		}
	}

	now := time.Now()
	for i, sess := range req.Sessions {
		if err := validateSession(sess, now, s.cfg.MaxPayloadBytes); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return NewValidationError(fmt.Sprintf("attack_sessions[%d].%s", i, ve.Field), ve.Message)
			}
			return err
		}
	}
	return nil
}

func validateSession(sess models.AttackSession, now time.Time, maxPayload int) error {
	if net.ParseIP(sess.SourceIP) == nil {
		return NewValidationError("source_ip", fmt.Sprintf("%q is not a valid IPv4/IPv6 address", sess.SourceIP))
	}
	if sess.Timestamp.IsZero() {
		return NewValidationError("timestamp", "is required")
	}
	if sess.Timestamp.After(now) {
		return NewValidationError("timestamp", "must not be in the future")
	}
	if sess.Payload == "" {
		return NewValidationError("payload", "must not be empty")
	}
	if len(sess.Payload) > maxPayload {
		return NewValidationError("payload", fmt.Sprintf("exceeds maximum size of %d bytes", maxPayload))
	}
	if sess.TargetPort < 0 || sess.TargetPort > 65535 {
		return NewValidationError("target_port", "must be in 1..65535")
	}
	if sess.Protocol != "" {
		if len(sess.Protocol) < 2 || len(sess.Protocol) > 10 {
			return NewValidationError("protocol", "must be 2 to 10 characters")
		}
		if sess.Protocol != strings.ToUpper(sess.Protocol) {
			return NewValidationError("protocol", "must be uppercase")
		}
	}
	return nil
}
