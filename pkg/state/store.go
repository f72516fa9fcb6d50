// Package state persists per-analysis workflow state in Redis: the live
// state object, stage-boundary checkpoints, progress records, and error
// states with extended retention.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/database"
	"github.com/dshield-labs/coordengine/pkg/models"
)

// ErrNotFound is returned when no state exists for an analysis id.
var ErrNotFound = errors.New("workflow state not found")

// Key prefixes under the workflow namespace.
const (
	keyState      = "workflow:state:"
	keyCheckpoint = "workflow:checkpoint:"
	keyProgress   = "workflow:progress:"
	keyError      = "workflow:error:"
	keyActiveSet  = "workflow:active"
)

// Store reads and writes workflow state. Each logical write is a single SET,
// so readers always observe a complete serialized value.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a state store over the shared Redis client.
func NewStore(client *database.Client, cfg *config.CacheConfig) *Store {
	if client == nil {
		panic("state.NewStore: client must not be nil")
	}
	if cfg == nil {
		cfg = config.DefaultCacheConfig()
	}
	return &Store{rdb: client.Redis(), ttl: cfg.WorkflowTTL}
}

// SaveState publishes the current state and tracks the analysis as active
// while it is non-terminal.
func (s *Store) SaveState(ctx context.Context, st *models.AnalysisState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling state %s: %w", st.AnalysisID, err)
	}
	if err := s.rdb.Set(ctx, keyState+st.AnalysisID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving state %s: %w", st.AnalysisID, err)
	}

	switch st.Status {
	case models.StatusCompleted, models.StatusFailed:
		s.rdb.SRem(ctx, keyActiveSet, st.AnalysisID)
	default:
		s.rdb.SAdd(ctx, keyActiveSet, st.AnalysisID)
	}
	return nil
}

// LoadState returns the live state, or ErrNotFound.
func (s *Store) LoadState(ctx context.Context, analysisID string) (*models.AnalysisState, error) {
	return s.load(ctx, keyState+analysisID)
}

// SaveCheckpoint replaces the previous checkpoint for this analysis.
func (s *Store) SaveCheckpoint(ctx context.Context, st *models.AnalysisState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint %s: %w", st.AnalysisID, err)
	}
	if err := s.rdb.Set(ctx, keyCheckpoint+st.AnalysisID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", st.AnalysisID, err)
	}
	return nil
}

// LoadCheckpoint returns the latest checkpoint, or ErrNotFound.
func (s *Store) LoadCheckpoint(ctx context.Context, analysisID string) (*models.AnalysisState, error) {
	return s.load(ctx, keyCheckpoint+analysisID)
}

// Recover returns the state to resume from. The checkpoint is preferred over
// the live state; with neither present the analysis is lost.
func (s *Store) Recover(ctx context.Context, analysisID string) (*models.AnalysisState, error) {
	st, err := s.LoadCheckpoint(ctx, analysisID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.LoadState(ctx, analysisID)
}

// SaveProgress records the current milestone for a running analysis.
func (s *Store) SaveProgress(ctx context.Context, p *models.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling progress %s: %w", p.AnalysisID, err)
	}
	if err := s.rdb.Set(ctx, keyProgress+p.AnalysisID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving progress %s: %w", p.AnalysisID, err)
	}
	return nil
}

// LoadProgress returns the latest progress record, or ErrNotFound.
func (s *Store) LoadProgress(ctx context.Context, analysisID string) (*models.Progress, error) {
	data, err := s.rdb.Get(ctx, keyProgress+analysisID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading progress %s: %w", analysisID, err)
	}
	var p models.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling progress %s: %w", analysisID, err)
	}
	return &p, nil
}

// SaveErrorState persists a failed analysis with doubled retention so the
// failure remains inspectable after the regular state expires.
func (s *Store) SaveErrorState(ctx context.Context, st *models.AnalysisState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling error state %s: %w", st.AnalysisID, err)
	}
	if err := s.rdb.Set(ctx, keyError+st.AnalysisID, data, 2*s.ttl).Err(); err != nil {
		return fmt.Errorf("saving error state %s: %w", st.AnalysisID, err)
	}
	return nil
}

// Cleanup removes all keys for an analysis and drops it from the active set.
func (s *Store) Cleanup(ctx context.Context, analysisID string) error {
	keys := []string{
		keyState + analysisID,
		keyCheckpoint + analysisID,
		keyProgress + analysisID,
		keyError + analysisID,
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cleaning up %s: %w", analysisID, err)
	}
	return s.rdb.SRem(ctx, keyActiveSet, analysisID).Err()
}

// ActiveWorkflows lists analysis ids currently tracked as in flight.
func (s *Store) ActiveWorkflows(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, keyActiveSet).Result()
	if err != nil {
		return nil, fmt.Errorf("listing active workflows: %w", err)
	}
	return ids, nil
}

// PruneActive drops active-set members whose state and checkpoint keys have
// both expired. The set itself has no TTL, so entries left behind by a
// crashed worker would otherwise accumulate forever. Returns the number of
// entries removed.
func (s *Store) PruneActive(ctx context.Context) (int, error) {
	ids, err := s.ActiveWorkflows(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, keyState+id, keyCheckpoint+id).Result()
		if err != nil {
			return pruned, fmt.Errorf("checking keys for %s: %w", id, err)
		}
		if n > 0 {
			continue
		}
		if err := s.rdb.SRem(ctx, keyActiveSet, id).Err(); err != nil {
			return pruned, fmt.Errorf("pruning %s from active set: %w", id, err)
		}
		pruned++
	}
	return pruned, nil
}

// Health verifies backend connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) load(ctx context.Context, key string) (*models.AnalysisState, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	var st models.AnalysisState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return &st, nil
}
