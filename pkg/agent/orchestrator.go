package agent

import (
	"context"
	"sort"
	"time"

	"github.com/dshield-labs/coordengine/pkg/models"
)

// shortInterval is the consecutive-attack gap below which timing counts as
// burst-like.
const shortInterval = 300 * time.Second

// Orchestrator computes routing for an analysis. Pure function of the input:
// no I/O, no failure modes.
type Orchestrator struct{}

// NewOrchestrator creates the routing stage.
func NewOrchestrator() *Orchestrator { return &Orchestrator{} }

// Name implements Stage.
func (o *Orchestrator) Name() string { return StageOrchestrator }

// Execute decides needs_deep_analysis and emits the analysis plan.
func (o *Orchestrator) Execute(_ context.Context, st *models.AnalysisState) error {
	st.NeedsDeepAnalysis = needsDeepAnalysis(st.Sessions)
	st.AnalysisPlan = buildPlan(st.NeedsDeepAnalysis, st.Depth)
	return nil
}

// ApplyDefaults implements Stage. The orchestrator cannot fail, but the
// defaults keep the contract uniform: shallow route, pattern analysis only.
func (o *Orchestrator) ApplyDefaults(st *models.AnalysisState) {
	st.NeedsDeepAnalysis = false
	st.AnalysisPlan = buildPlan(false, st.Depth)
}

// needsDeepAnalysis is the cheap deterministic routing heuristic:
//
//  1. fewer than 3 sessions: no
//  2. a single distinct source: no (one source can't be "coordinated")
//  3. with at least 3 usable timestamps, sorted: if more than half the
//     consecutive intervals are under 300s, the burst pattern warrants
//     deep analysis
//  4. otherwise: no
func needsDeepAnalysis(sessions []models.AttackSession) bool {
	if len(sessions) < 3 {
		return false
	}

	sources := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		sources[sess.SourceIP] = struct{}{}
	}
	if len(sources) == 1 {
		return false
	}

	var times []time.Time
	for _, sess := range sessions {
		if !sess.Timestamp.IsZero() {
			times = append(times, sess.Timestamp)
		}
	}
	if len(times) < 3 {
		return false
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	short := 0
	intervals := len(times) - 1
	for i := 1; i < len(times); i++ {
		if times[i].Sub(times[i-1]) < shortInterval {
			short++
		}
	}
	return float64(short) > 0.5*float64(intervals)
}

func buildPlan(needsDeep bool, depth models.AnalysisDepth) []string {
	plan := []string{PlanPatternAnalysis}
	if needsDeep {
		plan = append(plan, PlanToolCoordination, PlanConfidenceScoring)
	}
	if depth == models.DepthDeep {
		plan = append(plan, PlanEnrichment)
	}
	return plan
}
