// Package models defines the shared domain types: attack sessions, analysis
// requests, and result records exchanged between the API, services, and the
// workflow engine.
package models

import "time"

// AttackSession is a single observed hostile interaction with a honeypot,
// summarized by source, time, and payload. Immutable once accepted.
type AttackSession struct {
	SourceIP   string    `json:"source_ip"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    string    `json:"payload"`
	TargetPort int       `json:"target_port,omitempty"` // 1..65535, 0 = unset
	Protocol   string    `json:"protocol,omitempty"`    // uppercase, 2..10 chars
}

// AnalysisDepth selects how much of the pipeline runs.
type AnalysisDepth string

// Analysis depth values.
const (
	DepthMinimal  AnalysisDepth = "minimal"
	DepthStandard AnalysisDepth = "standard"
	DepthDeep     AnalysisDepth = "deep"
)

// Valid reports whether d is a recognized depth.
func (d AnalysisDepth) Valid() bool {
	switch d {
	case DepthMinimal, DepthStandard, DepthDeep:
		return true
	}
	return false
}

// AnalysisRequest is one batch of sessions to analyze. Immutable.
type AnalysisRequest struct {
	Sessions    []AttackSession `json:"attack_sessions"`
	Depth       AnalysisDepth   `json:"analysis_depth"`
	CallbackURL string          `json:"callback_url,omitempty"`
	UserID      string          `json:"-"` // from auth context, not the body
}
