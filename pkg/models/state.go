package models

import "time"

// Correlation methods recorded per dimension.
const (
	MethodLLM      = "llm"
	MethodFallback = "fallback"
)

// CorrelationResult is one pattern-analysis sub-result (temporal, behavioral,
// or infrastructure).
type CorrelationResult struct {
	Score     float64            `json:"score"` // [0,1]
	Evidence  map[string]float64 `json:"evidence,omitempty"`
	Reasoning string             `json:"reasoning,omitempty"`
	Method    string             `json:"method"` // llm | fallback
}

// AddressData is the per-address output of an enrichment tool. Tools fill
// the fields they know about and leave the rest empty.
type AddressData struct {
	ASN         string   `json:"asn,omitempty"`
	Prefix      string   `json:"prefix,omitempty"`
	Org         string   `json:"org,omitempty"`
	Country     string   `json:"country,omitempty"`
	City        string   `json:"city,omitempty"`
	ThreatScore *float64 `json:"threat_score,omitempty"` // [0,1]
	Reputation  string   `json:"reputation,omitempty"`
}

// ToolOutput is the result of one tool's fan-out over all source addresses.
// A failed tool carries Error and no addresses.
type ToolOutput struct {
	Addresses map[string]AddressData `json:"addresses,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// FinalAssessment is the scored verdict produced by the confidence scorer.
type FinalAssessment struct {
	Confidence float64            `json:"confidence"`
	Evidence   map[string]float64 `json:"evidence"`
	Assessment string             `json:"assessment"`
	Reasoning  string             `json:"reasoning"`
}

// StepRecord marks the completion of one pipeline stage.
type StepRecord struct {
	Step string    `json:"step"`
	At   time.Time `json:"at"`
}

// ErrorRecord captures a stage error without interrupting the pipeline.
type ErrorRecord struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// AnalysisState is the per-analysis mutable state threaded through the
// workflow engine. The engine is the single writer; stages receive it by
// pointer for the duration of their call only.
type AnalysisState struct {
	AnalysisID  string          `json:"analysis_id"`
	Sessions    []AttackSession `json:"attack_sessions"`
	Depth       AnalysisDepth   `json:"analysis_depth"`
	CallbackURL string          `json:"callback_url,omitempty"`
	UserID      string          `json:"user_id,omitempty"`

	// Routing, set by the orchestrator.
	NeedsDeepAnalysis bool     `json:"needs_deep_analysis"`
	AnalysisPlan      []string `json:"analysis_plan,omitempty"`

	// Intermediate results.
	CorrelationResults map[string]CorrelationResult `json:"correlation_results,omitempty"`
	ToolResults        map[string]ToolOutput        `json:"tool_results,omitempty"`
	EnrichmentData     map[string]float64           `json:"enrichment_data,omitempty"`

	// Final outputs.
	CoordinationConfidence float64            `json:"coordination_confidence"`
	EvidenceBreakdown      map[string]float64 `json:"evidence_breakdown,omitempty"`
	FinalAssessment        *FinalAssessment   `json:"final_assessment,omitempty"`
	EnrichmentApplied      bool               `json:"enrichment_applied"`
	ModelUsed              string             `json:"model_used,omitempty"`
	KeyFactors             []string           `json:"key_factors,omitempty"`

	// Metadata.
	Status          AnalysisStatus `json:"status"`
	StartTime       *time.Time     `json:"workflow_start_time,omitempty"`
	EndTime         *time.Time     `json:"workflow_end_time,omitempty"`
	ProcessingSteps []StepRecord   `json:"processing_steps,omitempty"`
	Errors          []ErrorRecord  `json:"errors,omitempty"`
}

// NewAnalysisState creates the initial queued state for an admitted request.
func NewAnalysisState(analysisID string, req AnalysisRequest) *AnalysisState {
	return &AnalysisState{
		AnalysisID:         analysisID,
		Sessions:           req.Sessions,
		Depth:              req.Depth,
		CallbackURL:        req.CallbackURL,
		UserID:             req.UserID,
		Status:             StatusQueued,
		CorrelationResults: make(map[string]CorrelationResult),
		ToolResults:        make(map[string]ToolOutput),
		EnrichmentData:     make(map[string]float64),
	}
}

// AddStep appends a completed stage marker. Append-only by contract.
func (s *AnalysisState) AddStep(step string) {
	s.ProcessingSteps = append(s.ProcessingSteps, StepRecord{Step: step, At: time.Now().UTC()})
}

// AddError records a stage error without stopping the pipeline.
func (s *AnalysisState) AddError(message string) {
	s.Errors = append(s.Errors, ErrorRecord{Message: message, At: time.Now().UTC()})
}

// HasStep reports whether a stage already completed (used by checkpoint
// recovery to skip finished stages).
func (s *AnalysisState) HasStep(step string) bool {
	for _, rec := range s.ProcessingSteps {
		if rec.Step == step {
			return true
		}
	}
	return false
}

// SourceAddresses returns the distinct source addresses in input order.
func (s *AnalysisState) SourceAddresses() []string {
	seen := make(map[string]struct{}, len(s.Sessions))
	addrs := make([]string, 0, len(s.Sessions))
	for _, sess := range s.Sessions {
		if _, ok := seen[sess.SourceIP]; ok {
			continue
		}
		seen[sess.SourceIP] = struct{}{}
		addrs = append(addrs, sess.SourceIP)
	}
	return addrs
}

// ProcessingTime returns end-start, or zero if the workflow has not finished.
func (s *AnalysisState) ProcessingTime() time.Duration {
	if s.StartTime == nil || s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(*s.StartTime)
}

// Result projects the caller-visible Result record from the state.
func (s *AnalysisState) Result() *Result {
	res := &Result{
		AnalysisID:        s.AnalysisID,
		Status:            s.Status,
		EnrichmentApplied: s.EnrichmentApplied,
		ModelUsed:         s.ModelUsed,
		KeyFactors:        s.KeyFactors,
		CompletedAt:       s.EndTime,
	}
	if s.Status == StatusCompleted || s.Status == StatusFailed {
		confidence := s.CoordinationConfidence
		res.Confidence = &confidence
		res.Evidence = s.EvidenceBreakdown
	}
	if s.FinalAssessment != nil {
		res.Reasoning = s.FinalAssessment.Reasoning
	}
	if s.Status == StatusFailed && len(s.Errors) > 0 {
		res.Error = s.Errors[len(s.Errors)-1].Message
	}
	return res
}
