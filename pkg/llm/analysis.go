package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshield-labs/coordengine/pkg/models"
)

// CoordinationAnalysis is the structured result of one reasoning call.
// ParsingFallback marks results synthesized from keyword cues when the model
// response did not contain valid JSON.
type CoordinationAnalysis struct {
	Confidence      float64            `json:"coordination_confidence"`
	Evidence        map[string]float64 `json:"evidence_breakdown"`
	Reasoning       string             `json:"reasoning"`
	KeyFactors      []string           `json:"key_factors,omitempty"`
	Model           string             `json:"model"`
	ParsingFallback bool               `json:"parsing_fallback,omitempty"`
}

// structuredReply mirrors the JSON schema requested in the prompts.
type structuredReply struct {
	Confidence float64            `json:"coordination_confidence"`
	Evidence   map[string]float64 `json:"evidence_breakdown"`
	Reasoning  string             `json:"reasoning"`
	KeyFactors []string           `json:"key_factors"`
}

// Evidence weights for the deterministic confidence estimate. Unrecognized
// dimensions get defaultWeight.
var evidenceWeights = map[string]float64{
	models.DimTemporal:       0.25,
	models.DimBehavioral:     0.25,
	models.DimInfrastructure: 0.20,
	models.DimGeographic:     0.15,
	models.DimPayload:        0.15,
}

const defaultWeight = 0.10

// AnalyzeCoordination runs one reasoning pass over the sessions. analysisType
// selects the prompt flavor (temporal, behavioral, infrastructure, or
// comprehensive). The model response is parsed as JSON when possible;
// otherwise a keyword-derived result is synthesized and tagged as a fallback.
// Errors are returned only for transport failures; parse failures degrade.
func (c *Client) AnalyzeCoordination(ctx context.Context, sessions []models.AttackSession, analysisType string, extra map[string]string) (*CoordinationAnalysis, error) {
	prompt := buildAnalysisPrompt(sessions, analysisType, extra)

	resp, err := c.Generate(ctx, GenerateRequest{
		Prompt:      prompt,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("coordination analysis (%s): %w", analysisType, err)
	}

	if analysis, ok := parseStructured(resp.Text); ok {
		analysis.Model = resp.Model
		return analysis, nil
	}
	return keywordFallback(resp.Text, resp.Model), nil
}

// ScoreConfidence asks the model for an overall confidence given the evidence
// vector and clamps the parsed score to [0,1]. Any failure (transport or
// parse) falls back to the deterministic weighted-mean estimate.
func (c *Client) ScoreConfidence(ctx context.Context, evidence map[string]float64) float64 {
	resp, err := c.Generate(ctx, GenerateRequest{
		Prompt:      buildConfidencePrompt(evidence),
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
	})
	if err != nil {
		return EstimateConfidence(evidence)
	}

	if score, ok := parseConfidenceLine(resp.Text); ok {
		return clamp01(score)
	}
	return EstimateConfidence(evidence)
}

// EstimateConfidence is the deterministic weighted mean over the evidence
// vector. Zero total weight yields the neutral 0.5.
func EstimateConfidence(evidence map[string]float64) float64 {
	var weighted, total float64
	for dim, score := range evidence {
		w, ok := evidenceWeights[dim]
		if !ok {
			w = defaultWeight
		}
		weighted += clamp01(score) * w
		total += w
	}
	if total == 0 {
		return 0.5
	}
	return weighted / total
}

// parseStructured extracts the JSON object between the first '{' and last '}'
// and validates it against the requested schema.
func parseStructured(text string) (*CoordinationAnalysis, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var reply structuredReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, false
	}
	if reply.Evidence == nil {
		return nil, false
	}

	evidence := make(map[string]float64, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		evidence[dim] = clamp01(reply.Evidence[dim])
	}

	factors := reply.KeyFactors
	if len(factors) > 5 {
		factors = factors[:5]
	}

	return &CoordinationAnalysis{
		Confidence: clamp01(reply.Confidence),
		Evidence:   evidence,
		Reasoning:  reply.Reasoning,
		KeyFactors: factors,
	}, true
}

// keywordFallback derives a coarse confidence from textual cues when the
// model response is unstructured.
func keywordFallback(text, model string) *CoordinationAnalysis {
	lower := strings.ToLower(text)

	confidence := 0.5
	switch {
	case strings.Contains(lower, "high confidence") || strings.Contains(lower, "strong coordination"):
		confidence = 0.8
	case strings.Contains(lower, "moderate confidence") || strings.Contains(lower, "likely coordinated"):
		confidence = 0.6
	case strings.Contains(lower, "low confidence") || strings.Contains(lower, "possibly coincidental"):
		confidence = 0.3
	case strings.Contains(lower, "no coordination") || strings.Contains(lower, "coincidental"):
		confidence = 0.1
	}

	reasoning := text
	if len(reasoning) > 500 {
		reasoning = reasoning[:500]
	}

	return &CoordinationAnalysis{
		Confidence: confidence,
		Evidence: map[string]float64{
			models.DimTemporal:       confidence * 0.8,
			models.DimBehavioral:     confidence * 0.7,
			models.DimInfrastructure: confidence * 0.6,
			models.DimGeographic:     confidence * 0.5,
			models.DimPayload:        confidence * 0.9,
		},
		Reasoning:       reasoning,
		Model:           model,
		ParsingFallback: true,
	}
}

// parseConfidenceLine finds a line containing "confidence" and a colon and
// parses the first float after the colon.
func parseConfidenceLine(text string) (float64, bool) {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "confidence") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		for _, field := range strings.Fields(line[idx+1:]) {
			field = strings.Trim(field, "*,()[]")
			if f, err := strconv.ParseFloat(field, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
