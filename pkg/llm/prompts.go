package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshield-labs/coordengine/pkg/masking"
	"github.com/dshield-labs/coordengine/pkg/models"
)

// maxPromptPayload bounds how much of a session payload is quoted in a prompt.
const maxPromptPayload = 500

// payloadScrubber masks replayed credentials before payloads are quoted in
// prompts sent to the inference service.
var payloadScrubber = masking.NewScrubber()

const coordinationAnalysisPrompt = `You are a cybersecurity analyst specializing in attack coordination detection.

Given the following attack session data, analyze whether these represent:
1. Coordinated campaign (multiple attackers working together)
2. Coincidental timing (independent attackers)
3. Single attacker using multiple sources

Evidence to consider:
- Temporal patterns and synchronization
- Behavioral similarities in TTPs (Tactics, Techniques, Procedures)
- Infrastructure relationships (IP/ASN clustering)
- Geographic distribution patterns
- Payload and attack vector similarities

Provide your analysis in the following JSON format:
{
    "coordination_confidence": 0.75,
    "evidence_breakdown": {
        "temporal_correlation": 0.8,
        "behavioral_similarity": 0.7,
        "infrastructure_clustering": 0.6,
        "geographic_proximity": 0.5,
        "payload_similarity": 0.9
    },
    "reasoning": "Detailed explanation of your assessment",
    "key_factors": ["factor1", "factor2", "factor3"],
    "assessment": "coordinated|coincidental|single_attacker"
}

Attack Sessions:
%s

Analysis Context:
%s

Instructions:
%s
`

const temporalAnalysisPrompt = `You are analyzing temporal patterns in cybersecurity attacks.

Examine the timing patterns in these attack sessions to determine if they show:
- Synchronized timing (coordinated)
- Random timing (coincidental)
- Systematic timing (single attacker)

Consider:
- Time intervals between attacks
- Time-of-day patterns
- Day-of-week patterns
- Burst vs. distributed patterns

Provide analysis in JSON format with temporal correlation score (0-1).

Attack Sessions:
%s

Analysis Context:
%s

Instructions:
%s
`

const behavioralAnalysisPrompt = `You are analyzing behavioral patterns in cybersecurity attacks.

Examine the attack techniques, tactics, and procedures (TTPs) to determine:
- Similarity in attack methods
- Consistency in payload patterns
- Common tools or scripts used
- Attack sophistication level

Consider:
- Attack vector similarities
- Payload structure patterns
- User agent consistency
- Target selection patterns

Provide analysis in JSON format with behavioral similarity score (0-1).

Attack Sessions:
%s

Analysis Context:
%s

Instructions:
%s
`

const infrastructureAnalysisPrompt = `You are analyzing infrastructure relationships in cybersecurity attacks.

Examine the source infrastructure to determine:
- IP address clustering patterns
- ASN (Autonomous System) relationships
- Geographic clustering vs. dispersion
- Infrastructure sharing indicators

Consider:
- IP address ranges and subnets
- ASN ownership patterns
- Geographic proximity
- Infrastructure reuse patterns

Provide analysis in JSON format with infrastructure clustering score (0-1).

Attack Sessions:
%s

Analysis Context:
%s

Instructions:
%s
`

const confidenceScoringPrompt = `You are a cybersecurity analyst evaluating coordination confidence.

Based on the following evidence scores, calculate an overall coordination confidence:

Evidence Breakdown:
- Temporal Correlation: %.2f
- Behavioral Similarity: %.2f
- Infrastructure Clustering: %.2f
- Geographic Proximity: %.2f
- Payload Similarity: %.2f

Weighting Factors:
- High temporal correlation with behavioral similarity = strong coordination indicator
- Infrastructure clustering with geographic proximity = moderate coordination indicator
- High payload similarity alone = weak coordination indicator
- Low scores across all categories = likely coincidental

Provide:
- Overall confidence score (0-1)
- Reasoning for the score
- Key factors that influenced the assessment
`

// formatSessions renders sessions for prompt inclusion, truncating long
// payloads.
func formatSessions(sessions []models.AttackSession) string {
	var b strings.Builder
	for i, sess := range sessions {
		// Scrub before truncating so a cut cannot split a secret past the
		// pattern's reach.
		payload := payloadScrubber.Scrub(sess.Payload)
		if len(payload) > maxPromptPayload {
			payload = payload[:maxPromptPayload] + "... [truncated]"
		}
		port := "Unknown"
		if sess.TargetPort > 0 {
			port = fmt.Sprintf("%d", sess.TargetPort)
		}
		protocol := sess.Protocol
		if protocol == "" {
			protocol = "Unknown"
		}
		fmt.Fprintf(&b, "Session %d:\n", i+1)
		fmt.Fprintf(&b, "  Source IP: %s\n", sess.SourceIP)
		fmt.Fprintf(&b, "  Timestamp: %s\n", sess.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
		fmt.Fprintf(&b, "  Target Port: %s\n", port)
		fmt.Fprintf(&b, "  Protocol: %s\n", protocol)
		fmt.Fprintf(&b, "  Payload: %s\n", payload)
		if i < len(sessions)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// buildAnalysisPrompt selects the prompt flavor for an analysis type and
// fills in sessions, context, and instructions.
func buildAnalysisPrompt(sessions []models.AttackSession, analysisType string, context map[string]string) string {
	var template string
	switch analysisType {
	case "temporal":
		template = temporalAnalysisPrompt
	case "behavioral":
		template = behavioralAnalysisPrompt
	case "infrastructure":
		template = infrastructureAnalysisPrompt
	default:
		template = coordinationAnalysisPrompt
	}

	var ctxLines []string
	for k, v := range context {
		ctxLines = append(ctxLines, k+": "+v)
	}
	sort.Strings(ctxLines)

	return fmt.Sprintf(template,
		formatSessions(sessions),
		strings.Join(ctxLines, "\n"),
		"Analyze the attack sessions for coordination patterns.")
}

// buildConfidencePrompt fills the scoring prompt from an evidence vector.
func buildConfidencePrompt(evidence map[string]float64) string {
	return fmt.Sprintf(confidenceScoringPrompt,
		evidence[models.DimTemporal],
		evidence[models.DimBehavioral],
		evidence[models.DimInfrastructure],
		evidence[models.DimGeographic],
		evidence[models.DimPayload])
}
