package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dshield-labs/coordengine/pkg/models"
)

func TestBuildAnalysisPrompt(t *testing.T) {
	sessions := []models.AttackSession{
		{
			SourceIP:   "203.0.113.10",
			Timestamp:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
			Payload:    "POST /login user=root&password=toor123",
			TargetPort: 443,
			Protocol:   "TCP",
		},
	}

	t.Run("quotes session fields", func(t *testing.T) {
		prompt := buildAnalysisPrompt(sessions, "temporal", map[string]string{"depth": "standard"})
		assert.Contains(t, prompt, "Source IP: 203.0.113.10")
		assert.Contains(t, prompt, "Target Port: 443")
		assert.Contains(t, prompt, "depth: standard")
		assert.Contains(t, prompt, "temporal patterns")
	})

	t.Run("scrubs replayed credentials", func(t *testing.T) {
		prompt := buildAnalysisPrompt(sessions, "behavioral", nil)
		assert.Contains(t, prompt, "password=***MASKED***")
		assert.NotContains(t, prompt, "toor123")
	})

	t.Run("truncates oversized payloads", func(t *testing.T) {
		big := sessions
		big[0].Payload = string(make([]byte, maxPromptPayload+100))
		prompt := buildAnalysisPrompt(big, "infrastructure", nil)
		assert.Contains(t, prompt, "... [truncated]")
	})
}
