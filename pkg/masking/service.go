// Package masking scrubs credential material from attack payloads before
// they leave the engine. Honeypot payloads routinely contain replayed
// passwords, tokens, and keys; none of them belong in an LLM prompt or a
// callback body.
package masking

// Scrubber applies the built-in masking patterns to payload text.
// Created once at startup; thread-safe and stateless aside from the
// compiled patterns.
type Scrubber struct {
	patterns []*CompiledPattern
}

// NewScrubber creates a scrubber with all built-in patterns compiled.
func NewScrubber() *Scrubber {
	return &Scrubber{patterns: compileBuiltinPatterns()}
}

// Scrub masks credential material in data. Content that matches no pattern
// is returned unchanged.
func (s *Scrubber) Scrub(data string) string {
	if data == "" {
		return data
	}
	masked := data
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
