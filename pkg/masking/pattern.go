package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPattern is the source form of a masking pattern.
type builtinPattern struct {
	pattern     string
	replacement string
}

// Built-in patterns for credential material commonly replayed against
// honeypots. Order matters: structural patterns (URLs, key blocks) run
// before the generic key=value sweep.
var builtinPatterns = []struct {
	name string
	builtinPattern
}{
	{"private_key_block", builtinPattern{
		pattern:     `(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`,
		replacement: "***MASKED_PRIVATE_KEY***",
	}},
	{"basic_auth_url", builtinPattern{
		pattern:     `(?i)(https?://)[^/\s:@]+:[^/\s:@]+@`,
		replacement: "${1}***:***@",
	}},
	{"authorization_header", builtinPattern{
		pattern:     `(?i)(authorization:\s*(?:basic|bearer)\s+)[A-Za-z0-9+/=._\-]+`,
		replacement: "${1}***MASKED***",
	}},
	{"aws_access_key", builtinPattern{
		pattern:     `\bAKIA[0-9A-Z]{16}\b`,
		replacement: "***MASKED_AWS_KEY***",
	}},
	{"credential_assignment", builtinPattern{
		pattern:     `(?i)\b(api[_-]?key|access[_-]?token|auth[_-]?token|token|secret|password|passwd|pwd)(["']?\s*[:=]\s*["']?)[^\s"'&;]+`,
		replacement: "${1}${2}***MASKED***",
	}},
}

// compileBuiltinPatterns compiles the built-in patterns.
// Invalid patterns are logged and skipped.
func compileBuiltinPatterns() []*CompiledPattern {
	compiled := make([]*CompiledPattern, 0, len(builtinPatterns))
	for _, p := range builtinPatterns {
		re, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", p.name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:        p.name,
			Regex:       re,
			Replacement: p.replacement,
		})
	}
	return compiled
}
