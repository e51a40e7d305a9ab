package capture

import (
	"regexp"
	"strings"

	"github.com/regrada-ai/tracemark/internal/config"
	"github.com/regrada-ai/tracemark/internal/trace"
)

// Redactor scrubs sensitive values from a document before it is stored.
// Apply reports the names of the patterns that matched.
type Redactor interface {
	Apply(doc *trace.Document) []string
}

type RegexRedactor struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replaceWith string
}

// NewRedactor compiles the configured redaction patterns, preset packs
// first so explicit patterns run after them. A disabled config yields a nil
// redactor.
func NewRedactor(cfg config.RedactConfig) (*RegexRedactor, error) {
	if cfg.Enabled != nil && !*cfg.Enabled {
		return nil, nil
	}

	var patterns []compiledPattern
	for _, pattern := range append(PresetPatterns(cfg.Presets), cfg.Patterns...) {
		re, err := regexp.Compile(pattern.Regex)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, compiledPattern{
			name:        pattern.Name,
			regex:       re,
			replaceWith: pattern.ReplaceWith,
		})
	}
	return &RegexRedactor{patterns: patterns}, nil
}

// Apply rewrites message content and tool-call arguments in place.
func (r *RegexRedactor) Apply(doc *trace.Document) []string {
	if r == nil || doc == nil {
		return nil
	}

	var applied []string
	for i := range doc.Events {
		ev := &doc.Events[i]

		content, matched := applyPatterns(ev.Content, r.patterns)
		if len(matched) > 0 {
			ev.Content = content
			applied = append(applied, matched...)
		}
		for j := range ev.ToolCalls {
			args, matched := applyPatterns(ev.ToolCalls[j].Function.Arguments, r.patterns)
			if len(matched) > 0 {
				ev.ToolCalls[j].Function.Arguments = args
				applied = append(applied, matched...)
			}
		}
		if ev.Function != nil {
			args, matched := applyPatterns(ev.Function.Arguments, r.patterns)
			if len(matched) > 0 {
				ev.Function.Arguments = args
				applied = append(applied, matched...)
			}
		}
	}
	return unique(applied)
}

func applyPatterns(input string, patterns []compiledPattern) (string, []string) {
	if input == "" {
		return input, nil
	}
	var matched []string
	output := input
	for _, pattern := range patterns {
		if pattern.regex.MatchString(output) {
			output = pattern.regex.ReplaceAllString(output, pattern.replaceWith)
			matched = append(matched, pattern.name)
		}
	}
	return output, matched
}

func unique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// PresetPatterns expands the named preset packs into their patterns.
// Unknown names are skipped so configs stay portable across versions.
func PresetPatterns(presets []string) []config.RedactPattern {
	var patterns []config.RedactPattern
	for _, preset := range presets {
		switch strings.ToLower(preset) {
		case "pii_basic":
			patterns = append(patterns,
				config.RedactPattern{Name: "email", Regex: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, ReplaceWith: "[REDACTED_EMAIL]"},
				config.RedactPattern{Name: "phone", Regex: `\+?\d[\d\s().-]{7,}\d`, ReplaceWith: "[REDACTED_PHONE]"},
			)
		case "pii_strict":
			patterns = append(patterns,
				config.RedactPattern{Name: "email", Regex: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, ReplaceWith: "[REDACTED_EMAIL]"},
				config.RedactPattern{Name: "phone", Regex: `\+?\d[\d\s().-]{7,}\d`, ReplaceWith: "[REDACTED_PHONE]"},
				config.RedactPattern{Name: "ssn", Regex: `\b\d{3}-\d{2}-\d{4}\b`, ReplaceWith: "[REDACTED_SSN]"},
			)
		case "secrets":
			patterns = append(patterns,
				config.RedactPattern{Name: "api_key", Regex: `(?i)\b(api[-_ ]?key|secret|token)\b[^\n\r]*`, ReplaceWith: "[REDACTED_SECRET]"},
			)
		}
	}
	return patterns
}
