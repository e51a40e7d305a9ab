// Package guardrail evaluates rule files against trace documents and turns
// every match into a path-addressed annotation with the matched character
// range, plus a violation for reports and exit codes.
package guardrail

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/regrada-ai/tracemark/internal/annotate"
	"github.com/regrada-ai/tracemark/internal/util"
)

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Rule is one guardrail check. Exactly one of Match, ForbidTool or
// RequireTool must be set.
type Rule struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Severity    string `yaml:"severity,omitempty" json:"severity,omitempty"`
	Scope       *Scope `yaml:"scope,omitempty" json:"scope,omitempty"`
	Match       *Match `yaml:"match,omitempty" json:"match,omitempty"`
	ForbidTool  string `yaml:"forbid_tool,omitempty" json:"forbid_tool,omitempty"`
	RequireTool string `yaml:"require_tool,omitempty" json:"require_tool,omitempty"`
}

// Scope restricts where a rule applies. Empty fields match everything.
// Paths may use [*] as an index wildcard and match as segment-wise prefixes,
// so "messages[*].content" covers every message body.
type Scope struct {
	Roles []string `yaml:"roles,omitempty" json:"roles,omitempty"`
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Tools []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// Match describes what to look for in a leaf's text.
type Match struct {
	Phrases  []string `yaml:"phrases,omitempty" json:"phrases,omitempty"`
	Regex    []string `yaml:"regex,omitempty" json:"regex,omitempty"`
	Detector string   `yaml:"detector,omitempty" json:"detector,omitempty"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads and validates rule files. Rule IDs must be unique across
// all files.
func LoadRules(paths []string) ([]Rule, error) {
	var rules []Rule
	seen := make(map[string]string)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var rf ruleFile
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&rf); err != nil {
			return nil, fmt.Errorf("parse rules %s: %w", path, err)
		}

		for _, rule := range rf.Rules {
			if err := validateRule(rule); err != nil {
				return nil, fmt.Errorf("validate rules %s: %w", path, err)
			}
			if prev, ok := seen[rule.ID]; ok {
				return nil, fmt.Errorf("validate rules %s: duplicate rule id %q (also in %s)", path, rule.ID, prev)
			}
			seen[rule.ID] = path
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func validateRule(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	switch r.Severity {
	case "", SeverityInfo, SeverityWarning, SeverityError:
	default:
		return fmt.Errorf("rule %s: severity must be info, warning, or error", r.ID)
	}

	kinds := 0
	if r.Match != nil {
		kinds++
	}
	if r.ForbidTool != "" {
		kinds++
	}
	if r.RequireTool != "" {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("rule %s: exactly one of match, forbid_tool, or require_tool is required", r.ID)
	}

	if r.Match != nil {
		if len(r.Match.Phrases) == 0 && len(r.Match.Regex) == 0 && r.Match.Detector == "" {
			return fmt.Errorf("rule %s: match needs phrases, regex, or a detector", r.ID)
		}
		for _, expr := range r.Match.Regex {
			if _, err := regexp.Compile(expr); err != nil {
				return fmt.Errorf("rule %s: invalid regex %q: %v", r.ID, expr, err)
			}
		}
		if r.Match.Detector != "" {
			if _, err := detectorPatterns(r.Match.Detector); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
		}
	}

	if r.Scope != nil {
		for _, p := range r.Scope.Paths {
			if _, err := parsePattern(p); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

// RulesHash fingerprints a rule set, so findings snapshots can tell when a
// comparison crosses a rules change.
func RulesHash(rules []Rule) string {
	data, _ := util.CanonicalJSON(rules)
	return util.ShortHash(string(data))
}

// pathPattern is a scope path with optional [*] index wildcards, matched as
// a segment-wise prefix.
type pathPattern []patternSegment

type patternSegment struct {
	seg      annotate.Segment
	wildcard bool
}

func parsePattern(s string) (pathPattern, error) {
	if strings.Contains(s, "[*]") {
		// Substitute a parseable index, then mark those segments as
		// wildcards afterwards.
		p, err := annotate.ParsePath(strings.ReplaceAll(s, "[*]", "[0]"))
		if err != nil {
			return nil, fmt.Errorf("scope path %q: %w", s, err)
		}
		return markWildcards(s, p)
	}

	p, err := annotate.ParsePath(s)
	if err != nil {
		return nil, fmt.Errorf("scope path %q: %w", s, err)
	}
	out := make(pathPattern, len(p))
	for i, seg := range p {
		out[i] = patternSegment{seg: seg}
	}
	return out, nil
}

// markWildcards re-walks the original pattern text to find which index
// segments were written as [*].
func markWildcards(original string, p annotate.Path) (pathPattern, error) {
	out := make(pathPattern, len(p))
	rest := original
	for i, seg := range p {
		out[i] = patternSegment{seg: seg}
		if seg.Kind != annotate.IndexSegment {
			continue
		}
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			return nil, fmt.Errorf("scope path %q: unbalanced '['", original)
		}
		closing := strings.IndexByte(rest[open:], ']')
		if closing < 0 {
			return nil, fmt.Errorf("scope path %q: unbalanced '['", original)
		}
		if rest[open+1:open+closing] == "*" {
			out[i].wildcard = true
		}
		rest = rest[open+closing+1:]
	}
	return out, nil
}

func (p pathPattern) matches(path annotate.Path) bool {
	if len(p) > len(path) {
		return false
	}
	for i, ps := range p {
		seg := path[i]
		if ps.wildcard {
			if seg.Kind != annotate.IndexSegment {
				return false
			}
			continue
		}
		if ps.seg != seg {
			return false
		}
	}
	return true
}

func (p pathPattern) String() string {
	var b strings.Builder
	for i, ps := range p {
		if ps.seg.Kind == annotate.IndexSegment {
			if ps.wildcard {
				b.WriteString("[*]")
			} else {
				b.WriteString("[" + strconv.Itoa(ps.seg.Index) + "]")
			}
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(ps.seg.Field)
	}
	return b.String()
}
