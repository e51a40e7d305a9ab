package guardrail

import (
	"fmt"
	"regexp"

	"github.com/regrada-ai/tracemark/internal/annotate"
	"github.com/regrada-ai/tracemark/internal/model"
	"github.com/regrada-ai/tracemark/internal/trace"
)

// Engine holds a compiled rule set and checks trace documents against it.
type Engine struct {
	rules []compiledRule
	hash  string
}

type compiledRule struct {
	Rule
	paths    []pathPattern
	matchers []matcher
}

// matcher is one compiled way a rule can hit: a quoted phrase, a user
// regex, or one pattern of a detector preset. The label names the hit in
// annotations and messages.
type matcher struct {
	label string
	re    *regexp.Regexp
}

// NewEngine validates and compiles rules. Phrases match case-insensitively;
// compiling them as quoted regexes keeps reported offsets in the original
// text instead of a lowercased copy.
func NewEngine(rules []Rule) (*Engine, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if err := validateRule(rule); err != nil {
			return nil, err
		}

		cr := compiledRule{Rule: rule}
		if rule.Scope != nil {
			for _, raw := range rule.Scope.Paths {
				pattern, err := parsePattern(raw)
				if err != nil {
					return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
				}
				cr.paths = append(cr.paths, pattern)
			}
		}
		if rule.Match != nil {
			for _, phrase := range rule.Match.Phrases {
				cr.matchers = append(cr.matchers, matcher{
					label: phrase,
					re:    regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase)),
				})
			}
			for _, expr := range rule.Match.Regex {
				re, err := regexp.Compile(expr)
				if err != nil {
					return nil, fmt.Errorf("rule %s: invalid regex %q: %v", rule.ID, expr, err)
				}
				cr.matchers = append(cr.matchers, matcher{label: expr, re: re})
			}
			if rule.Match.Detector != "" {
				patterns, err := detectorPatterns(rule.Match.Detector)
				if err != nil {
					return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
				}
				for _, dp := range patterns {
					cr.matchers = append(cr.matchers, matcher{label: dp.name, re: dp.re})
				}
			}
		}
		compiled = append(compiled, cr)
	}
	return &Engine{rules: compiled, hash: RulesHash(rules)}, nil
}

// Hash identifies the compiled rule set.
func (e *Engine) Hash() string {
	return e.hash
}

// Check evaluates every rule against the document's leaves. Each text match
// becomes an annotation at the leaf's path covering the matched range, plus
// a violation carrying the evidence. Check never mutates the document.
func (e *Engine) Check(doc *trace.Document) Findings {
	findings := Findings{
		RulesHash:   e.hash,
		Annotations: annotate.Mapping{},
	}

	leaves := doc.Leaves()
	for _, cr := range e.rules {
		switch {
		case cr.RequireTool != "":
			e.checkRequireTool(cr, leaves, &findings)
		case cr.ForbidTool != "":
			e.checkForbidTool(cr, leaves, &findings)
		default:
			e.checkMatch(cr, leaves, &findings)
		}
	}
	return findings
}

func (e *Engine) checkMatch(cr compiledRule, leaves []trace.Leaf, findings *Findings) {
	for _, leaf := range leaves {
		if !cr.appliesTo(leaf) {
			continue
		}
		for _, m := range cr.matchers {
			for _, loc := range m.re.FindAllStringIndex(leaf.Text, -1) {
				if loc[0] == loc[1] {
					continue
				}
				evidence := leaf.Text[loc[0]:loc[1]]
				path := leaf.Path.String()
				findings.Annotations.Add(path, cr.annotation(m.label).WithRange(loc[0], loc[1]))
				findings.Violations = append(findings.Violations,
					cr.violation(cr.message("matched "+m.label), path, evidence))
			}
		}
	}
}

func (e *Engine) checkForbidTool(cr compiledRule, leaves []trace.Leaf, findings *Findings) {
	for _, leaf := range leaves {
		if leaf.Title != "name" || leaf.Tool != cr.ForbidTool {
			continue
		}
		if !cr.appliesTo(leaf) {
			continue
		}
		path := leaf.Path.String()
		findings.Annotations.Add(path, cr.annotation(cr.ForbidTool).WithRange(0, len(leaf.Text)))
		findings.Violations = append(findings.Violations,
			cr.violation(cr.message(fmt.Sprintf("tool %s is forbidden", cr.ForbidTool)), path, leaf.Text))
	}
}

// checkRequireTool reports a single document-level violation when no tool
// call in scope names the required tool. There is no range to annotate.
func (e *Engine) checkRequireTool(cr compiledRule, leaves []trace.Leaf, findings *Findings) {
	for _, leaf := range leaves {
		if leaf.Title == "name" && leaf.Tool == cr.RequireTool && cr.appliesTo(leaf) {
			return
		}
	}
	findings.Violations = append(findings.Violations,
		cr.violation(cr.message(fmt.Sprintf("required tool %s was never called", cr.RequireTool)), "messages", ""))
}

func (cr compiledRule) appliesTo(leaf trace.Leaf) bool {
	if cr.Scope == nil {
		return true
	}
	if len(cr.Scope.Roles) > 0 && !contains(cr.Scope.Roles, leaf.Role) {
		return false
	}
	if len(cr.Scope.Tools) > 0 && !contains(cr.Scope.Tools, leaf.Tool) {
		return false
	}
	if len(cr.paths) > 0 {
		matched := false
		for _, pattern := range cr.paths {
			if pattern.matches(leaf.Path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (cr compiledRule) annotation(label string) model.Annotation {
	content := cr.Description
	if content == "" {
		content = cr.ID
	}
	return model.Annotation{Content: content}.
		WithExtra("source", "guardrail").
		WithExtra("rule", cr.ID).
		WithExtra("severity", cr.severity()).
		WithExtra("match", label)
}

func (cr compiledRule) violation(message, path, evidence string) Violation {
	return Violation{
		RuleID:   cr.ID,
		Severity: cr.severity(),
		Message:  message,
		Path:     path,
		Evidence: snippet(evidence),
	}
}

func (cr compiledRule) message(fallback string) string {
	if cr.Description != "" {
		return cr.Description
	}
	return fallback
}

func (cr compiledRule) severity() string {
	if cr.Severity == "" {
		return SeverityError
	}
	return cr.Severity
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// snippet caps evidence for reports; annotation offsets still address the
// full range.
func snippet(s string) string {
	const max = 160
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
