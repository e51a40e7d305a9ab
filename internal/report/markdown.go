package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/regrada-ai/tracemark/internal/guardrail"
)

func WriteMarkdown(summary RunSummary, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("# Tracemark Report\n\n")
	fmt.Fprintf(&b, "Total: %d | Passed: %d | Warned: %d | Failed: %d\n\n", summary.Total, summary.Passed, summary.Warned, summary.Failed)

	b.WriteString("## Violations\n")
	violations := collectViolations(summary)
	if len(violations) == 0 {
		b.WriteString("- None\n")
	} else {
		for _, v := range violations {
			fmt.Fprintf(&b, "- [%s] %s: %s (%s @ %s)\n", v.Severity, v.RuleID, v.Message, v.TraceID, v.Path)
		}
	}

	if changed := changedTraces(summary); len(changed) > 0 {
		b.WriteString("\n## Changes\n")
		for _, t := range changed {
			fmt.Fprintf(&b, "- %s: %d new, %d resolved, %d unchanged\n", t.TraceID, len(t.Diff.New), len(t.Diff.Resolved), t.Diff.Unchanged)
			for _, v := range t.Diff.New {
				fmt.Fprintf(&b, "  - new [%s] %s: %s\n", v.Severity, v.RuleID, v.Message)
			}
			for _, v := range t.Diff.Resolved {
				fmt.Fprintf(&b, "  - resolved [%s] %s: %s\n", v.Severity, v.RuleID, v.Message)
			}
			if t.Diff.RulesChanged {
				b.WriteString("  - rules changed between snapshots\n")
			}
		}
	}

	return os.WriteFile(path, []byte(b.String()), 0644)
}

func changedTraces(summary RunSummary) []TraceSummary {
	var out []TraceSummary
	for _, t := range summary.Traces {
		if t.Diff != nil && (!t.Diff.Clean() || t.Diff.RulesChanged) {
			out = append(out, t)
		}
	}
	return out
}

func collectViolations(summary RunSummary) []ViolationInfo {
	var out []ViolationInfo
	for _, t := range summary.Traces {
		for _, v := range t.Violations {
			out = append(out, ViolationInfo{
				TraceID:  t.TraceID,
				RuleID:   v.RuleID,
				Severity: v.Severity,
				Message:  v.Message,
				Path:     v.Path,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity == out[j].Severity {
			if out[i].RuleID == out[j].RuleID {
				return out[i].TraceID < out[j].TraceID
			}
			return out[i].RuleID < out[j].RuleID
		}
		return severityRank(out[i].Severity) < severityRank(out[j].Severity)
	})
	return out
}

type ViolationInfo struct {
	TraceID  string
	RuleID   string
	Severity string
	Message  string
	Path     string
}

func severityRank(severity string) int {
	switch severity {
	case guardrail.SeverityError:
		return 0
	case guardrail.SeverityWarning:
		return 1
	default:
		return 2
	}
}
