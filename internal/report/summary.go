package report

import (
	"sort"

	"github.com/regrada-ai/tracemark/internal/guardrail"
)

type TraceSummary struct {
	TraceID     string
	Annotations int
	Violations  []guardrail.Violation
	Diff        *guardrail.FindingsDiff
}

type RunSummary struct {
	Total  int
	Passed int
	Warned int
	Failed int
	Traces []TraceSummary
}

func BuildSummary(traces []TraceSummary) RunSummary {
	summary := RunSummary{Total: len(traces)}
	for _, t := range traces {
		switch maxSeverity(t.Violations) {
		case guardrail.SeverityError:
			summary.Failed++
		case guardrail.SeverityWarning:
			summary.Warned++
		default:
			summary.Passed++
		}
		summary.Traces = append(summary.Traces, t)
	}
	return summary
}

func maxSeverity(violations []guardrail.Violation) string {
	severity := ""
	for _, v := range violations {
		switch v.Severity {
		case guardrail.SeverityError:
			return guardrail.SeverityError
		case guardrail.SeverityWarning:
			severity = guardrail.SeverityWarning
		case guardrail.SeverityInfo:
			if severity == "" {
				severity = guardrail.SeverityInfo
			}
		}
	}
	return severity
}

func SortTraces(summary *RunSummary) {
	sort.Slice(summary.Traces, func(i, j int) bool {
		return summary.Traces[i].TraceID < summary.Traces[j].TraceID
	})
}
