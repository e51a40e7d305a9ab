package guardrail

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/regrada-ai/tracemark/internal/annotate"
	"github.com/regrada-ai/tracemark/internal/util"
)

// Violation is one rule hit, kept alongside the annotation it produced so
// reports and exit codes do not have to re-derive anything from the mapping.
type Violation struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// Findings is the result of checking one trace document: the produced
// annotation mapping plus the flat violation list. CheckedAt and TraceID are
// filled by the caller when the findings are snapshotted.
type Findings struct {
	TraceID     string           `json:"trace_id,omitempty"`
	CheckedAt   time.Time        `json:"checked_at,omitempty"`
	RulesHash   string           `json:"rules_hash,omitempty"`
	Annotations annotate.Mapping `json:"annotations,omitempty"`
	Violations  []Violation      `json:"violations,omitempty"`
}

// Empty reports whether the check produced neither annotations nor
// violations.
func (f Findings) Empty() bool {
	return len(f.Annotations) == 0 && len(f.Violations) == 0
}

// MaxSeverity returns the highest severity among the violations, or "" when
// there are none.
func (f Findings) MaxSeverity() string {
	max := ""
	for _, v := range f.Violations {
		if max == "" || severityRank(v.Severity) > severityRank(max) {
			max = v.Severity
		}
	}
	return max
}

// FailsOn reports whether any violation reaches the threshold severity. An
// empty threshold means error.
func (f Findings) FailsOn(threshold string) bool {
	return FailsAt(f.Violations, threshold)
}

// FailsAt is FailsOn over a bare violation list, for callers gating on a
// diff's subset rather than a full findings record.
func FailsAt(violations []Violation, threshold string) bool {
	if threshold == "" {
		threshold = SeverityError
	}
	for _, v := range violations {
		if severityRank(v.Severity) >= severityRank(threshold) {
			return true
		}
	}
	return false
}

func severityRank(severity string) int {
	switch severity {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// SaveFindings writes a findings snapshot as canonical JSON, so identical
// findings produce identical bytes and diff cleanly under version control.
func SaveFindings(path string, f Findings) error {
	data, err := util.CanonicalJSON(f)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadFindings reads a findings snapshot from disk.
func LoadFindings(path string) (Findings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Findings{}, err
	}
	f, err := ParseFindings(data)
	if err != nil {
		return Findings{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseFindings decodes a findings snapshot, wherever the bytes came from.
func ParseFindings(data []byte) (Findings, error) {
	var f Findings
	if err := json.Unmarshal(data, &f); err != nil {
		return Findings{}, fmt.Errorf("parse findings: %w", err)
	}
	return f, nil
}

// FindingsDiff compares two snapshots of the same trace. Violations are
// matched by rule, path and evidence as a multiset, so two identical hits in
// the same leaf stay distinct.
type FindingsDiff struct {
	New          []Violation `json:"new,omitempty"`
	Resolved     []Violation `json:"resolved,omitempty"`
	Unchanged    int         `json:"unchanged"`
	RulesChanged bool        `json:"rules_changed,omitempty"`
}

// Clean reports whether nothing appeared or resolved between the snapshots.
func (d FindingsDiff) Clean() bool {
	return len(d.New) == 0 && len(d.Resolved) == 0
}

// DiffFindings computes what changed from an old snapshot to the current
// findings, preserving input order within each bucket.
func DiffFindings(old, current Findings) FindingsDiff {
	diff := FindingsDiff{
		RulesChanged: old.RulesHash != "" && current.RulesHash != "" && old.RulesHash != current.RulesHash,
	}

	remaining := make(map[string]int, len(old.Violations))
	for _, v := range old.Violations {
		remaining[violationKey(v)]++
	}

	for _, v := range current.Violations {
		key := violationKey(v)
		if remaining[key] > 0 {
			remaining[key]--
			diff.Unchanged++
			continue
		}
		diff.New = append(diff.New, v)
	}

	seen := make(map[string]int, len(current.Violations))
	for _, v := range current.Violations {
		seen[violationKey(v)]++
	}
	for _, v := range old.Violations {
		key := violationKey(v)
		if seen[key] > 0 {
			seen[key]--
			continue
		}
		diff.Resolved = append(diff.Resolved, v)
	}
	return diff
}

func violationKey(v Violation) string {
	return v.RuleID + "\x00" + v.Path + "\x00" + v.Evidence
}
