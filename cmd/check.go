package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/regrada-ai/tracemark/internal/capture"
	"github.com/regrada-ai/tracemark/internal/config"
	"github.com/regrada-ai/tracemark/internal/git"
	"github.com/regrada-ai/tracemark/internal/guardrail"
	"github.com/regrada-ai/tracemark/internal/report"
	"github.com/regrada-ai/tracemark/internal/snapshot"
	"github.com/regrada-ai/tracemark/internal/trace"
)

var (
	checkConfigPath string
	checkWrite      bool
	checkAgainst    bool
	checkRef        string
	checkFailOn     string
	checkSession    string
)

var checkCmd = &cobra.Command{
	Use:   "check [TRACE...]",
	Short: "Run guardrail rules, diff against snapshots",
	Long: `Run the guardrail rules over traces and report the findings.

With no arguments every stored trace is checked. With --against, findings
are diffed against the configured snapshots and only new violations gate
the exit code; --write stores the current findings as the next snapshot.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkConfigPath, "config", "c", "", "Path to config file (default: tracemark.yml/tracemark.yaml)")
	checkCmd.Flags().BoolVar(&checkWrite, "write", false, "Write findings snapshots")
	checkCmd.Flags().BoolVar(&checkAgainst, "against", false, "Diff findings against the configured snapshots")
	checkCmd.Flags().StringVar(&checkRef, "ref", "", "Git ref to diff against (default: snapshots.git.ref)")
	checkCmd.Flags().StringVar(&checkFailOn, "fail-on", "", "Lowest severity that fails the check (default: guardrail.fail_on)")
	checkCmd.Flags().StringVar(&checkSession, "session", "", "Check the traces of a capture session (ID, or 'latest')")
	checkCmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip schema validation of trace file imports")
}

type checkTarget struct {
	id  string
	doc *trace.Document
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProjectConfig(checkConfigPath)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	rules, err := guardrail.LoadRules(cfg.Guardrail.Rules)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}
	engine, err := guardrail.NewEngine(rules)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	targets, err := resolveTargets(cfg, args, checkSession)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}
	if len(targets) == 0 {
		return ExitError{Code: 3, Err: fmt.Errorf("no traces to check")}
	}

	failOn := cfg.Guardrail.FailOn
	if checkFailOn != "" {
		failOn = checkFailOn
	}

	var reader snapshot.Store
	if checkAgainst {
		reader = snapshotReader(cfg, checkRef)
	}
	writer := snapshotWriter(cfg)

	failed := false
	var summaries []report.TraceSummary
	for i, target := range targets {
		fmt.Printf("[%d/%d] Checking %s\n", i+1, len(targets), target.id)

		findings := engine.Check(target.doc)
		findings.TraceID = target.id
		findings.CheckedAt = time.Now().UTC()

		var diffResult *guardrail.FindingsDiff
		if reader != nil {
			old, err := reader.Load(target.id)
			if err != nil {
				return ExitError{Code: 4, Err: fmt.Errorf("missing snapshot for %s: %w", target.id, err)}
			}
			d := guardrail.DiffFindings(old, findings)
			diffResult = &d
		}

		printFindings(findings, diffResult)

		gate := findings.Violations
		if diffResult != nil {
			gate = diffResult.New
		}
		if guardrail.FailsAt(gate, failOn) {
			failed = true
		}

		if checkWrite {
			if err := writer.Save(findings); err != nil {
				return ExitError{Code: 1, Err: err}
			}
		}

		summaries = append(summaries, report.TraceSummary{
			TraceID:     target.id,
			Annotations: annotationCount(findings),
			Violations:  findings.Violations,
			Diff:        diffResult,
		})
	}

	summary := report.BuildSummary(summaries)
	report.SortTraces(&summary)

	fmt.Println()
	for _, format := range cfg.Report.Format {
		switch format {
		case "summary":
			fmt.Printf("Total: %d | Passed: %d | Warned: %d | Failed: %d\n",
				summary.Total, summary.Passed, summary.Warned, summary.Failed)
		case "markdown":
			if err := report.WriteMarkdown(summary, cfg.Report.Markdown.Path); err != nil {
				return ExitError{Code: 1, Err: err}
			}
		case "junit":
			if err := report.WriteJUnit(summary, cfg.Report.JUnit.Path); err != nil {
				return ExitError{Code: 1, Err: err}
			}
		}
	}

	if failed {
		return ExitError{Code: 2, Err: fmt.Errorf("guardrail violations at or above %s", failOn)}
	}
	return nil
}

// resolveTargets loads the traces named by args, the traces of a capture
// session when one is named, or every stored trace otherwise.
func resolveTargets(cfg *config.ProjectConfig, args []string, sessionID string) ([]checkTarget, error) {
	if len(args) > 0 {
		var targets []checkTarget
		for _, arg := range args {
			doc, id, err := loadTrace(cfg, arg)
			if err != nil {
				return nil, err
			}
			targets = append(targets, checkTarget{id: id, doc: doc})
		}
		return targets, nil
	}

	store := trace.NewLocalStore(cfg.Traces.Dir)
	filter := trace.Filter{}
	if sessionID != "" {
		ids, err := sessionTraceIDs(cfg, sessionID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("session %s has no traces", sessionID)
		}
		filter.IDs = ids
	}

	metas, err := store.List(filter)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	var targets []checkTarget
	for _, m := range metas {
		doc, _, err := store.Read(m.ID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, checkTarget{id: m.ID, doc: doc})
	}
	return targets, nil
}

func sessionTraceIDs(cfg *config.ProjectConfig, sessionID string) ([]string, error) {
	path := filepath.Join(cfg.Capture.SessionDir, sessionID+".json")
	if sessionID == "latest" {
		var err error
		path, err = capture.LatestSession(cfg.Capture.SessionDir)
		if err != nil {
			return nil, err
		}
	}
	session, err := capture.LoadSession(path)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session.TraceIDs, nil
}

func printFindings(f guardrail.Findings, diff *guardrail.FindingsDiff) {
	successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	status := successStyle.Render("✓ PASS")
	switch f.MaxSeverity() {
	case guardrail.SeverityError:
		status = failStyle.Render("✗ FAIL")
	case guardrail.SeverityWarning:
		status = warnStyle.Render("⚠ WARN")
	}
	fmt.Printf("  %s (%d violations, %d annotations)\n", status, len(f.Violations), annotationCount(f))

	for _, v := range f.Violations {
		fmt.Printf("    - %s %s: %s %s\n", v.Severity, v.RuleID, v.Message, dimStyle.Render("("+v.Path+")"))
	}
	if diff != nil {
		fmt.Printf("    snapshot: %d new, %d resolved, %d unchanged\n",
			len(diff.New), len(diff.Resolved), diff.Unchanged)
		if diff.RulesChanged {
			fmt.Println(dimStyle.Render("    note: rules changed since the snapshot was written"))
		}
	}
}

func annotationCount(f guardrail.Findings) int {
	n := 0
	for _, p := range f.Annotations.Paths() {
		n += len(f.Annotations[p].Resolved())
	}
	return n
}

// snapshotWriter returns the store check --write saves to. In git mode that
// is still the working tree; committing the snapshot dir is what publishes
// a baseline.
func snapshotWriter(cfg *config.ProjectConfig) *snapshot.LocalStore {
	if cfg.Snapshots.Mode == "git" {
		return snapshot.NewLocalStore(cfg.Snapshots.Git.Dir)
	}
	return snapshot.NewLocalStore(cfg.Snapshots.Local.Dir)
}

func snapshotReader(cfg *config.ProjectConfig, ref string) snapshot.Store {
	if cfg.Snapshots.Mode == "git" {
		if ref == "" {
			ref = cfg.Snapshots.Git.Ref
		}
		return snapshot.NewGitStore(ref, cfg.Snapshots.Git.Dir, git.NewExecClient())
	}
	return snapshot.NewLocalStore(cfg.Snapshots.Local.Dir)
}
