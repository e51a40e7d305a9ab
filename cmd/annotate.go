package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/regrada-ai/tracemark/internal/annotate"
	"github.com/regrada-ai/tracemark/internal/config"
	"github.com/regrada-ai/tracemark/internal/guardrail"
	"github.com/regrada-ai/tracemark/internal/model"
	"github.com/regrada-ai/tracemark/internal/trace"
)

var (
	annotateConfigPath string
	annotateStart      int
	annotateEnd        int
	annotateSeverity   string
	annotateExtras     []string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Attach annotations to trace values",
}

var annotateAddCmd = &cobra.Command{
	Use:   "add TRACE [PATH CONTENT]",
	Short: "Add an annotation at a path",
	Long: `Add an annotation at a path inside a trace.

With only TRACE, an interactive form picks the path from the trace's
annotatable values. Without --start/--end the annotation covers the whole
value.

Examples:
  tracemark annotate add tr-1
  tracemark annotate add tr-1 'messages[1].content' "hallucinated date"
  tracemark annotate add tr-1 'messages[1].content' "wrong city" --start 10 --end 15
  tracemark annotate add tr-1 'messages[2].tool_calls[0].function.arguments.city' "unescaped input" --severity warning`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runAnnotateAdd,
}

var annotateListCmd = &cobra.Command{
	Use:   "list TRACE",
	Short: "List the annotations on a trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnnotateList,
}

var annotateClearCmd = &cobra.Command{
	Use:   "clear TRACE [PATH]",
	Short: "Remove annotations from a trace, or from one path",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAnnotateClear,
}

func init() {
	rootCmd.AddCommand(annotateCmd)
	annotateCmd.AddCommand(annotateAddCmd)
	annotateCmd.AddCommand(annotateListCmd)
	annotateCmd.AddCommand(annotateClearCmd)

	annotateCmd.PersistentFlags().StringVarP(&annotateConfigPath, "config", "c", "", "Path to config file (default: tracemark.yml/tracemark.yaml)")
	annotateCmd.PersistentFlags().BoolVar(&noValidate, "no-validate", false, "Skip schema validation of trace file imports")

	annotateAddCmd.Flags().IntVar(&annotateStart, "start", -1, "Range start (character offset, inclusive)")
	annotateAddCmd.Flags().IntVar(&annotateEnd, "end", -1, "Range end (character offset, exclusive)")
	annotateAddCmd.Flags().StringVar(&annotateSeverity, "severity", "", "Severity tag: info, warning or error")
	annotateAddCmd.Flags().StringArrayVar(&annotateExtras, "extra", nil, "Extra key=value metadata (repeatable)")
}

func runAnnotateAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProjectConfig(annotateConfigPath)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	doc, id, err := loadTrace(cfg, args[0])
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	pathArg, content := "", ""
	severity := annotateSeverity
	start, end := annotateStart, annotateEnd
	switch len(args) {
	case 3:
		pathArg, content = args[1], args[2]
	case 1:
		pathArg, content, severity, start, end, err = annotateForm(doc)
		if err != nil {
			return ExitError{Code: 1, Err: err}
		}
	default:
		return ExitError{Code: 3, Err: fmt.Errorf("pass TRACE PATH CONTENT, or just TRACE for the interactive form")}
	}

	p, err := annotate.ParsePath(pathArg)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	ann := model.Annotation{Content: content}
	if start >= 0 || end >= 0 {
		if start < 0 || end < start {
			return ExitError{Code: 3, Err: fmt.Errorf("range start and end must both be set, with start <= end")}
		}
		ann = ann.WithRange(start, end)
	}
	if severity != "" {
		switch severity {
		case guardrail.SeverityInfo, guardrail.SeverityWarning, guardrail.SeverityError:
		default:
			return ExitError{Code: 3, Err: fmt.Errorf("invalid severity %q (info, warning or error)", severity)}
		}
		ann = ann.WithExtra("severity", severity)
	}
	for _, kv := range annotateExtras {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return ExitError{Code: 3, Err: fmt.Errorf("invalid --extra %q (want key=value)", kv)}
		}
		ann = ann.WithExtra(key, value)
	}

	if !pathAnchors(doc, p) {
		fmt.Printf("note: %s does not address a value in this trace; it will render as unanchored\n", p.String())
	}

	mapping, err := loadAnnotations(cfg, id)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}
	mapping.Add(p.String(), ann)

	path := annotationsPath(cfg, id)
	if err := annotate.WriteMapping(path, mapping); err != nil {
		return ExitError{Code: 1, Err: err}
	}

	fmt.Printf("✓ annotated %s (%s)\n", p.String(), path)
	return nil
}

// annotateForm collects an annotation interactively: the path is picked from
// the trace's annotatable values, then note, severity and an optional range.
func annotateForm(doc *trace.Document) (path, content, severity string, start, end int, err error) {
	leaves := doc.Leaves()
	if len(leaves) == 0 {
		return "", "", "", 0, 0, fmt.Errorf("trace has no annotatable values")
	}

	options := make([]huh.Option[string], 0, len(leaves))
	for _, leaf := range leaves {
		label := fmt.Sprintf("%s  %s", leaf.Path.String(), preview(leaf.Text))
		options = append(options, huh.NewOption(label, leaf.Path.String()))
	}

	var rangeSpec string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Path").
				Description("The value the annotation attaches to").
				Options(options...).
				Value(&path),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Note").
				Value(&content),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Severity").
				Options(
					huh.NewOption("None", ""),
					huh.NewOption("Info", guardrail.SeverityInfo),
					huh.NewOption("Warning", guardrail.SeverityWarning),
					huh.NewOption("Error", guardrail.SeverityError),
				).
				Value(&severity),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Range").
				Description("start:end character offsets, empty for the whole value").
				Placeholder("10:15").
				Value(&rangeSpec),
		),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		return "", "", "", 0, 0, err
	}
	if strings.TrimSpace(content) == "" {
		return "", "", "", 0, 0, fmt.Errorf("annotation note is empty")
	}

	start, end = -1, -1
	if spec := strings.TrimSpace(rangeSpec); spec != "" {
		start, end, err = parseRange(spec)
		if err != nil {
			return "", "", "", 0, 0, err
		}
	}
	return path, content, severity, start, end, nil
}

func parseRange(spec string) (int, int, error) {
	from, to, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range %q (want start:end)", spec)
	}
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range start %q", from)
	}
	end, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range end %q", to)
	}
	return start, end, nil
}

func runAnnotateList(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProjectConfig(annotateConfigPath)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	_, id, err := loadTrace(cfg, args[0])
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	mapping, err := loadAnnotations(cfg, id)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}
	if len(mapping) == 0 {
		fmt.Println("No annotations")
		return nil
	}

	for _, p := range mapping.Paths() {
		fmt.Println(p)
		for _, a := range mapping[p].Resolved() {
			line := "  - " + a.Content
			if !a.WholeValue() {
				line = fmt.Sprintf("  - [%d-%d) %s", *a.Start, *a.End, a.Content)
			}
			if len(a.Extra) > 0 {
				line += " (" + formatExtra(a.Extra) + ")"
			}
			fmt.Println(line)
		}
	}
	return nil
}

func runAnnotateClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProjectConfig(annotateConfigPath)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	_, id, err := loadTrace(cfg, args[0])
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	mapping, err := loadAnnotations(cfg, id)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	removed := 0
	if len(args) == 2 {
		target, err := annotate.ParsePath(args[1])
		if err != nil {
			return ExitError{Code: 3, Err: err}
		}
		for key := range mapping {
			p, err := annotate.ParsePath(key)
			if err != nil {
				continue
			}
			if p.String() == target.String() {
				removed += len(mapping[key].Resolved())
				delete(mapping, key)
			}
		}
	} else {
		for key := range mapping {
			removed += len(mapping[key].Resolved())
			delete(mapping, key)
		}
	}

	path := annotationsPath(cfg, id)
	if len(mapping) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return ExitError{Code: 1, Err: err}
		}
	} else {
		if err := annotate.WriteMapping(path, mapping); err != nil {
			return ExitError{Code: 1, Err: err}
		}
	}

	fmt.Printf("Removed %d annotations\n", removed)
	return nil
}

func annotationsPath(cfg *config.ProjectConfig, id string) string {
	return filepath.Join(cfg.Annotations.Dir, id+".yml")
}

// loadAnnotations reads the trace's annotation mapping, returning an empty
// mapping when none has been written yet.
func loadAnnotations(cfg *config.ProjectConfig, id string) (annotate.Mapping, error) {
	path := annotationsPath(cfg, id)
	if _, err := os.Stat(path); err != nil {
		return annotate.Mapping{}, nil
	}
	return annotate.LoadMapping(path)
}

// pathAnchors reports whether p addresses a value, an ancestor of one, or a
// position inside one. Paths that anchor nowhere still render, in the
// unanchored section.
func pathAnchors(doc *trace.Document, p annotate.Path) bool {
	if p.IsRoot() {
		return true
	}
	for _, leaf := range doc.Leaves() {
		if leaf.Path.HasPrefix(p) || p.HasPrefix(leaf.Path) {
			return true
		}
	}
	return false
}

func formatExtra(extra map[string]string) string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+extra[k])
	}
	return strings.Join(pairs, ", ")
}
