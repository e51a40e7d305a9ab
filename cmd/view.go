package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/regrada-ai/tracemark/internal/annotate"
	"github.com/regrada-ai/tracemark/internal/config"
	"github.com/regrada-ai/tracemark/internal/render"
	"github.com/regrada-ai/tracemark/internal/schema"
	"github.com/regrada-ai/tracemark/internal/trace"
	"github.com/regrada-ai/tracemark/internal/util"
)

var (
	viewConfigPath  string
	viewPath        string
	viewPlain       bool
	viewFindings    bool
	viewAnnotations []string

	// noValidate is shared by every command that imports trace files
	// through loadTrace.
	noValidate bool
)

var viewCmd = &cobra.Command{
	Use:   "view TRACE",
	Short: "Render a trace with its annotations",
	Long: `Render a trace with its annotations painted over the content.

TRACE is a stored trace ID or a path to a trace file.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().StringVarP(&viewConfigPath, "config", "c", "", "Path to config file (default: tracemark.yml/tracemark.yaml)")
	viewCmd.Flags().StringVar(&viewPath, "path", "", "Only render leaves under this path (e.g. messages[0])")
	viewCmd.Flags().BoolVar(&viewPlain, "plain", false, "Disable color and glyphs")
	viewCmd.Flags().BoolVar(&viewFindings, "findings", false, "Merge guardrail annotations from the written snapshot")
	viewCmd.Flags().StringArrayVar(&viewAnnotations, "annotations", nil, "Annotation mapping file to render (repeatable; default: the trace's own mapping)")
	viewCmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip schema validation of trace file imports")
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProjectConfig(viewConfigPath)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	doc, id, err := loadTrace(cfg, args[0])
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	var mapping annotate.Mapping
	if len(viewAnnotations) > 0 {
		mapping = annotate.Mapping{}
		for _, file := range viewAnnotations {
			m, err := annotate.LoadMapping(file)
			if err != nil {
				return ExitError{Code: 3, Err: err}
			}
			mapping = annotate.Merge(mapping, m)
		}
	} else {
		mapping, err = loadAnnotations(cfg, id)
		if err != nil {
			return ExitError{Code: 3, Err: err}
		}
	}
	if viewFindings {
		if findings, err := snapshotWriter(cfg).Load(id); err == nil {
			mapping = annotate.Merge(mapping, findings.Annotations)
		}
	}

	set, err := annotate.FromMapping(mapping)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	plain := viewPlain
	if cfg.View.Plain != nil && *cfg.View.Plain {
		plain = true
	}
	r := render.New(render.Options{Width: cfg.View.Width, Plain: plain})

	if viewPath != "" {
		p, err := annotate.ParsePath(viewPath)
		if err != nil {
			return ExitError{Code: 3, Err: err}
		}
		var scoped []trace.Leaf
		for _, leaf := range doc.Leaves() {
			if leaf.Path.HasPrefix(p) {
				scoped = append(scoped, leaf)
			}
		}
		if len(scoped) == 0 {
			return ExitError{Code: 3, Err: fmt.Errorf("no leaves under %s", p)}
		}
		r.Leaves(os.Stdout, scoped, set)
		return nil
	}

	r.Document(os.Stdout, id, doc, set)
	return nil
}

// loadTrace resolves a trace argument as a file path first, then as a store
// ID. File imports are validated against the trace schema at the boundary;
// store documents were validated when captured.
func loadTrace(cfg *config.ProjectConfig, arg string) (*trace.Document, string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, "", err
		}
		if !noValidate {
			if err := schema.Validate(data); err != nil {
				return nil, "", fmt.Errorf("%s: %w", arg, err)
			}
		}
		doc, err := trace.Parse(data)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", arg, err)
		}
		// The file-derived ID names annotation and snapshot files, so keep
		// it filesystem-clean.
		id := util.Slugify(strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg)))
		return doc, id, nil
	}

	store := trace.NewLocalStore(cfg.Traces.Dir)
	doc, meta, err := store.Read(arg)
	if err != nil {
		return nil, "", err
	}
	return doc, meta.ID, nil
}
