package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/regrada-ai/tracemark/internal/annotate"
	"github.com/regrada-ai/tracemark/internal/config"
)

var pathsConfigPath string

var pathsCmd = &cobra.Command{
	Use:   "paths TRACE",
	Short: "List the annotatable paths of a trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaths,
}

func init() {
	rootCmd.AddCommand(pathsCmd)

	pathsCmd.Flags().StringVarP(&pathsConfigPath, "config", "c", "", "Path to config file (default: tracemark.yml/tracemark.yaml)")
	pathsCmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip schema validation of trace file imports")
}

func runPaths(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProjectConfig(pathsConfigPath)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	doc, id, err := loadTrace(cfg, args[0])
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	mapping, err := loadAnnotations(cfg, id)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}
	set, err := annotate.FromMapping(mapping)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	for _, leaf := range doc.Leaves() {
		badge := "   "
		if n := set.ForPath(leaf.Path).Count(); n > 0 {
			badge = fmt.Sprintf("%3d", n)
		}
		fmt.Printf("%-48s %s %s\n", leaf.Path.String(), badge, preview(leaf.Text))
	}
	if !set.Empty() {
		fmt.Printf("\n%d annotations on %d paths\n", set.Count(), len(set.Paths()))
	}
	return nil
}

func preview(text string) string {
	text = strings.ReplaceAll(text, "\n", "\\n")
	runes := []rune(text)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return text
}
