package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/regrada-ai/tracemark/internal/config"
)

var (
	initForce       bool
	initUseDefaults bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new project with interactive setup",
	Long:  `Initialize a new Tracemark project with interactive configuration or use defaults.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Force initialization even if project exists")
	initCmd.Flags().BoolVarP(&initUseDefaults, "yes", "y", false, "Use default values without interactive prompts")
}

func runInit(cmd *cobra.Command, args []string) error {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	fmt.Println()
	fmt.Println(titleStyle.Render("Tracemark Initialize"))
	fmt.Println(dimStyle.Render("Setting up trace capture and guardrails..."))
	fmt.Println()

	if _, err := os.Stat("tracemark.yml"); err == nil && !initForce {
		fmt.Printf("%s Project already initialized. Use --force to reinitialize.\n", warnStyle.Render("Warning:"))
		return ExitError{Code: 1, Err: fmt.Errorf("tracemark.yml already exists")}
	}

	cwd, _ := os.Getwd()
	defaultProject := filepath.Base(cwd)

	var cfg config.ProjectConfig
	writeRules := true
	if initUseDefaults {
		cfg = config.DefaultConfig(defaultProject)
	} else {
		var err error
		cfg, writeRules, err = runInteractiveSetup(defaultProject)
		if err != nil {
			return ExitError{Code: 1, Err: err}
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ExitError{Code: 1, Err: fmt.Errorf("serialize config: %w", err)}
	}
	if err := os.WriteFile("tracemark.yml", data, 0644); err != nil {
		return ExitError{Code: 1, Err: fmt.Errorf("write config: %w", err)}
	}

	for _, dir := range []string{cfg.Traces.Dir, cfg.Annotations.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return ExitError{Code: 1, Err: err}
		}
	}
	if writeRules {
		if err := writeStarterRules(cfg.Guardrail.Rules); err != nil {
			return ExitError{Code: 1, Err: err}
		}
	}

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Project initialized"))
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Generate a CA for HTTPS capture:", dimStyle.Render("tracemark ca init"))
	fmt.Println("  2. Record traffic:", dimStyle.Render("tracemark capture -- <your-command>"))
	fmt.Println("  3. Inspect a trace:", dimStyle.Render("tracemark view <trace-id>"))
	fmt.Println("  4. Gate CI:", dimStyle.Render("tracemark check --write"))
	fmt.Println()
	return nil
}

func runInteractiveSetup(defaultProject string) (config.ProjectConfig, bool, error) {
	var projectName string
	var captureMode string
	var failOn string
	var formats []string
	writeRules := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project Name").
				Value(&projectName).
				Placeholder(defaultProject),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Capture Mode").
				Description("How traces get recorded").
				Options(
					huh.NewOption("Forward proxy (HTTPS MITM, needs CA)", "forward"),
					huh.NewOption("Reverse proxy (point base URL at it)", "reverse"),
					huh.NewOption("Off (import trace files manually)", "off"),
				).
				Value(&captureMode),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Fail On").
				Description("Lowest guardrail severity that fails a check").
				Options(
					huh.NewOption("Error", "error"),
					huh.NewOption("Warning", "warning"),
					huh.NewOption("Info", "info"),
				).
				Value(&failOn),
		),

		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Report Formats").
				Description("Outputs written by tracemark check").
				Options(
					huh.NewOption("Terminal summary", "summary"),
					huh.NewOption("Markdown report", "markdown"),
					huh.NewOption("JUnit XML", "junit"),
				).
				Value(&formats).
				Limit(3),
		),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Write starter rules?").
				Description("A small rules file to edit, with one phrase rule and one PII detector").
				Value(&writeRules).
				Affirmative("Yes").
				Negative("No"),
		),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		return config.ProjectConfig{}, false, err
	}

	if projectName == "" {
		projectName = defaultProject
	}
	cfg := config.DefaultConfig(projectName)
	if captureMode != "" {
		cfg.Capture.Mode = captureMode
	}
	if failOn != "" {
		cfg.Guardrail.FailOn = failOn
	}
	if len(formats) > 0 {
		cfg.Report.Format = formats
	}
	return cfg, writeRules, nil
}

func writeStarterRules(rulePaths []string) error {
	starter := `rules:
  - id: no-instruction-override
    description: User tries to override system instructions
    severity: warning
    scope:
      roles: [user]
    match:
      phrases:
        - ignore previous instructions
        - disregard your instructions

  - id: no-pii-output
    description: Assistant output leaks PII
    severity: error
    scope:
      roles: [assistant]
    match:
      detector: pii_basic
`

	for _, path := range rulePaths {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(starter), 0644); err != nil {
			return err
		}
	}
	return nil
}
