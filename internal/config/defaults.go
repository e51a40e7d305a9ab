package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// applyDefaults sets default values for unspecified configuration fields
func applyDefaults(cfg *ProjectConfig, configPath string) {
	applyProjectDefaults(cfg, configPath)
	applyTracesDefaults(cfg)
	applyAnnotationsDefaults(cfg)
	applyGuardrailDefaults(cfg)
	applyViewDefaults(cfg)
	applyReportDefaults(cfg)
	applySnapshotsDefaults(cfg)
	applyCaptureDefaults(cfg)
}

func applyProjectDefaults(cfg *ProjectConfig, configPath string) {
	if cfg.Project.Root == "" {
		cfg.Project.Root = "."
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = deriveProjectName(configPath)
	}
}

func deriveProjectName(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dir = cwd
		}
	}
	return filepath.Base(dir)
}

func applyTracesDefaults(cfg *ProjectConfig) {
	setDefaultString(&cfg.Traces.Dir, ".tracemark/traces")
}

func applyAnnotationsDefaults(cfg *ProjectConfig) {
	setDefaultString(&cfg.Annotations.Dir, "tracemark/annotations")
}

func applyGuardrailDefaults(cfg *ProjectConfig) {
	setDefaultSlice(&cfg.Guardrail.Rules, []string{"tracemark/rules.yml"})
	setDefaultString(&cfg.Guardrail.FailOn, "error")
}

func applyViewDefaults(cfg *ProjectConfig) {
	setDefaultInt(&cfg.View.Width, 100)
	setDefaultBoolPtr(&cfg.View.Plain, false)
}

func applyReportDefaults(cfg *ProjectConfig) {
	setDefaultSlice(&cfg.Report.Format, []string{"summary", "markdown"})
	setDefaultString(&cfg.Report.Markdown.Path, ".tracemark/report.md")
	setDefaultString(&cfg.Report.JUnit.Path, ".tracemark/junit.xml")
}

func applySnapshotsDefaults(cfg *ProjectConfig) {
	setDefaultString(&cfg.Snapshots.Mode, "git")
	setDefaultString(&cfg.Snapshots.Git.Ref, "origin/main")
	setDefaultString(&cfg.Snapshots.Git.Dir, ".tracemark/findings")
	setDefaultString(&cfg.Snapshots.Local.Dir, ".tracemark/findings")
}

func applyCaptureDefaults(cfg *ProjectConfig) {
	setDefaultBoolPtr(&cfg.Capture.Enabled, true)
	setDefaultString(&cfg.Capture.Mode, "forward")
	setDefaultString(&cfg.Capture.Listen, "127.0.0.1:8788")
	setDefaultString(&cfg.Capture.CAPath, ".tracemark/ca")
	setDefaultString(&cfg.Capture.SessionDir, ".tracemark/sessions")

	if cfg.Capture.Mode == "reverse" {
		setDefaultString(&cfg.Capture.Target, "https://api.openai.com")
	}
	if len(cfg.Capture.AllowHosts) == 0 && cfg.Capture.Mode == "forward" {
		cfg.Capture.AllowHosts = deriveAllowedHosts(cfg)
	}

	setDefaultBoolPtr(&cfg.Capture.Redact.Enabled, true)
	setDefaultSlice(&cfg.Capture.Redact.Presets, []string{"pii_basic", "secrets"})
	for i := range cfg.Capture.Redact.Patterns {
		setDefaultString(&cfg.Capture.Redact.Patterns[i].ReplaceWith, "[REDACTED]")
	}
}

// Helper functions to reduce repetition

func setDefaultString(field *string, defaultValue string) {
	if *field == "" {
		*field = defaultValue
	}
}

func setDefaultInt(field *int, defaultValue int) {
	if *field == 0 {
		*field = defaultValue
	}
}

func setDefaultBoolPtr(field **bool, defaultValue bool) {
	if *field == nil {
		v := defaultValue
		*field = &v
	}
}

func setDefaultSlice[T any](field *[]T, defaultValue []T) {
	if len(*field) == 0 {
		*field = defaultValue
	}
}

// deriveAllowedHosts builds the forward-proxy allow list from the capture
// target plus the common chat API hosts.
func deriveAllowedHosts(cfg *ProjectConfig) []string {
	hosts := []string{"api.openai.com", "api.anthropic.com"}
	if host := extractHost(cfg.Capture.Target); host != "" {
		for _, h := range hosts {
			if h == host {
				return hosts
			}
		}
		hosts = append(hosts, host)
	}
	return hosts
}

// extractHost extracts hostname from a URL string
func extractHost(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return parsed.Hostname()
}
