package config

import (
	"fmt"
	"regexp"
)

// validateConfig validates the configuration
func validateConfig(cfg *ProjectConfig) error {
	validators := []func(*ProjectConfig) error{
		validateVersion,
		validateGuardrailFailOn,
		validateViewWidth,
		validateReportFormats,
		validateSnapshotsMode,
		validateCaptureMode,
		validateRedactPatterns,
	}

	for _, validator := range validators {
		if err := validator(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateVersion(cfg *ProjectConfig) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version %d", cfg.Version)
	}
	return nil
}

func validateGuardrailFailOn(cfg *ProjectConfig) error {
	switch cfg.Guardrail.FailOn {
	case "info", "warning", "error":
		return nil
	}
	return fmt.Errorf("guardrail.fail_on must be info, warning, or error")
}

func validateViewWidth(cfg *ProjectConfig) error {
	if cfg.View.Width < 40 {
		return fmt.Errorf("view.width must be at least 40")
	}
	return nil
}

func validateReportFormats(cfg *ProjectConfig) error {
	for _, format := range cfg.Report.Format {
		if !isValidReportFormat(format) {
			return fmt.Errorf("report.format: unsupported format %q (summary, markdown, junit)", format)
		}
	}
	return nil
}

func isValidReportFormat(value string) bool {
	validFormats := map[string]bool{
		"summary":  true,
		"markdown": true,
		"junit":    true,
	}
	return validFormats[value]
}

func validateSnapshotsMode(cfg *ProjectConfig) error {
	if cfg.Snapshots.Mode != "git" && cfg.Snapshots.Mode != "local" {
		return fmt.Errorf("snapshots.mode must be git or local")
	}
	return nil
}

func validateCaptureMode(cfg *ProjectConfig) error {
	switch cfg.Capture.Mode {
	case "forward", "reverse", "off":
	default:
		return fmt.Errorf("capture.mode must be forward, reverse, or off")
	}
	if cfg.Capture.Mode == "reverse" && extractHost(cfg.Capture.Target) == "" {
		return fmt.Errorf("capture.target must be a valid URL in reverse mode")
	}
	return nil
}

func validateRedactPatterns(cfg *ProjectConfig) error {
	for i, pattern := range cfg.Capture.Redact.Patterns {
		if pattern.Name == "" {
			return fmt.Errorf("capture.redact.patterns[%d].name is required", i)
		}
		if pattern.Regex == "" {
			return fmt.Errorf("capture.redact.patterns[%d].regex is required", i)
		}
		if _, err := regexp.Compile(pattern.Regex); err != nil {
			return fmt.Errorf("capture.redact.patterns[%d]: invalid regex: %v", i, err)
		}
	}
	return nil
}
