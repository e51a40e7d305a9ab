package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracemark.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProjectConfig(t *testing.T) {
	path := writeConfig(t, `version: 1
project:
  name: demo
guardrail:
  rules:
    - rules/base.yml
    - rules/pii.yml
  fail_on: warning
view:
  width: 80
capture:
  mode: "off"
`)

	cfg, err := LoadProjectConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, []string{"rules/base.yml", "rules/pii.yml"}, cfg.Guardrail.Rules)
	assert.Equal(t, "warning", cfg.Guardrail.FailOn)
	assert.Equal(t, 80, cfg.View.Width)
	assert.Equal(t, "off", cfg.Capture.Mode)

	// Unset sections pick up defaults.
	assert.Equal(t, ".tracemark/traces", cfg.Traces.Dir)
	assert.Equal(t, "tracemark/annotations", cfg.Annotations.Dir)
	assert.Equal(t, "git", cfg.Snapshots.Mode)
	assert.Equal(t, "origin/main", cfg.Snapshots.Git.Ref)
	assert.Equal(t, []string{"summary", "markdown"}, cfg.Report.Format)
}

func TestLoadProjectConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "version: 1\nguardrails:\n  rules: [x]\n")
	_, err := LoadProjectConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadProjectConfigMissing(t *testing.T) {
	_, err := LoadProjectConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("demo")

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, []string{"tracemark/rules.yml"}, cfg.Guardrail.Rules)
	assert.Equal(t, "error", cfg.Guardrail.FailOn)
	assert.Equal(t, 100, cfg.View.Width)
	assert.Equal(t, "forward", cfg.Capture.Mode)
	assert.Equal(t, "127.0.0.1:8788", cfg.Capture.Listen)
	assert.Contains(t, cfg.Capture.AllowHosts, "api.openai.com")
	require.NotNil(t, cfg.Capture.Redact.Enabled)
	assert.True(t, *cfg.Capture.Redact.Enabled)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unsupported version",
			content: "version: 2\n",
			wantErr: "unsupported version",
		},
		{
			name:    "bad fail_on",
			content: "version: 1\nguardrail:\n  fail_on: fatal\n",
			wantErr: "fail_on must be",
		},
		{
			name:    "narrow view",
			content: "version: 1\nview:\n  width: 20\n",
			wantErr: "view.width",
		},
		{
			name:    "bad report format",
			content: "version: 1\nreport:\n  format: [pdf]\n",
			wantErr: "unsupported format",
		},
		{
			name:    "bad snapshots mode",
			content: "version: 1\nsnapshots:\n  mode: cloud\n",
			wantErr: "snapshots.mode",
		},
		{
			name:    "bad capture mode",
			content: "version: 1\ncapture:\n  mode: tap\n",
			wantErr: "capture.mode",
		},
		{
			name:    "reverse without target host",
			content: "version: 1\ncapture:\n  mode: reverse\n  target: \"https://\"\n",
			wantErr: "capture.target",
		},
		{
			name:    "redact pattern missing name",
			content: "version: 1\ncapture:\n  redact:\n    patterns:\n      - regex: x\n",
			wantErr: "name is required",
		},
		{
			name:    "redact pattern bad regex",
			content: "version: 1\ncapture:\n  redact:\n    patterns:\n      - name: broken\n        regex: \"[\"\n",
			wantErr: "invalid regex",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := LoadProjectConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRedactPatternDefaults(t *testing.T) {
	path := writeConfig(t, `version: 1
capture:
  redact:
    patterns:
      - name: ticket
        regex: "TKT-\\d+"
`)

	cfg, err := LoadProjectConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Capture.Redact.Patterns, 1)
	assert.Equal(t, "[REDACTED]", cfg.Capture.Redact.Patterns[0].ReplaceWith)
}
