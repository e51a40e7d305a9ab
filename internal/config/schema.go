package config

type ProjectConfig struct {
	Version     int               `yaml:"version"`
	Project     ProjectMeta       `yaml:"project,omitempty"`
	Traces      TracesConfig      `yaml:"traces,omitempty"`
	Annotations AnnotationsConfig `yaml:"annotations,omitempty"`
	Guardrail   GuardrailConfig   `yaml:"guardrail,omitempty"`
	View        ViewConfig        `yaml:"view,omitempty"`
	Report      ReportConfig      `yaml:"report,omitempty"`
	Snapshots   SnapshotsConfig   `yaml:"snapshots,omitempty"`
	Capture     CaptureConfig     `yaml:"capture,omitempty"`
}

type ProjectMeta struct {
	Name string `yaml:"name,omitempty"`
	Root string `yaml:"root,omitempty"`
}

type TracesConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

type AnnotationsConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

type GuardrailConfig struct {
	Rules  []string `yaml:"rules,omitempty"`
	FailOn string   `yaml:"fail_on,omitempty"`
}

type ViewConfig struct {
	Width int   `yaml:"width,omitempty"`
	Plain *bool `yaml:"plain,omitempty"`
}

type ReportConfig struct {
	Format   []string       `yaml:"format,omitempty"`
	Markdown MarkdownConfig `yaml:"markdown,omitempty"`
	JUnit    JUnitConfig    `yaml:"junit,omitempty"`
}

type MarkdownConfig struct {
	Path string `yaml:"path,omitempty"`
}

type JUnitConfig struct {
	Path string `yaml:"path,omitempty"`
}

type SnapshotsConfig struct {
	Mode  string               `yaml:"mode,omitempty"`
	Git   SnapshotsGitConfig   `yaml:"git,omitempty"`
	Local SnapshotsLocalConfig `yaml:"local,omitempty"`
}

type SnapshotsGitConfig struct {
	Ref string `yaml:"ref,omitempty"`
	Dir string `yaml:"dir,omitempty"`
}

type SnapshotsLocalConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

type CaptureConfig struct {
	Enabled    *bool        `yaml:"enabled,omitempty"`
	Mode       string       `yaml:"mode,omitempty"` // "forward", "reverse" or "off"
	Listen     string       `yaml:"listen,omitempty"`
	CAPath     string       `yaml:"ca_path,omitempty"`
	AllowHosts []string     `yaml:"allow_hosts,omitempty"`
	Target     string       `yaml:"target,omitempty"` // Upstream for reverse proxy mode
	SessionDir string       `yaml:"session_dir,omitempty"`
	Debug      bool         `yaml:"debug,omitempty"`
	Redact     RedactConfig `yaml:"redact,omitempty"`
}

type RedactConfig struct {
	Enabled  *bool           `yaml:"enabled,omitempty"`
	Presets  []string        `yaml:"presets,omitempty"`
	Patterns []RedactPattern `yaml:"patterns,omitempty"`
}

type RedactPattern struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex"`
	ReplaceWith string `yaml:"replace_with"`
}
