// Package snapshot persists guardrail findings so later runs can be diffed
// against them, either from a local directory or as committed at a git ref.
package snapshot

import (
	"fmt"
	"path/filepath"

	"github.com/regrada-ai/tracemark/internal/git"
	"github.com/regrada-ai/tracemark/internal/guardrail"
)

// Store reads and writes per-trace findings snapshots.
type Store interface {
	Load(traceID string) (guardrail.Findings, error)
	Save(f guardrail.Findings) error
}

// LocalStore keeps one findings file per trace in a flat directory.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{baseDir: baseDir}
}

func (s *LocalStore) Load(traceID string) (guardrail.Findings, error) {
	return guardrail.LoadFindings(filepath.Join(s.baseDir, traceID+".json"))
}

func (s *LocalStore) Save(f guardrail.Findings) error {
	if f.TraceID == "" {
		return fmt.Errorf("findings have no trace id")
	}
	return guardrail.SaveFindings(filepath.Join(s.baseDir, f.TraceID+".json"), f)
}

// GitStore reads the snapshots committed at a ref, so a working tree can be
// checked against what main last accepted. It is read-only.
type GitStore struct {
	ref     string
	baseDir string
	client  git.Client
}

func NewGitStore(ref, baseDir string, client git.Client) *GitStore {
	return &GitStore{ref: ref, baseDir: baseDir, client: client}
}

func (s *GitStore) Load(traceID string) (guardrail.Findings, error) {
	path := filepath.ToSlash(filepath.Join(s.baseDir, traceID+".json"))
	data, err := s.client.ShowFile(s.ref, path)
	if err != nil {
		return guardrail.Findings{}, err
	}
	return guardrail.ParseFindings(data)
}

func (s *GitStore) Save(f guardrail.Findings) error {
	return fmt.Errorf("git snapshot store is read-only")
}
