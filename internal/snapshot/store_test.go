package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regrada-ai/tracemark/internal/guardrail"
)

func sampleFindings(traceID string) guardrail.Findings {
	return guardrail.Findings{
		TraceID:   traceID,
		CheckedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RulesHash: "abc123",
		Violations: []guardrail.Violation{{
			RuleID:   "no-pii",
			Severity: guardrail.SeverityError,
			Message:  "email in output",
			Path:     "messages[1].content",
			Evidence: "bob@example.com",
		}},
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Save(sampleFindings("tr-1")))

	loaded, err := store.Load("tr-1")
	require.NoError(t, err)
	assert.Equal(t, "tr-1", loaded.TraceID)
	assert.Equal(t, "abc123", loaded.RulesHash)
	require.Len(t, loaded.Violations, 1)
	assert.Equal(t, "no-pii", loaded.Violations[0].RuleID)

	_, err = store.Load("tr-missing")
	assert.Error(t, err)

	assert.Error(t, store.Save(guardrail.Findings{}))
}

type fakeGit struct {
	files map[string][]byte
}

func (f *fakeGit) ShowFile(ref, path string) ([]byte, error) {
	data, ok := f.files[ref+":"+path]
	if !ok {
		return nil, fmt.Errorf("git show %s:%s: exit status 128", ref, path)
	}
	return data, nil
}

func TestGitStoreLoad(t *testing.T) {
	dir := t.TempDir()
	local := NewLocalStore(dir)
	require.NoError(t, local.Save(sampleFindings("tr-1")))
	encoded, err := os.ReadFile(filepath.Join(dir, "tr-1.json"))
	require.NoError(t, err)

	client := &fakeGit{files: map[string][]byte{
		"origin/main:snapshots/tr-1.json": encoded,
	}}
	store := NewGitStore("origin/main", "snapshots", client)

	loaded, err := store.Load("tr-1")
	require.NoError(t, err)
	assert.Equal(t, "tr-1", loaded.TraceID)
	assert.Equal(t, "abc123", loaded.RulesHash)

	_, err = store.Load("tr-2")
	assert.Error(t, err)

	assert.Error(t, store.Save(sampleFindings("tr-1")))
}
