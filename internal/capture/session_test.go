package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := NewSession("forward")
	s.AddTrace("tr-b")
	s.AddTrace("tr-a")
	s.AddTrace("tr-b")
	s.AddTrace("")
	s.Finalize()

	path, err := s.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, s.ID+".json"), path)

	loaded, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, "forward", loaded.Mode)
	assert.Equal(t, []string{"tr-a", "tr-b"}, loaded.TraceIDs)
	assert.False(t, loaded.EndedAt.IsZero())
}

func TestLatestSession(t *testing.T) {
	dir := t.TempDir()

	_, err := LatestSession(dir)
	assert.Error(t, err)

	first := &Session{ID: "20240101-000000", Mode: "reverse"}
	firstPath, err := first.Save(dir)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(firstPath, past, past))

	second := &Session{ID: "20240102-000000", Mode: "reverse"}
	path, err := second.Save(dir)
	require.NoError(t, err)

	latest, err := LatestSession(dir)
	require.NoError(t, err)
	assert.Equal(t, path, latest)
}
