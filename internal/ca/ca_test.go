package ca

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ca")
	assert.False(t, Exists(dir))

	generated, err := Generate(dir)
	require.NoError(t, err)
	assert.True(t, Exists(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, generated.Cert().SerialNumber, loaded.Cert().SerialNumber)
	assert.Equal(t, "Tracemark Root CA", loaded.Cert().Subject.CommonName)
	assert.True(t, loaded.Cert().IsCA)

	info, err := os.Stat(loaded.KeyPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "key file stays private")
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
