package capture

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostMatcher(t *testing.T) {
	m := newHostMatcher([]string{"api.openai.com", "API.Anthropic.com"})

	assert.True(t, m.isAllowed("api.openai.com"))
	assert.True(t, m.isAllowed("Api.OpenAI.com"))
	assert.True(t, m.isAllowed("api.anthropic.com"))
	assert.False(t, m.isAllowed("evil.example.com"))

	// CONNECT targets carry a port
	assert.True(t, m.isAllowed("api.openai.com:443"))
	assert.False(t, m.isAllowed("evil.example.com:443"))

	assert.Equal(t, "openai", m.provider("api.openai.com"))
	assert.Equal(t, "openai", m.provider("api.openai.com:443"))
	assert.Equal(t, "anthropic", m.provider("api.anthropic.com"))
}

func TestDeriveProvider(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"api.openai.com", "openai"},
		{"myname.openai.azure.com", "azure_openai"},
		{"api.anthropic.com", "anthropic"},
		{"bedrock-runtime.us-east-1.amazonaws.com", "bedrock"},
		{"generativelanguage.googleapis.com", "generativelanguage"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, deriveProvider(tt.host), tt.host)
	}
}

func TestDecodeBody(t *testing.T) {
	plain := []byte(`{"ok":true}`)

	headers := http.Header{}
	assert.Equal(t, plain, decodeBody(plain, headers))

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	headers.Set("Content-Encoding", "gzip")
	assert.Equal(t, plain, decodeBody(buf.Bytes(), headers))

	// Broken gzip falls back to the raw bytes
	assert.Equal(t, []byte("junk"), decodeBody([]byte("junk"), headers))
}
