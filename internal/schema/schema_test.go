package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "plain conversation",
			doc:  `[{"role": "user", "content": "hi"}, {"role": "assistant", "content": "hello"}]`,
		},
		{
			name: "assistant with tool calls and null content",
			doc: `[{"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{}"}}
			]}]`,
		},
		{
			name: "bare tool call event",
			doc:  `[{"type": "function", "function": {"name": "search", "arguments": "{\"q\": \"go\"}"}}]`,
		},
		{
			name: "empty document",
			doc:  `[]`,
		},
		{
			name:    "not an array",
			doc:     `{"role": "user", "content": "hi"}`,
			wantErr: true,
		},
		{
			name:    "unknown role",
			doc:     `[{"role": "robot", "content": "hi"}]`,
			wantErr: true,
		},
		{
			name:    "bare event missing function",
			doc:     `[{"type": "function"}]`,
			wantErr: true,
		},
		{
			name:    "tool call missing name",
			doc:     `[{"role": "assistant", "tool_calls": [{"type": "function", "function": {"arguments": "{}"}}]}]`,
			wantErr: true,
		},
		{
			name:    "event with neither role nor type",
			doc:     `[{"content": "orphan"}]`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			doc:     `[{"role": "user"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
