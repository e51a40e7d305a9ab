package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDocumentOpenAI(t *testing.T) {
	request := []byte(`{
		"model": "gpt-4o-mini",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "weather in Paris?"}
		]
	}`)
	response := []byte(`{
		"model": "gpt-4o-mini-2024-07-18",
		"choices": [{
			"message": {
				"role": "assistant",
				"content": null,
				"tool_calls": [{
					"id": "call_1",
					"type": "function",
					"function": {"name": "get_weather", "arguments": "{\"city\":\"Paris\"}"}
				}]
			}
		}]
	}`)

	doc, modelName := BuildDocument(request, response)

	assert.Equal(t, "gpt-4o-mini", modelName)
	require.Len(t, doc.Events, 3)

	assert.Equal(t, "system", doc.Events[0].Role)
	assert.Equal(t, "be brief", doc.Events[0].Content)
	assert.Equal(t, "user", doc.Events[1].Role)
	assert.Equal(t, "weather in Paris?", doc.Events[1].Content)

	last := doc.Events[2]
	assert.Equal(t, "assistant", last.Role)
	assert.Empty(t, last.Content)
	require.Len(t, last.ToolCalls, 1)
	assert.Equal(t, "call_1", last.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", last.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"city":"Paris"}`, last.ToolCalls[0].Function.Arguments)
}

func TestBuildDocumentAnthropic(t *testing.T) {
	request := []byte(`{
		"model": "claude-sonnet-4",
		"messages": [
			{"role": "user", "content": [{"type": "text", "text": "find go docs"}]}
		]
	}`)
	response := []byte(`{
		"role": "assistant",
		"content": [
			{"type": "text", "text": "Searching now."},
			{"type": "tool_use", "id": "toolu_1", "name": "search", "input": {"query": "go docs"}}
		]
	}`)

	doc, modelName := BuildDocument(request, response)

	assert.Equal(t, "claude-sonnet-4", modelName)
	require.Len(t, doc.Events, 2)
	assert.Equal(t, "user", doc.Events[0].Role)
	assert.Equal(t, "find go docs", doc.Events[0].Content)

	last := doc.Events[1]
	assert.Equal(t, "assistant", last.Role)
	assert.Equal(t, "Searching now.", last.Content)
	require.Len(t, last.ToolCalls, 1)
	assert.Equal(t, "toolu_1", last.ToolCalls[0].ID)
	assert.Equal(t, "search", last.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"query":"go docs"}`, last.ToolCalls[0].Function.Arguments)
}

func TestBuildDocumentLegacyCompletion(t *testing.T) {
	request := []byte(`{"model": "gpt-3.5-turbo-instruct", "prompt": "say hi"}`)
	response := []byte(`{"choices": [{"text": "hi there"}]}`)

	doc, modelName := BuildDocument(request, response)

	assert.Equal(t, "gpt-3.5-turbo-instruct", modelName)
	require.Len(t, doc.Events, 2)
	assert.Equal(t, "user", doc.Events[0].Role)
	assert.Equal(t, "say hi", doc.Events[0].Content)
	assert.Equal(t, "assistant", doc.Events[1].Role)
	assert.Equal(t, "hi there", doc.Events[1].Content)
}

func TestBuildDocumentModelFromResponse(t *testing.T) {
	request := []byte(`{"messages": [{"role": "user", "content": "ping"}]}`)
	response := []byte(`{"model": "gpt-4o", "choices": [{"message": {"role": "assistant", "content": "pong"}}]}`)

	_, modelName := BuildDocument(request, response)
	assert.Equal(t, "gpt-4o", modelName)
}

func TestBuildDocumentNonChatBodies(t *testing.T) {
	doc, modelName := BuildDocument([]byte("not json"), []byte(`{"object": "list", "data": []}`))
	assert.Empty(t, doc.Events)
	assert.Empty(t, modelName)
}

func TestBuildDocumentSkipsEmptyMessages(t *testing.T) {
	request := []byte(`{
		"messages": [
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": ""},
			{"content": "no role"}
		]
	}`)

	doc, _ := BuildDocument(request, nil)
	require.Len(t, doc.Events, 1)
	assert.Equal(t, "user", doc.Events[0].Role)
}
