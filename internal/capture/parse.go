// Package capture turns proxied chat completion traffic into stored trace
// documents. Both proxy modes share this parsing layer and the redactor: the
// forward proxy man-in-the-middles TLS to allowlisted provider hosts, the
// reverse proxy fronts a single configured upstream.
package capture

import (
	"encoding/json"
	"strings"

	"github.com/regrada-ai/tracemark/internal/model"
	"github.com/regrada-ai/tracemark/internal/trace"
)

// BuildDocument converts a captured request/response body pair into a trace
// document: the request's message list followed by the assistant turn from
// the response. The second return is the model named in the request, falling
// back to the one echoed in the response.
func BuildDocument(requestBody, responseBody []byte) (*trace.Document, string) {
	events, modelName := parseRequestEvents(requestBody)
	respEvents, respModel := parseResponseEvents(responseBody)
	events = append(events, respEvents...)
	if modelName == "" {
		modelName = respModel
	}
	return &trace.Document{Events: events}, modelName
}

func parseRequestEvents(body []byte) ([]trace.Event, string) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ""
	}
	modelName, _ := payload["model"].(string)

	var events []trace.Event
	if rawMessages, ok := payload["messages"].([]any); ok {
		for _, item := range rawMessages {
			msgMap, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if ev, ok := messageEvent(msgMap); ok {
				events = append(events, ev)
			}
		}
	}

	if len(events) == 0 {
		if prompt, ok := payload["prompt"].(string); ok && prompt != "" {
			events = append(events, trace.Event{Role: "user", Content: prompt})
		}
	}
	return events, modelName
}

// parseResponseEvents extracts the assistant turn from a completion
// response. OpenAI-style bodies carry it under choices[0], Anthropic-style
// ones at the top level as a content block list.
func parseResponseEvents(body []byte) ([]trace.Event, string) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ""
	}
	modelName, _ := payload["model"].(string)

	if choices, ok := payload["choices"].([]any); ok && len(choices) > 0 {
		choice, ok := choices[0].(map[string]any)
		if !ok {
			return nil, modelName
		}
		if message, ok := choice["message"].(map[string]any); ok {
			if ev, ok := messageEvent(message); ok {
				return []trace.Event{ev}, modelName
			}
			return nil, modelName
		}
		if text, ok := choice["text"].(string); ok && text != "" {
			return []trace.Event{{Role: "assistant", Content: text}}, modelName
		}
		return nil, modelName
	}

	if blocks, ok := payload["content"].([]any); ok {
		ev := trace.Event{
			Role:      "assistant",
			Content:   blockText(blocks),
			ToolCalls: blockToolCalls(blocks),
		}
		if role, ok := payload["role"].(string); ok && role != "" {
			ev.Role = role
		}
		if ev.Content != "" || len(ev.ToolCalls) > 0 {
			return []trace.Event{ev}, modelName
		}
		return nil, modelName
	}

	if content, ok := payload["content"].(string); ok && content != "" {
		return []trace.Event{{Role: "assistant", Content: content}}, modelName
	}
	return nil, modelName
}

// messageEvent builds a chat event from a wire message object. Content may
// be a plain string or a block list; tool calls appear either as an OpenAI
// tool_calls array or as Anthropic tool_use blocks inside the content.
func messageEvent(msg map[string]any) (trace.Event, bool) {
	role, _ := msg["role"].(string)
	if role == "" {
		return trace.Event{}, false
	}

	ev := trace.Event{Role: role}
	switch v := msg["content"].(type) {
	case string:
		ev.Content = v
	case []any:
		ev.Content = blockText(v)
		ev.ToolCalls = blockToolCalls(v)
	}
	if raw, ok := msg["tool_calls"].([]any); ok {
		ev.ToolCalls = append(ev.ToolCalls, toolCalls(raw)...)
	}

	if ev.Content == "" && len(ev.ToolCalls) == 0 {
		return trace.Event{}, false
	}
	return ev, true
}

func toolCalls(raw []any) []model.ToolCall {
	var calls []model.ToolCall
	for _, item := range raw {
		callMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fnMap, ok := callMap["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fnMap["name"].(string)
		if name == "" {
			continue
		}
		args, _ := fnMap["arguments"].(string)
		id, _ := callMap["id"].(string)
		calls = append(calls, model.ToolCall{
			ID:       id,
			Type:     "function",
			Function: model.FunctionCall{Name: name, Arguments: args},
		})
	}
	return calls
}

// blockToolCalls lifts Anthropic tool_use blocks into the tool-call shape
// the document walker expects, re-encoding the input object as JSON text.
func blockToolCalls(blocks []any) []model.ToolCall {
	var calls []model.ToolCall
	for _, block := range blocks {
		blockMap, ok := block.(map[string]any)
		if !ok || blockMap["type"] != "tool_use" {
			continue
		}
		name, _ := blockMap["name"].(string)
		if name == "" {
			continue
		}
		args := ""
		if input, ok := blockMap["input"]; ok && input != nil {
			if data, err := json.Marshal(input); err == nil {
				args = string(data)
			}
		}
		id, _ := blockMap["id"].(string)
		calls = append(calls, model.ToolCall{
			ID:       id,
			Type:     "function",
			Function: model.FunctionCall{Name: name, Arguments: args},
		})
	}
	return calls
}

func blockText(blocks []any) string {
	var parts []string
	for _, block := range blocks {
		blockMap, ok := block.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := blockMap["text"].(string); ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "")
}
