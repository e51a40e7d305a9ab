// Package trace models recorded agent conversations: a document is a JSON
// array of events, either chat messages or bare tool calls. The walker
// exposes the annotatable leaves of a document together with the canonical
// serialized text that annotation offsets address.
package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/regrada-ai/tracemark/internal/annotate"
	"github.com/regrada-ai/tracemark/internal/model"
)

// Event is one element of a trace document. A chat message carries Role,
// Content and optionally ToolCalls; a bare tool-call event carries Type and
// Function with no role.
type Event struct {
	Role      string           `json:"role,omitempty" yaml:"role,omitempty"`
	Content   string           `json:"content,omitempty" yaml:"content,omitempty"`
	ToolCalls []model.ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`

	Type     string              `json:"type,omitempty" yaml:"type,omitempty"`
	Function *model.FunctionCall `json:"function,omitempty" yaml:"function,omitempty"`
}

// IsMessage reports whether the event is a chat message.
func (e Event) IsMessage() bool {
	return e.Role != ""
}

// IsToolCall reports whether the event is a bare tool call.
func (e Event) IsToolCall() bool {
	return e.Role == "" && e.Function != nil
}

// Document is a parsed trace.
type Document struct {
	Events []Event
}

// Parse decodes a trace document. Decoding is lenient about unknown fields;
// strict shape checking is the schema package's job.
func Parse(data []byte) (*Document, error) {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	return &Document{Events: events}, nil
}

// Load reads and parses a trace document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Marshal serializes the document back to its wire form, the indented JSON
// event array.
func (d *Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d.Events, "", "  ")
}

// Leaf is one annotatable node of a document. Text is the canonical
// serialized value annotation offsets are measured against: message content
// and string argument values verbatim and unescaped, other argument values
// as two-space-indented JSON. Role carries the owning event's role and Tool
// the function name for leaves under a tool call, so rule scopes can match
// without re-walking the document.
type Leaf struct {
	Path  annotate.Path
	Title string
	Text  string
	Role  string
	Tool  string
}

// Leaves walks the document in event order and returns its annotatable
// nodes, addressed under the messages root: messages[i].content,
// messages[i].tool_calls[j].function.name and one leaf per top-level
// argument key. Bare tool-call events surface as messages[i].function.
// Annotations at deeper or intermediate paths are not lost; they reach
// renderers through scoped aggregation instead of a leaf.
func (d *Document) Leaves() []Leaf {
	root := annotate.Path(nil).Child("messages")

	var leaves []Leaf
	for i, ev := range d.Events {
		base := root.At(i)
		if ev.IsMessage() {
			leaves = append(leaves, Leaf{
				Path:  base.Child("content"),
				Title: "content",
				Text:  ev.Content,
				Role:  ev.Role,
			})
			for j, tc := range ev.ToolCalls {
				fn := base.Child("tool_calls").At(j).Child("function")
				leaves = append(leaves, functionLeaves(fn, tc.Function, ev.Role)...)
			}
			continue
		}
		if ev.Function != nil {
			leaves = append(leaves, functionLeaves(base.Child("function"), *ev.Function, "")...)
		}
	}
	return leaves
}

func functionLeaves(fn annotate.Path, call model.FunctionCall, role string) []Leaf {
	leaves := []Leaf{{
		Path:  fn.Child("name"),
		Title: "name",
		Text:  call.Name,
		Role:  role,
		Tool:  call.Name,
	}}

	pairs, ok := parseArguments(call.Arguments)
	if !ok {
		if call.Arguments != "" {
			leaves = append(leaves, Leaf{
				Path:  fn.Child("arguments"),
				Title: "arguments",
				Text:  call.Arguments,
				Role:  role,
				Tool:  call.Name,
			})
		}
		return leaves
	}

	args := fn.Child("arguments")
	for _, p := range pairs {
		leaves = append(leaves, Leaf{
			Path:  args.Child(p.key),
			Title: "arguments." + p.key,
			Text:  argumentText(p.raw),
			Role:  role,
			Tool:  call.Name,
		})
	}
	return leaves
}

type argPair struct {
	key string
	raw json.RawMessage
}

// parseArguments splits a JSON-encoded argument object into its top-level
// pairs, preserving wire order. Non-object arguments report ok=false and are
// surfaced as a single raw leaf instead.
func parseArguments(args string) ([]argPair, bool) {
	trimmed := strings.TrimSpace(args)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}

	var pairs []argPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, false
		}
		pairs = append(pairs, argPair{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	return pairs, true
}

func argumentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
