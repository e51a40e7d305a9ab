package model

// Annotation is one piece of commentary attached to a value in a trace.
// Start and End, when both set, select a half-open [start,end) character
// range within the value's serialized text; nil means the whole value.
// Annotations are immutable once constructed: updates build new values.
type Annotation struct {
	Content string            `json:"content" yaml:"content"`
	Start   *int              `json:"start,omitempty" yaml:"start,omitempty"`
	End     *int              `json:"end,omitempty" yaml:"end,omitempty"`
	Extra   map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// WholeValue reports whether the annotation covers the entire value rather
// than an explicit character range.
func (a Annotation) WholeValue() bool {
	return a.Start == nil || a.End == nil
}

// WithRange returns a copy of the annotation pinned to [start,end).
func (a Annotation) WithRange(start, end int) Annotation {
	a.Start = &start
	a.End = &end
	return a
}

// WithExtra returns a copy with key set in Extra. The receiver's map is not
// modified.
func (a Annotation) WithExtra(key, value string) Annotation {
	extra := make(map[string]string, len(a.Extra)+1)
	for k, v := range a.Extra {
		extra[k] = v
	}
	extra[key] = value
	a.Extra = extra
	return a
}

type ToolCall struct {
	ID       string       `json:"id,omitempty" yaml:"id,omitempty"`
	Type     string       `json:"type,omitempty" yaml:"type,omitempty"`
	Function FunctionCall `json:"function" yaml:"function"`
}

type FunctionCall struct {
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}
