package annotate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/regrada-ai/tracemark/internal/model"
)

// Entry is one mapping value: freeform text, or an explicit list of
// annotation records with optional character ranges. Which arm an entry
// carries is decided once, when the mapping is decoded or constructed;
// afterwards Resolved gives the normalized view and nothing downstream
// re-checks the shape.
type Entry struct {
	Text        string
	Annotations []model.Annotation
}

// Freeform builds an entry from plain commentary text.
func Freeform(text string) Entry {
	return Entry{Text: text}
}

// Explicit builds an entry from annotation records.
func Explicit(anns ...model.Annotation) Entry {
	return Entry{Annotations: anns}
}

// Resolved returns the entry's annotations with freeform text promoted to a
// single annotation covering the whole value.
func (e Entry) Resolved() []model.Annotation {
	if len(e.Annotations) > 0 {
		return e.Annotations
	}
	if e.Text == "" {
		return nil
	}
	return []model.Annotation{{Content: e.Text}}
}

func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*e = Entry{Text: s}
		return nil
	case yaml.SequenceNode:
		var list []model.Annotation
		if err := value.Decode(&list); err != nil {
			return err
		}
		*e = Entry{Annotations: list}
		return nil
	default:
		return fmt.Errorf("annotation entry must be text or a list of annotations")
	}
}

func (e Entry) MarshalYAML() (any, error) {
	if len(e.Annotations) == 0 {
		return e.Text, nil
	}
	return e.Annotations, nil
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = Entry{Text: s}
		return nil
	}
	var list []model.Annotation
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("annotation entry must be text or a list of annotations")
	}
	*e = Entry{Annotations: list}
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e.Annotations) == 0 {
		return json.Marshal(e.Text)
	}
	return json.Marshal(e.Annotations)
}

// Mapping is the serialized form of an annotation set: document path to
// entry.
type Mapping map[string]Entry

// Add appends annotations to the entry at path, normalizing freeform text
// first. The stored slice is always freshly allocated, so entries loaded
// from other mappings are never written through.
func (m Mapping) Add(path string, anns ...model.Annotation) {
	resolved := m[path].Resolved()
	merged := make([]model.Annotation, 0, len(resolved)+len(anns))
	merged = append(merged, resolved...)
	merged = append(merged, anns...)
	m[path] = Entry{Annotations: merged}
}

// Paths returns the mapping's keys sorted.
func (m Mapping) Paths() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Merge combines two mappings into a new one, appending src's annotations
// after dst's for paths both address. Neither input is modified.
func Merge(dst, src Mapping) Mapping {
	out := make(Mapping, len(dst)+len(src))
	for p, e := range dst {
		out[p] = Entry{Annotations: e.Resolved()}
	}
	for p, e := range src {
		out.Add(p, e.Resolved()...)
	}
	return out
}

// LoadMapping reads an annotation mapping from a YAML or JSON file,
// selected by extension.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Mapping
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse annotations %s: %w", path, err)
		}
		return m, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse annotations %s: %w", path, err)
	}
	return m, nil
}

// WriteMapping writes the mapping as YAML, creating parent directories as
// needed. Keys are emitted sorted, so identical mappings produce identical
// files.
func WriteMapping(path string, m Mapping) error {
	buf := &bytes.Buffer{}
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
