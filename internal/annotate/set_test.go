package annotate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/regrada-ai/tracemark/internal/model"
	"github.com/regrada-ai/tracemark/internal/span"
)

func mustPath(t *testing.T, s string) Path {
	t.Helper()
	p, err := ParsePath(s)
	require.NoError(t, err)
	return p
}

func TestFromMappingRejectsMalformedPath(t *testing.T) {
	_, err := FromMapping(Mapping{
		"messages[0].content": Freeform("fine"),
		"messages[1":          Freeform("broken"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messages[1")
}

func TestScopeChain(t *testing.T) {
	set, err := FromMapping(Mapping{
		"messages[0].content":                     Freeform("note a"),
		"messages[0].tool_calls[0].function.name": Explicit(model.Annotation{Content: "note b"}),
	})
	require.NoError(t, err)

	scoped := set.ForPath(mustPath(t, "messages[0]"))
	assert.Equal(t, 2, scoped.Count())
	assert.Empty(t, scoped.RootAnnotations())
	assert.Equal(t, []string{"content", "tool_calls[0].function.name"}, scoped.Paths())

	fn := scoped.ForPath(mustPath(t, "tool_calls[0].function"))
	assert.Equal(t, []string{"name"}, fn.Paths())

	name := fn.ForPath(mustPath(t, "name"))
	require.Len(t, name.RootAnnotations(), 1)
	assert.Equal(t, "note b", name.RootAnnotations()[0].Content)

	assert.True(t, set.ForPath(mustPath(t, "messages[1]")).Empty())
}

func TestScopeComparesSegments(t *testing.T) {
	set, err := FromMapping(Mapping{
		"messages[1].content":  Freeform("first"),
		"messages[10].content": Freeform("tenth"),
	})
	require.NoError(t, err)

	scoped := set.ForPath(mustPath(t, "messages[1]"))
	assert.Equal(t, 1, scoped.Count())
	require.Len(t, scoped.ForPath(mustPath(t, "content")).RootAnnotations(), 1)
	assert.Equal(t, "first", scoped.ForPath(mustPath(t, "content")).RootAnnotations()[0].Content)
}

func TestScopeIsPure(t *testing.T) {
	set, err := FromMapping(Mapping{
		"messages[0].content": Freeform("a"),
		"messages[1].content": Freeform("b"),
	})
	require.NoError(t, err)

	before := set.Paths()
	_ = set.ForPath(mustPath(t, "messages[0]"))
	_ = set.ForPath(mustPath(t, "messages[0]")).ForPath(mustPath(t, "content"))
	assert.Equal(t, before, set.Paths())
	assert.Equal(t, 2, set.Count())
}

func TestRootAnnotationsExcludeDescendants(t *testing.T) {
	set, err := FromMapping(Mapping{
		"":                    Freeform("whole document"),
		"messages[0].content": Freeform("child"),
	})
	require.NoError(t, err)

	roots := set.RootAnnotations()
	require.Len(t, roots, 1)
	assert.Equal(t, "whole document", roots[0].Content)
	assert.Equal(t, 2, set.Count())
}

func TestInText(t *testing.T) {
	tests := []struct {
		name string
		ann  model.Annotation
		text string
		want span.Interval
	}{
		{
			name: "no range covers whole text",
			ann:  model.Annotation{Content: "all"},
			text: "hello world",
			want: span.Interval{Start: 0, End: 11},
		},
		{
			name: "explicit range kept",
			ann:  model.Annotation{Content: "word"}.WithRange(6, 11),
			text: "hello world",
			want: span.Interval{Start: 6, End: 11},
		},
		{
			name: "end clamped to text length",
			ann:  model.Annotation{Content: "over"}.WithRange(6, 99),
			text: "hello world",
			want: span.Interval{Start: 6, End: 11},
		},
		{
			name: "start clamped to zero",
			ann:  model.Annotation{Content: "under"}.WithRange(-4, 5),
			text: "hello world",
			want: span.Interval{Start: 0, End: 5},
		},
		{
			name: "start past end of text",
			ann:  model.Annotation{Content: "beyond"}.WithRange(40, 50),
			text: "hello",
			want: span.Interval{Start: 5, End: 5},
		},
		{
			name: "inverted range collapses",
			ann:  model.Annotation{Content: "inverted"}.WithRange(5, 2),
			text: "hello world",
			want: span.Interval{Start: 5, End: 5},
		},
		{
			name: "empty text",
			ann:  model.Annotation{Content: "anything"}.WithRange(3, 9),
			text: "",
			want: span.Interval{Start: 0, End: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := FromMapping(Mapping{"": Explicit(tt.ann)})
			require.NoError(t, err)

			got := set.InText(tt.text)
			require.Len(t, got, 1)
			tt.want.Content = []model.Annotation{tt.ann}
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestInTextKeepsAnnotationOrder(t *testing.T) {
	a := model.Annotation{Content: "A"}.WithRange(0, 5)
	b := model.Annotation{Content: "B"}.WithRange(0, 5)
	set, err := FromMapping(Mapping{"": Explicit(a, b)})
	require.NoError(t, err)

	resolved := span.Disjunct(set.InText("hello"))
	require.Len(t, resolved, 1)
	assert.Equal(t, []model.Annotation{a, b}, resolved[0].Content)
}

// Resolving a store built from a plain-text note over "hello world" walks
// the whole pipeline: promote, resolve, disjunct, pad.
func TestResolvePipeline(t *testing.T) {
	text := "hello world"
	set, err := FromMapping(Mapping{
		"": Explicit(model.Annotation{Content: "greeting"}.WithRange(0, 5)),
	})
	require.NoError(t, err)

	resolved := span.Pad(span.Disjunct(set.InText(text)), len(text))
	require.Len(t, resolved, 2)
	assert.Equal(t, 0, resolved[0].Start)
	assert.Equal(t, 5, resolved[0].End)
	require.Len(t, resolved[0].Content, 1)
	assert.Equal(t, "greeting", resolved[0].Content[0].Content)
	assert.Equal(t, span.Interval{Start: 5, End: 11}, resolved[1])
}

func TestSetDeterminism(t *testing.T) {
	build := func() *Set {
		set, err := FromMapping(Mapping{
			"messages[2].content":                          Freeform("c"),
			"messages[0].content":                          Freeform("a"),
			"messages[0].tool_calls[0].function.arguments": Explicit(model.Annotation{Content: "args"}.WithRange(1, 4)),
			"messages[10].content":                         Freeform("j"),
		})
		require.NoError(t, err)
		return set
	}

	first := build()
	second := build()
	assert.Equal(t, first.Paths(), second.Paths())
	assert.Equal(t, first.Version(), second.Version())
	assert.NotEmpty(t, first.Version())
}

func TestSetVersionTracksContent(t *testing.T) {
	a, err := FromMapping(Mapping{"messages[0].content": Freeform("x")})
	require.NoError(t, err)
	b, err := FromMapping(Mapping{"messages[0].content": Freeform("y")})
	require.NoError(t, err)

	assert.NotEqual(t, a.Version(), b.Version())
}

func TestEntryUnionYAML(t *testing.T) {
	doc := `
messages[0].content: just a note
messages[1].content:
  - content: flagged
    start: 3
    end: 9
  - content: whole value
`
	var m Mapping
	require.NoError(t, yaml.Unmarshal([]byte(doc), &m))

	freeform := m["messages[0].content"].Resolved()
	require.Len(t, freeform, 1)
	assert.Equal(t, "just a note", freeform[0].Content)
	assert.True(t, freeform[0].WholeValue())

	explicit := m["messages[1].content"].Resolved()
	require.Len(t, explicit, 2)
	assert.Equal(t, model.Annotation{Content: "flagged"}.WithRange(3, 9), explicit[0])
	assert.True(t, explicit[1].WholeValue())
}

func TestEntryUnionRejectsMappingValue(t *testing.T) {
	var m Mapping
	err := yaml.Unmarshal([]byte("messages[0].content:\n  nested: true\n"), &m)
	assert.Error(t, err)
}

func TestMappingAddAndMerge(t *testing.T) {
	manual := Mapping{"messages[0].content": Freeform("manual note")}
	checked := Mapping{
		"messages[0].content": Explicit(model.Annotation{Content: "flagged"}.WithRange(0, 3)),
		"messages[1].content": Freeform("only here"),
	}

	merged := Merge(manual, checked)
	got := merged["messages[0].content"].Resolved()
	require.Len(t, got, 2)
	assert.Equal(t, "manual note", got[0].Content)
	assert.Equal(t, "flagged", got[1].Content)
	assert.Len(t, merged["messages[1].content"].Resolved(), 1)

	// Inputs stay untouched.
	assert.Len(t, manual["messages[0].content"].Resolved(), 1)
	assert.Len(t, checked["messages[0].content"].Resolved(), 1)
}

func TestMappingRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annotations.yml")

	m := Mapping{
		"messages[0].content": Freeform("plain"),
		"messages[1].content": Explicit(
			model.Annotation{Content: "ranged", Extra: map[string]string{"source": "manual"}}.WithRange(2, 6),
		),
	}
	require.NoError(t, WriteMapping(path, m))

	loaded, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, "plain", loaded["messages[0].content"].Text)
	assert.Equal(t, m["messages[1].content"].Resolved(), loaded["messages[1].content"].Resolved())
}
