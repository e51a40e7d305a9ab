package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Path
	}{
		{
			name: "root",
			in:   "",
			want: nil,
		},
		{
			name: "single field",
			in:   "messages",
			want: Path{{Kind: FieldSegment, Field: "messages"}},
		},
		{
			name: "field with index",
			in:   "messages[3]",
			want: Path{
				{Kind: FieldSegment, Field: "messages"},
				{Kind: IndexSegment, Index: 3},
			},
		},
		{
			name: "consecutive indexes",
			in:   "grid[1][2]",
			want: Path{
				{Kind: FieldSegment, Field: "grid"},
				{Kind: IndexSegment, Index: 1},
				{Kind: IndexSegment, Index: 2},
			},
		},
		{
			name: "deep tool call path",
			in:   "messages[3].tool_calls[0].function.arguments.query",
			want: Path{
				{Kind: FieldSegment, Field: "messages"},
				{Kind: IndexSegment, Index: 3},
				{Kind: FieldSegment, Field: "tool_calls"},
				{Kind: IndexSegment, Index: 0},
				{Kind: FieldSegment, Field: "function"},
				{Kind: FieldSegment, Field: "arguments"},
				{Kind: FieldSegment, Field: "query"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unbalanced open bracket", "messages[3"},
		{"unbalanced close bracket", "messages3]"},
		{"empty index", "messages[]"},
		{"non-numeric index", "messages[abc]"},
		{"negative index", "messages[-1]"},
		{"leading dot", ".content"},
		{"trailing dot", "messages."},
		{"double dot", "messages..content"},
		{"dot before bracket", "messages.[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePath(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestPathBuilders(t *testing.T) {
	p := Path(nil).Child("messages").At(2).Child("content")
	assert.Equal(t, "messages[2].content", p.String())

	base := Path(nil).Child("messages")
	a := base.At(0)
	b := base.At(1)
	assert.Equal(t, "messages[0]", a.String())
	assert.Equal(t, "messages[1]", b.String(), "siblings must not share segments")
	assert.Equal(t, "messages", base.String())
}

func TestPathPrefix(t *testing.T) {
	parse := func(s string) Path {
		p, err := ParsePath(s)
		require.NoError(t, err)
		return p
	}

	tests := []struct {
		name   string
		path   string
		prefix string
		want   bool
	}{
		{"self", "messages[0].content", "messages[0].content", true},
		{"ancestor", "messages[0].tool_calls[1].function", "messages[0]", true},
		{"root is ancestor of everything", "messages[0]", "", true},
		{"similar field name is not a prefix", "msg10.content", "msg1", false},
		{"similar index is not a prefix", "messages[10].content", "messages[1]", false},
		{"field does not match index", "messages[0]", "messages.x", false},
		{"longer prefix", "messages", "messages[0]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parse(tt.path).HasPrefix(parse(tt.prefix)))
		})
	}
}

func TestPathTrimPrefix(t *testing.T) {
	parse := func(s string) Path {
		p, err := ParsePath(s)
		require.NoError(t, err)
		return p
	}

	trimmed := parse("messages[0].tool_calls[1].function.name").TrimPrefix(parse("messages[0]"))
	assert.Equal(t, "tool_calls[1].function.name", trimmed.String())

	assert.True(t, parse("messages[0]").TrimPrefix(parse("messages[0]")).IsRoot())

	unrelated := parse("messages[2].content").TrimPrefix(parse("messages[1]"))
	assert.Equal(t, "messages[2].content", unrelated.String())
}
