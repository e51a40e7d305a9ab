package span

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regrada-ai/tracemark/internal/model"
)

func anns(names ...string) []model.Annotation {
	var out []model.Annotation
	for _, n := range names {
		out = append(out, model.Annotation{Content: n})
	}
	return out
}

func TestDisjunct(t *testing.T) {
	tests := []struct {
		name  string
		input []Interval
		want  []Interval
	}{
		{
			name:  "empty input",
			input: nil,
			want:  nil,
		},
		{
			name:  "single interval unchanged",
			input: []Interval{{Start: 0, End: 5, Content: anns("greeting")}},
			want:  []Interval{{Start: 0, End: 5, Content: anns("greeting")}},
		},
		{
			name: "overlap splits at every boundary",
			input: []Interval{
				{Start: 0, End: 6, Content: anns("A")},
				{Start: 3, End: 9, Content: anns("B")},
			},
			want: []Interval{
				{Start: 0, End: 3, Content: anns("A")},
				{Start: 3, End: 6, Content: anns("A", "B")},
				{Start: 6, End: 9, Content: anns("B")},
			},
		},
		{
			name: "identical ranges keep input order",
			input: []Interval{
				{Start: 0, End: 5, Content: anns("A")},
				{Start: 0, End: 5, Content: anns("B")},
			},
			want: []Interval{{Start: 0, End: 5, Content: anns("A", "B")}},
		},
		{
			name: "interior hole kept explicit",
			input: []Interval{
				{Start: 0, End: 2, Content: anns("A")},
				{Start: 5, End: 8, Content: anns("B")},
			},
			want: []Interval{
				{Start: 0, End: 2, Content: anns("A")},
				{Start: 2, End: 5},
				{Start: 5, End: 8, Content: anns("B")},
			},
		},
		{
			name: "nested range",
			input: []Interval{
				{Start: 0, End: 10, Content: anns("outer")},
				{Start: 2, End: 4, Content: anns("inner")},
			},
			want: []Interval{
				{Start: 0, End: 2, Content: anns("outer")},
				{Start: 2, End: 4, Content: anns("outer", "inner")},
				{Start: 4, End: 10, Content: anns("outer")},
			},
		},
		{
			name: "adjacent ranges stay separate",
			input: []Interval{
				{Start: 0, End: 3, Content: anns("A")},
				{Start: 3, End: 6, Content: anns("B")},
			},
			want: []Interval{
				{Start: 0, End: 3, Content: anns("A")},
				{Start: 3, End: 6, Content: anns("B")},
			},
		},
		{
			name: "zero-length input contributes nothing",
			input: []Interval{
				{Start: 0, End: 5, Content: anns("A")},
				{Start: 3, End: 3, Content: anns("empty")},
			},
			want: []Interval{
				{Start: 0, End: 3, Content: anns("A")},
				{Start: 3, End: 5, Content: anns("A")},
			},
		},
		{
			name: "unsorted input sorts by position",
			input: []Interval{
				{Start: 6, End: 9, Content: anns("late")},
				{Start: 0, End: 3, Content: anns("early")},
			},
			want: []Interval{
				{Start: 0, End: 3, Content: anns("early")},
				{Start: 3, End: 6},
				{Start: 6, End: 9, Content: anns("late")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Disjunct(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Every input annotation must reappear in every output sub-range its span
// covers, and output sub-ranges must carry nothing else.
func TestDisjunctCoverage(t *testing.T) {
	inputs := [][]Interval{
		{
			{Start: 0, End: 6, Content: anns("A")},
			{Start: 3, End: 9, Content: anns("B")},
			{Start: 4, End: 5, Content: anns("C")},
		},
		{
			{Start: 10, End: 20, Content: anns("X", "Y")},
			{Start: 0, End: 15, Content: anns("Z")},
			{Start: 15, End: 15, Content: anns("degenerate")},
		},
	}

	for _, input := range inputs {
		out := Disjunct(input)
		for _, o := range out {
			var want []model.Annotation
			for _, in := range input {
				if in.Start <= o.Start && o.End <= in.End && in.Start < in.End {
					want = append(want, in.Content...)
				}
			}
			assert.Equal(t, want, o.Content, "sub-range [%d,%d)", o.Start, o.End)
		}
	}
}

func TestDisjunctIdempotent(t *testing.T) {
	input := []Interval{
		{Start: 0, End: 6, Content: anns("A")},
		{Start: 3, End: 9, Content: anns("B")},
		{Start: 8, End: 12, Content: anns("C")},
	}

	once := Disjunct(input)
	twice := Disjunct(once)
	assert.Equal(t, once, twice)
}

func TestDisjunctContiguous(t *testing.T) {
	input := []Interval{
		{Start: 2, End: 4, Content: anns("A")},
		{Start: 9, End: 11, Content: anns("B")},
		{Start: 3, End: 6, Content: anns("C")},
	}

	out := Disjunct(input)
	require.NotEmpty(t, out)
	assert.Equal(t, 2, out[0].Start)
	assert.Equal(t, 11, out[len(out)-1].End)
	for i := 1; i < len(out); i++ {
		assert.Equal(t, out[i-1].End, out[i].Start, "partition must not skip offsets")
	}
}

func TestByLines(t *testing.T) {
	tests := []struct {
		name      string
		intervals []Interval
		text      string
		want      [][]Interval
	}{
		{
			name: "annotation split at line boundary",
			intervals: []Interval{
				{Start: 0, End: 1},
				{Start: 1, End: 4, Content: anns("crossing")},
				{Start: 4, End: 5},
			},
			text: "ab\ncd",
			want: [][]Interval{
				{
					{Start: 0, End: 1},
					{Start: 1, End: 2, Content: anns("crossing")},
				},
				{
					{Start: 0, End: 1, Content: anns("crossing")},
					{Start: 1, End: 2},
				},
			},
		},
		{
			name:      "single line no intervals",
			intervals: nil,
			text:      "hello",
			want:      [][]Interval{{{Start: 0, End: 5}}},
		},
		{
			name:      "empty text single empty line",
			intervals: nil,
			text:      "",
			want:      [][]Interval{{{Start: 0, End: 0}}},
		},
		{
			name:      "trailing newline yields empty final line",
			intervals: []Interval{{Start: 0, End: 2, Content: anns("A")}},
			text:      "a\n",
			want: [][]Interval{
				{{Start: 0, End: 1, Content: anns("A")}},
				{{Start: 0, End: 0}},
			},
		},
		{
			name:      "interval straddling three lines",
			intervals: []Interval{{Start: 0, End: 8, Content: anns("all")}},
			text:      "aa\nbb\ncc",
			want: [][]Interval{
				{{Start: 0, End: 2, Content: anns("all")}},
				{{Start: 0, End: 2, Content: anns("all")}},
				{{Start: 0, End: 2, Content: anns("all")}},
			},
		},
		{
			name:      "interval past end of text clipped",
			intervals: []Interval{{Start: 1, End: 99, Content: anns("A")}},
			text:      "abc",
			want:      [][]Interval{{{Start: 1, End: 3, Content: anns("A")}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ByLines(tt.intervals, tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

// byLines must return exactly one outer entry per physical line, whatever
// the interval input.
func TestByLinesLineCount(t *testing.T) {
	texts := []string{
		"",
		"a",
		"a\n",
		"a\nb\nc",
		"\n\n",
		"line one\n\nline three\n",
	}
	intervals := []Interval{{Start: 0, End: 4, Content: anns("A")}}

	for _, text := range texts {
		wantLines := strings.Count(text, "\n") + 1
		assert.Len(t, ByLines(intervals, text), wantLines, "text %q", text)
		assert.Len(t, ByLines(nil, text), wantLines, "text %q without intervals", text)
	}
}

func TestPad(t *testing.T) {
	tests := []struct {
		name      string
		intervals []Interval
		length    int
		want      []Interval
	}{
		{
			name:   "empty input covers whole text",
			length: 11,
			want:   []Interval{{Start: 0, End: 11}},
		},
		{
			name:   "empty input zero length",
			length: 0,
			want:   nil,
		},
		{
			name: "head and tail holes added",
			intervals: []Interval{
				{Start: 3, End: 6, Content: anns("A")},
			},
			length: 10,
			want: []Interval{
				{Start: 0, End: 3},
				{Start: 3, End: 6, Content: anns("A")},
				{Start: 6, End: 10},
			},
		},
		{
			name: "exact coverage unchanged",
			intervals: []Interval{
				{Start: 0, End: 5, Content: anns("A")},
				{Start: 5, End: 8, Content: anns("B")},
			},
			length: 8,
			want: []Interval{
				{Start: 0, End: 5, Content: anns("A")},
				{Start: 5, End: 8, Content: anns("B")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pad(tt.intervals, tt.length))
		})
	}
}

// Annotating the first word of "hello world" resolves to exactly two
// intervals: the annotated word and the unannotated remainder.
func TestResolveScenario(t *testing.T) {
	text := "hello world"
	greeting := model.Annotation{Content: "greeting"}.WithRange(0, 5)

	resolved := Pad(Disjunct([]Interval{{Start: 0, End: 5, Content: []model.Annotation{greeting}}}), len(text))

	require.Len(t, resolved, 2)
	assert.Equal(t, Interval{Start: 0, End: 5, Content: []model.Annotation{greeting}}, resolved[0])
	assert.Equal(t, Interval{Start: 5, End: 11}, resolved[1])
}
