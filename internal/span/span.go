// Package span resolves annotated character ranges into disjoint partitions
// that can be painted sequentially. All functions are pure; inputs are never
// mutated.
package span

import (
	"sort"
	"strings"

	"github.com/regrada-ai/tracemark/internal/model"
)

// Interval is a half-open [Start,End) character range over one serialized
// text. Content lists the annotations covering the range, in input order;
// a nil Content marks an unannotated hole.
type Interval struct {
	Start   int                `json:"start"`
	End     int                `json:"end"`
	Content []model.Annotation `json:"content,omitempty"`
}

// Len returns the number of characters the interval covers.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Disjunct transforms possibly-overlapping intervals into a sorted,
// non-overlapping partition that is contiguous from the smallest input
// Start to the largest input End. Every boundary offset of the input
// becomes a cut point; each sub-range between consecutive cut points is
// emitted once, carrying the annotations of every input interval that
// covers it, in input order. Sub-ranges covered by nothing keep a nil
// Content, so interior holes stay visible. Zero-length sub-ranges are
// dropped. An empty input yields an empty result.
func Disjunct(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	cuts := make([]int, 0, len(intervals)*2)
	for _, iv := range intervals {
		cuts = append(cuts, iv.Start, iv.End)
	}
	sort.Ints(cuts)
	cuts = dedupe(cuts)

	var out []Interval
	for i := 0; i+1 < len(cuts); i++ {
		a, b := cuts[i], cuts[i+1]
		if a >= b {
			continue
		}
		var content []model.Annotation
		for _, iv := range intervals {
			if iv.Start <= a && b <= iv.End {
				content = append(content, iv.Content...)
			}
		}
		out = append(out, Interval{Start: a, End: b, Content: content})
	}
	return out
}

// ByLines partitions intervals by the physical lines of fullText. The outer
// result has exactly one entry per line, lines being fullText split on "\n"
// (a trailing newline therefore produces a final empty line). Intervals are
// clipped to each line and rebased to line-relative offsets; an interval
// straddling a newline is split into per-line pieces that share its Content.
// The newline character itself belongs to the line boundary and to no
// interval. A line touched by no interval yields a single nil-Content
// interval spanning the line. Out-of-range input is clipped, never an error.
func ByLines(intervals []Interval, fullText string) [][]Interval {
	lines := strings.Split(fullText, "\n")
	out := make([][]Interval, len(lines))

	offset := 0
	for i, line := range lines {
		lineStart := offset
		lineEnd := offset + len(line)

		var clipped []Interval
		for _, iv := range intervals {
			start, end := iv.Start, iv.End
			if start < lineStart {
				start = lineStart
			}
			if end > lineEnd {
				end = lineEnd
			}
			if start >= end {
				continue
			}
			clipped = append(clipped, Interval{
				Start:   start - lineStart,
				End:     end - lineStart,
				Content: iv.Content,
			})
		}
		if len(clipped) == 0 {
			clipped = []Interval{{Start: 0, End: len(line)}}
		}
		out[i] = clipped

		offset = lineEnd + 1
	}
	return out
}

// Pad extends a sorted, non-overlapping partition (as produced by Disjunct)
// with nil-Content intervals so that it covers [0,length) exactly. An empty
// input becomes a single hole over the whole text; a zero-length text yields
// nothing.
func Pad(intervals []Interval, length int) []Interval {
	if len(intervals) == 0 {
		if length <= 0 {
			return nil
		}
		return []Interval{{Start: 0, End: length}}
	}

	out := make([]Interval, 0, len(intervals)+2)
	if first := intervals[0]; first.Start > 0 {
		out = append(out, Interval{Start: 0, End: first.Start})
	}
	out = append(out, intervals...)
	if last := intervals[len(intervals)-1]; last.End < length {
		out = append(out, Interval{Start: last.End, End: length})
	}
	return out
}

func dedupe(sorted []int) []int {
	out := sorted[:0]
	for _, v := range sorted {
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
