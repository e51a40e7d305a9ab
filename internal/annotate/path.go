// Package annotate maps hierarchical paths in a trace document to
// annotations and resolves them into character ranges. Sets are immutable
// and all operations are pure, so the package stays safe to share across
// renderers and checkers.
package annotate

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind distinguishes field access from list indexing.
type SegmentKind int

const (
	FieldSegment SegmentKind = iota
	IndexSegment
)

// Segment is one step of a Path: a named field or a numeric index.
type Segment struct {
	Kind  SegmentKind
	Field string
	Index int
}

// Path addresses a value inside a trace document, for example
// messages[3].tool_calls[0].function.arguments.query. The zero value is the
// root path. Paths compare segment-wise, never as string prefixes, so
// messages[1] is not an ancestor of messages[10].
type Path []Segment

// ParsePath parses the dot/bracket form. Malformed input (unbalanced
// brackets, a non-numeric or negative index, an empty field segment) is an
// error; the empty string parses to the root path.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, nil
	}

	var p Path
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("parse path %q: unbalanced '['", s)
			}
			digits := s[i+1 : i+end]
			idx, err := strconv.Atoi(digits)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("parse path %q: invalid index %q", s, digits)
			}
			p = append(p, Segment{Kind: IndexSegment, Index: idx})
			i += end + 1
		case c == ']':
			return nil, fmt.Errorf("parse path %q: unbalanced ']'", s)
		case c == '.':
			if i == 0 || i+1 == len(s) {
				return nil, fmt.Errorf("parse path %q: empty segment", s)
			}
			if next := s[i+1]; next == '.' || next == '[' || next == ']' {
				return nil, fmt.Errorf("parse path %q: empty segment", s)
			}
			i++
		default:
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' && s[j] != ']' {
				j++
			}
			p = append(p, Segment{Kind: FieldSegment, Field: s[i:j]})
			i = j
		}
	}
	return p, nil
}

// String renders the canonical dot/bracket form. ParsePath(p.String())
// yields p back.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.Kind == IndexSegment {
			b.WriteString("[" + strconv.Itoa(seg.Index) + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Field)
	}
	return b.String()
}

// IsRoot reports whether the path has no segments.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Child returns a new path descending into field. The receiver is not
// modified.
func (p Path) Child(field string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Segment{Kind: FieldSegment, Field: field})
}

// At returns a new path descending into list index i.
func (p Path) At(i int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Segment{Kind: IndexSegment, Index: i})
}

// HasPrefix reports whether prefix is the path itself or one of its
// ancestors, compared segment by segment.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, seg := range prefix {
		if p[i] != seg {
			return false
		}
	}
	return true
}

// TrimPrefix returns a copy of the path with prefix removed. If prefix is
// not an ancestor the path is returned unchanged.
func (p Path) TrimPrefix(prefix Path) Path {
	if !p.HasPrefix(prefix) {
		return p
	}
	rest := p[len(prefix):]
	if len(rest) == 0 {
		return nil
	}
	out := make(Path, len(rest))
	copy(out, rest)
	return out
}
