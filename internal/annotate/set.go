package annotate

import (
	"sort"

	"github.com/regrada-ai/tracemark/internal/model"
	"github.com/regrada-ai/tracemark/internal/span"
	"github.com/regrada-ai/tracemark/internal/util"
)

// Set is an immutable collection of path-addressed annotations. It is built
// once from a Mapping and after that only read; scoping produces new Sets.
// Two Sets built from equal mappings iterate in the same order and report
// the same Version, so downstream output is reproducible.
type Set struct {
	entries []setEntry
	version string
}

type setEntry struct {
	key  string
	path Path
	anns []model.Annotation
}

// FromMapping validates and normalizes a mapping into a Set. Every key must
// parse as a path; the first malformed key aborts construction. Entries that
// resolve to no annotations are dropped. Annotation order within one path is
// kept exactly as given.
func FromMapping(m Mapping) (*Set, error) {
	entries := make([]setEntry, 0, len(m))
	for _, raw := range m.Paths() {
		p, err := ParsePath(raw)
		if err != nil {
			return nil, err
		}
		anns := m[raw].Resolved()
		if len(anns) == 0 {
			continue
		}
		entries = append(entries, setEntry{key: p.String(), path: p, anns: anns})
	}
	sortEntries(entries)
	return &Set{entries: entries, version: versionOf(entries)}, nil
}

// ForPath returns a new Set scoped to p: entries at or below p, with the
// prefix stripped. The receiver is never modified, and scoping a path with
// no entries yields an empty Set.
func (s *Set) ForPath(p Path) *Set {
	var entries []setEntry
	for _, e := range s.entries {
		if !e.path.HasPrefix(p) {
			continue
		}
		rest := e.path.TrimPrefix(p)
		entries = append(entries, setEntry{key: rest.String(), path: rest, anns: e.anns})
	}
	sortEntries(entries)
	return &Set{entries: entries, version: versionOf(entries)}
}

// RootAnnotations returns the annotations addressed to exactly this node,
// in entry order. Descendant annotations are not included.
func (s *Set) RootAnnotations() []model.Annotation {
	var out []model.Annotation
	for _, e := range s.entries {
		if e.path.IsRoot() {
			out = append(out, e.anns...)
		}
	}
	return out
}

// InText resolves the root annotations against text: an annotation without
// an explicit range covers the whole text, explicit offsets are clamped into
// the text's bounds rather than rejected. One interval per annotation, in
// RootAnnotations order; overlap is left for span.Disjunct.
func (s *Set) InText(text string) []span.Interval {
	roots := s.RootAnnotations()
	if len(roots) == 0 {
		return nil
	}

	out := make([]span.Interval, 0, len(roots))
	for _, a := range roots {
		start, end := 0, len(text)
		if !a.WholeValue() {
			start = clamp(*a.Start, 0, len(text))
			end = clamp(*a.End, start, len(text))
		}
		out = append(out, span.Interval{Start: start, End: end, Content: []model.Annotation{a}})
	}
	return out
}

// Count returns the number of annotations at or below this Set's root.
func (s *Set) Count() int {
	n := 0
	for _, e := range s.entries {
		n += len(e.anns)
	}
	return n
}

// Empty reports whether the Set holds no annotations at all.
func (s *Set) Empty() bool {
	return len(s.entries) == 0
}

// Paths returns the canonical paths carrying annotations, sorted.
func (s *Set) Paths() []string {
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.key)
	}
	return out
}

// Version is a short content hash identifying the Set. Hosts that cache
// resolved intervals can key on it together with the path and text.
func (s *Set) Version() string {
	return s.version
}

func sortEntries(entries []setEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
}

func versionOf(entries []setEntry) string {
	type pair struct {
		Path        string             `json:"path"`
		Annotations []model.Annotation `json:"annotations"`
	}
	pairs := make([]pair, len(entries))
	for i, e := range entries {
		pairs[i] = pair{Path: e.key, Annotations: e.anns}
	}
	data, _ := util.CanonicalJSON(pairs)
	return util.ShortHash(string(data))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
