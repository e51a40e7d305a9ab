// Package render paints annotated trace documents for the terminal. It owns
// all presentation concerns: the annotation engine hands it resolved
// intervals and it decides color, layout and markers. Output is resolved
// fresh on every call; anything longer-lived can key a cache on the
// annotation Set's Version together with path and text.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/regrada-ai/tracemark/internal/annotate"
	"github.com/regrada-ai/tracemark/internal/model"
	"github.com/regrada-ai/tracemark/internal/span"
	"github.com/regrada-ai/tracemark/internal/trace"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	roleStyle      = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	highlightStyle = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("212"))
	warnMarkStyle  = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("214"))
	infoMarkStyle  = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("241"))
)

type Options struct {
	Width int
	Plain bool
}

// Renderer writes annotated documents. Plain mode emits no styling and adds
// explicit character ranges to notes, so output can be piped and diffed.
type Renderer struct {
	width int
	plain bool
}

func New(opts Options) *Renderer {
	width := opts.Width
	if width <= 0 {
		width = 100
	}
	return &Renderer{width: width, plain: opts.Plain}
}

// Document renders a whole trace: document-level notes first, then each
// event with its annotated leaves, then any annotations whose paths address
// nothing in this document.
func (r *Renderer) Document(w io.Writer, title string, doc *trace.Document, set *annotate.Set) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, r.styled(titleStyle, title))
	fmt.Fprintln(w, r.styled(dimStyle, fmt.Sprintf("%d annotations · version %s", set.Count(), set.Version())))
	fmt.Fprintln(w, r.styled(dimStyle, strings.Repeat(r.pick("─", "-"), r.width)))

	messages := annotate.Path(nil).Child("messages")
	for _, a := range set.RootAnnotations() {
		r.note(w, "", a)
	}
	for _, a := range set.ForPath(messages).RootAnnotations() {
		r.note(w, "", a)
	}

	byEvent := make([][]trace.Leaf, len(doc.Events))
	for _, leaf := range doc.Leaves() {
		i := leaf.Path[1].Index
		byEvent[i] = append(byEvent[i], leaf)
	}

	for i, ev := range doc.Events {
		base := messages.At(i)
		evSet := set.ForPath(base)

		label := ev.Role
		if label == "" {
			label = "tool call"
		}
		fmt.Fprintf(w, "\n%s %s  %s\n",
			r.pick("●", "*"), r.styled(roleStyle, label), r.styled(dimStyle, base.String()))

		for _, a := range evSet.RootAnnotations() {
			r.note(w, "", a)
		}

		rendered := map[string]bool{"": true}
		for _, leaf := range byEvent[i] {
			rel := leaf.Path.TrimPrefix(base)
			rendered[rel.String()] = true
			r.leaf(w, leaf, evSet.ForPath(rel))
		}

		// Annotations inside this event that no leaf carries: intermediate
		// nodes like tool_calls[0], or paths below a leaf. Shown as labeled
		// notes so nothing silently disappears.
		for _, key := range evSet.Paths() {
			if rendered[key] {
				continue
			}
			rel, err := annotate.ParsePath(key)
			if err != nil {
				continue
			}
			for _, a := range evSet.ForPath(rel).RootAnnotations() {
				r.note(w, key, a)
			}
			rendered[key] = true
		}
	}

	r.unanchored(w, doc, set)
}

// Leaves renders a flat list of leaves with absolute path labels. The view
// command uses it for path-scoped output.
func (r *Renderer) Leaves(w io.Writer, leaves []trace.Leaf, set *annotate.Set) {
	for _, leaf := range leaves {
		fmt.Fprintf(w, "\n%s %s\n", r.pick("●", "*"), r.styled(dimStyle, leaf.Path.String()))
		r.leaf(w, leaf, set.ForPath(leaf.Path))
	}
}

func (r *Renderer) leaf(w io.Writer, leaf trace.Leaf, leafSet *annotate.Set) {
	if leaf.Text == "" && len(leafSet.RootAnnotations()) == 0 {
		return
	}

	if leaf.Title != "content" {
		fmt.Fprintf(w, "  %s\n", r.styled(dimStyle, leaf.Title))
	}

	intervals := span.ByLines(
		span.Pad(span.Disjunct(leafSet.InText(leaf.Text)), len(leaf.Text)),
		leaf.Text,
	)
	lines := strings.Split(leaf.Text, "\n")

	seen := map[string]bool{}
	for li, line := range lines {
		gutter := fmt.Sprintf("%3d %s ", li+1, r.pick("│", "|"))
		fmt.Fprintf(w, "  %s%s\n", r.styled(dimStyle, gutter), r.paintLine(line, intervals[li]))

		for _, iv := range intervals[li] {
			for _, a := range iv.Content {
				key := noteKey(a)
				if seen[key] {
					continue
				}
				seen[key] = true
				r.note(w, "", a)
			}
		}
	}

	// Annotations that never reached a painted range, like a whole-value
	// annotation on empty text or an explicit zero-length range.
	for _, a := range leafSet.RootAnnotations() {
		if key := noteKey(a); !seen[key] {
			seen[key] = true
			r.note(w, "", a)
		}
	}
}

func (r *Renderer) paintLine(line string, intervals []span.Interval) string {
	var b strings.Builder
	for _, iv := range intervals {
		seg := line[iv.Start:iv.End]
		if iv.Content == nil || r.plain {
			b.WriteString(seg)
			continue
		}
		b.WriteString(markStyle(maxSeverity(iv.Content)).Render(seg))
	}
	return b.String()
}

func (r *Renderer) note(w io.Writer, label string, a model.Annotation) {
	var b strings.Builder
	b.WriteString("      ")
	b.WriteString(r.pick("└ ", "- "))
	if label != "" {
		b.WriteString(r.styled(dimStyle, label) + " ")
	}
	if sev := a.Extra["severity"]; sev != "" {
		b.WriteString(r.styled(severityStyle(sev), "["+sev+"]") + " ")
	}
	b.WriteString(a.Content)
	if r.plain && !a.WholeValue() {
		b.WriteString(fmt.Sprintf(" (%d-%d)", *a.Start, *a.End))
	}
	fmt.Fprintln(w, b.String())
}

// unanchored lists annotations whose paths neither the document-level notes
// nor any event covered, such as an out-of-range message index.
func (r *Renderer) unanchored(w io.Writer, doc *trace.Document, set *annotate.Set) {
	var keys []string
	for _, key := range set.Paths() {
		p, err := annotate.ParsePath(key)
		if err != nil || p.IsRoot() {
			continue
		}
		if p[0].Kind == annotate.FieldSegment && p[0].Field == "messages" {
			if len(p) == 1 {
				continue
			}
			if p[1].Kind == annotate.IndexSegment && p[1].Index < len(doc.Events) {
				continue
			}
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%s %s\n", r.pick("○", "*"), r.styled(dimStyle, "unanchored"))
	for _, key := range keys {
		p, err := annotate.ParsePath(key)
		if err != nil {
			continue
		}
		for _, a := range set.ForPath(p).RootAnnotations() {
			r.note(w, key, a)
		}
	}
}

func (r *Renderer) styled(st lipgloss.Style, s string) string {
	if r.plain {
		return s
	}
	return st.Render(s)
}

// pick chooses between the styled and the plain variant of a marker.
func (r *Renderer) pick(fancy, plain string) string {
	if r.plain {
		return plain
	}
	return fancy
}

func severityStyle(severity string) lipgloss.Style {
	switch severity {
	case "error":
		return errorStyle
	case "warning":
		return warnStyle
	default:
		return dimStyle
	}
}

func markStyle(severity string) lipgloss.Style {
	switch severity {
	case "error":
		return highlightStyle
	case "warning":
		return warnMarkStyle
	case "info":
		return infoMarkStyle
	default:
		return highlightStyle
	}
}

func maxSeverity(anns []model.Annotation) string {
	max := ""
	for _, a := range anns {
		if rank(a.Extra["severity"]) > rank(max) {
			max = a.Extra["severity"]
		}
	}
	return max
}

func rank(severity string) int {
	switch severity {
	case "error":
		return 3
	case "warning":
		return 2
	case "info":
		return 1
	default:
		return 0
	}
}

func noteKey(a model.Annotation) string {
	return fmt.Sprintf("%+v", a)
}
