package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultWidth is the wrap width used when the terminal size is unknown.
const DefaultWidth = 80

// Renderer turns model output into terminal text.
type Renderer struct {
	markdown *glamour.TermRenderer
	width    int
	styled   bool
}

// NewRenderer creates a renderer. With markdown disabled responses are printed
// as received. Styled selects ANSI output for markdown and diffs.
func NewRenderer(width int, markdown, styled bool) (*Renderer, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	r := &Renderer{width: width, styled: styled}
	if !markdown {
		return r, nil
	}

	style := glamour.WithStandardStyle("notty")
	if styled {
		style = glamour.WithAutoStyle()
	}
	tr, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	r.markdown = tr
	return r, nil
}

// Markdown reports whether full responses are rendered as markdown.
func (r *Renderer) Markdown() bool {
	return r.markdown != nil
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Response renders a complete response. Rendering failures fall back to the
// raw text.
func (r *Renderer) Response(text string) string {
	if r.markdown == nil || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Preview returns the last line of a partial response cut to the terminal
// width, for a single self-overwriting progress line.
func (r *Renderer) Preview(text string, tokens int) string {
	text = strings.TrimRight(text, "\n")
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	status := fmt.Sprintf(" [%d]", tokens)
	room := r.width - ansi.StringWidth(status)
	if room < 1 {
		room = 1
	}
	return ansi.Truncate(text, room, "…") + status
}

// Diff shows the changes from before to after. Unstyled output marks
// deletions as [-text-] and insertions as {+text+}.
func (r *Renderer) Diff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	if r.styled {
		return dmp.DiffPrettyText(diffs)
	}

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// Changed reports whether the diff between before and after has any edits.
func Changed(before, after string) bool {
	return strings.TrimSpace(before) != strings.TrimSpace(after)
}
