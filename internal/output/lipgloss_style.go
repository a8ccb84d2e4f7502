package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// LipglossStyleProvider styles output with lipgloss colors for the terminal
// behind a writer.
type LipglossStyleProvider struct {
	styles  map[SemanticType]lipgloss.Style
	profile termenv.Profile
}

// NewLipglossStyleProvider detects the color support of w.
func NewLipglossStyleProvider(w io.Writer) *LipglossStyleProvider {
	out := termenv.NewOutput(w)
	return NewLipglossStyleProviderWithProfile(w, out.Profile, out.HasDarkBackground())
}

// NewLipglossStyleProviderWithProfile uses a fixed color profile.
func NewLipglossStyleProviderWithProfile(w io.Writer, profile termenv.Profile, dark bool) *LipglossStyleProvider {
	r := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	// the renderer otherwise detects the profile from w and the environment
	r.SetColorProfile(profile)
	r.SetHasDarkBackground(dark)

	return &LipglossStyleProvider{
		profile: profile,
		styles: map[SemanticType]lipgloss.Style{
			SemanticPlain:    r.NewStyle(),
			SemanticInfo:     r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FAFFF"}),
			SemanticSuccess:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00875F", Dark: "#5FD787"}),
			SemanticWarning:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#AF5F00", Dark: "#FFAF5F"}),
			SemanticError:    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}).Bold(true),
			SemanticStatus:   r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#585858", Dark: "#A8A8A8"}).Italic(true),
			SemanticResponse: r.NewStyle(),
			SemanticPrompt:   r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5F00AF", Dark: "#AF87FF"}).Bold(true),
			SemanticDim:      r.NewStyle().Faint(true),
		},
	}
}

// GetStyle returns the style for semantic.
func (l *LipglossStyleProvider) GetStyle(semantic SemanticType) TextStyle {
	if s, ok := l.styles[semantic]; ok {
		return lipglossStyle{s}
	}
	return lipglossStyle{l.styles[SemanticPlain]}
}

type lipglossStyle struct {
	style lipgloss.Style
}

func (s lipglossStyle) Render(text string) string {
	return s.style.Render(text)
}

// IsAvailable reports whether the terminal supports colors.
func (l *LipglossStyleProvider) IsAvailable() bool {
	return l.profile != termenv.Ascii
}
