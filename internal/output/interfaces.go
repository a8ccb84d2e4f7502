// Package output provides the console output used by LM Buddy's command line:
// a printer with semantic message kinds that renders them either styled or as
// plain text with prefixes.
package output

// StyleProvider supplies the style for each semantic kind of output.
type StyleProvider interface {
	GetStyle(semantic SemanticType) TextStyle
	// IsAvailable reports whether the provider can style output right now.
	IsAvailable() bool
}

// TextStyle renders text.
type TextStyle interface {
	Render(text string) string
}

// Mode selects how the printer renders.
type Mode int

const (
	// ModeAuto styles output when a usable style provider is set.
	ModeAuto Mode = iota
	// ModePlain never styles.
	ModePlain
	// ModeJSON writes one JSON object per call.
	ModeJSON
)

// SemanticType is the meaning of a piece of output.
type SemanticType string

// Semantic kinds.
const (
	SemanticPlain    SemanticType = "plain"
	SemanticInfo     SemanticType = "info"
	SemanticSuccess  SemanticType = "success"
	SemanticWarning  SemanticType = "warning"
	SemanticError    SemanticType = "error"
	SemanticStatus   SemanticType = "status"
	SemanticResponse SemanticType = "response"
	SemanticPrompt   SemanticType = "prompt"
	SemanticDim      SemanticType = "dim"
)
