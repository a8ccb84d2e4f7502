package output

// PlainTextStyle renders text with an optional prefix.
type PlainTextStyle struct {
	prefix string
}

// NewPlainTextStyle creates a plain style.
func NewPlainTextStyle(prefix string) *PlainTextStyle {
	return &PlainTextStyle{prefix: prefix}
}

// Render prepends the prefix.
func (p *PlainTextStyle) Render(text string) string {
	return p.prefix + text
}

// PlainStyleProvider marks semantic kinds with text prefixes instead of color.
type PlainStyleProvider struct{}

// NewPlainStyleProvider creates a plain style provider.
func NewPlainStyleProvider() *PlainStyleProvider {
	return &PlainStyleProvider{}
}

// GetStyle returns the prefix style for semantic.
func (p *PlainStyleProvider) GetStyle(semantic SemanticType) TextStyle {
	switch semantic {
	case SemanticSuccess:
		return NewPlainTextStyle("✓ ")
	case SemanticWarning:
		return NewPlainTextStyle("⚠ ")
	case SemanticError:
		return NewPlainTextStyle("✗ ")
	case SemanticInfo:
		return NewPlainTextStyle("ℹ ")
	case SemanticStatus:
		return NewPlainTextStyle("» ")
	default:
		return NewPlainTextStyle("")
	}
}

// IsAvailable always reports true.
func (p *PlainStyleProvider) IsAvailable() bool {
	return true
}
