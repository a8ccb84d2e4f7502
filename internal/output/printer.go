package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Printer writes semantic output. It is safe for concurrent use.
type Printer struct {
	styleProvider StyleProvider
	writer        io.Writer
	mode          Mode

	mu sync.Mutex
}

// NewPrinter creates a printer writing to os.Stdout in auto mode.
func NewPrinter(options ...Option) *Printer {
	p := &Printer{
		writer: os.Stdout,
		mode:   ModeAuto,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Print writes text as is.
func (p *Printer) Print(text string) {
	p.output(SemanticPlain, text, false)
}

// Printf writes formatted text.
func (p *Printer) Printf(format string, args ...interface{}) {
	p.output(SemanticPlain, fmt.Sprintf(format, args...), false)
}

// Println writes text and a newline.
func (p *Printer) Println(text string) {
	p.output(SemanticPlain, text, true)
}

// Info writes a neutral notice.
func (p *Printer) Info(text string) {
	p.output(SemanticInfo, text, true)
}

// Success writes a confirmation.
func (p *Printer) Success(text string) {
	p.output(SemanticSuccess, text, true)
}

// Warning writes a warning.
func (p *Printer) Warning(text string) {
	p.output(SemanticWarning, text, true)
}

// Error writes an error.
func (p *Printer) Error(text string) {
	p.output(SemanticError, text, true)
}

// Status writes a status line such as token counts.
func (p *Printer) Status(text string) {
	p.output(SemanticStatus, text, true)
}

// Dim writes a low-priority line.
func (p *Printer) Dim(text string) {
	p.output(SemanticDim, text, true)
}

// Response writes streamed model output without a newline.
func (p *Printer) Response(text string) {
	p.output(SemanticResponse, text, false)
}

// Write implements io.Writer for pre-rendered output.
func (p *Printer) Write(b []byte) (int, error) {
	p.output(SemanticPlain, string(b), false)
	return len(b), nil
}

func (p *Printer) output(semantic SemanticType, text string, newline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var final string
	switch p.mode {
	case ModeJSON:
		final = renderJSON(semantic, text)
	case ModePlain:
		final = renderWith(NewPlainStyleProvider(), semantic, text, newline)
	default:
		provider := p.styleProvider
		if provider == nil || !provider.IsAvailable() {
			provider = NewPlainStyleProvider()
		}
		final = renderWith(provider, semantic, text, newline)
	}

	_, _ = fmt.Fprint(p.writer, final)
}

func renderWith(provider StyleProvider, semantic SemanticType, text string, newline bool) string {
	result := provider.GetStyle(semantic).Render(text)
	if newline && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return result
}

func renderJSON(semantic SemanticType, text string) string {
	data, err := json.Marshal(map[string]string{
		"type":    string(semantic),
		"message": text,
	})
	if err != nil {
		return text + "\n"
	}
	return string(data) + "\n"
}

// SetWriter changes the destination.
func (p *Printer) SetWriter(writer io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = writer
}

// Mode returns the render mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// IsStylable reports whether output is styled.
func (p *Printer) IsStylable() bool {
	return p.mode == ModeAuto && p.styleProvider != nil && p.styleProvider.IsAvailable()
}
