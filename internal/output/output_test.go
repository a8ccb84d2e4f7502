package output

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bracketStyle struct{ semantic SemanticType }

func (b bracketStyle) Render(text string) string {
	return "[" + string(b.semantic) + "]" + text + "[/" + string(b.semantic) + "]"
}

type bracketProvider struct{ available bool }

func (b bracketProvider) GetStyle(s SemanticType) TextStyle { return bracketStyle{s} }
func (b bracketProvider) IsAvailable() bool                 { return b.available }

func TestPrinterPlainOutput(t *testing.T) {
	buf := NewCaptureBuffer()
	p := NewPrinter(WithWriter(buf), PlainText())

	p.Print("hello ")
	p.Println("world")
	p.Printf("tokens: %d\n", 42)
	p.Info("information")
	p.Success("copied")
	p.Warning("careful")
	p.Error("failed")
	p.Status("P: 1, C: 2 = Total: 3")
	p.Dim("Prompt tokens: 3")
	p.Dim("  /action summarize")

	assert.Equal(t, []string{
		"hello world",
		"tokens: 42",
		"ℹ information",
		"✓ copied",
		"⚠ careful",
		"✗ failed",
		"» P: 1, C: 2 = Total: 3",
		"Prompt tokens: 3",
		"  /action summarize",
	}, buf.Lines())
	assert.False(t, p.IsStylable())
}

func TestPrinterUsesStyleProvider(t *testing.T) {
	buf := NewCaptureBuffer()
	p := NewPrinter(WithWriter(buf), WithStyles(bracketProvider{available: true}))

	p.Info("note")
	p.Response("chunk")

	assert.Equal(t, "[info]note[/info]\n[response]chunk[/response]", buf.String())
	assert.True(t, p.IsStylable())
}

func TestPrinterIgnoresUnavailableProvider(t *testing.T) {
	buf := NewCaptureBuffer()
	p := NewPrinter(WithWriter(buf), WithStyles(bracketProvider{available: false}))
	p.Error("x")
	assert.Equal(t, "✗ x\n", buf.String())
}

func TestPrinterJSON(t *testing.T) {
	buf := NewCaptureBuffer()
	p := NewPrinter(WithWriter(buf), JSON())
	p.Warning("long context")

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &got))
	assert.Equal(t, map[string]string{"type": "warning", "message": "long context"}, got)
	assert.Equal(t, ModeJSON, p.Mode())
	assert.False(t, p.IsStylable())
}

func TestPrinterConcurrentWrites(t *testing.T) {
	buf := NewCaptureBuffer()
	p := NewPrinter(WithWriter(buf), PlainText())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Println("line")
		}()
	}
	wg.Wait()
	assert.Len(t, buf.Lines(), 20)
}

func TestLipglossStyleProvider(t *testing.T) {
	buf := NewCaptureBuffer()

	ascii := NewLipglossStyleProviderWithProfile(buf, termenv.Ascii, true)
	assert.False(t, ascii.IsAvailable())
	assert.Equal(t, "plain", ascii.GetStyle(SemanticError).Render("plain"))

	color := NewLipglossStyleProviderWithProfile(buf, termenv.ANSI256, true)
	assert.True(t, color.IsAvailable())
	styled := color.GetStyle(SemanticError).Render("boom")
	assert.True(t, strings.Contains(styled, "boom"))
	assert.NotEqual(t, "boom", styled)
}
