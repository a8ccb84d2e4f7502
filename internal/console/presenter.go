// Package console is the terminal presentation layer. It drains the message
// channel, renders responses and reads commands from a line editor.
package console

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/ansi"

	"lmbuddy/internal/logger"
	"lmbuddy/internal/output"
	"lmbuddy/internal/prompts"
	"lmbuddy/pkg/buddytypes"
)

// DefaultInterval is the drain cadence of Run.
const DefaultInterval = 50 * time.Millisecond

// Source is the consumer side of the message channel.
type Source interface {
	Drain() []buddytypes.Message
	Receive(ctx context.Context) (buddytypes.Message, error)
}

// Capture is the captured content actions can be applied to.
type Capture struct {
	Text  string
	Image image.Image
	At    time.Time
}

// Presenter renders messages as they arrive.
type Presenter struct {
	source   Source
	printer  *output.Printer
	renderer *Renderer
	catalog  *prompts.Catalog
	interval time.Duration
	log      *log.Logger
	// whole prints complete responses instead of streamed chunks.
	whole bool

	mu         sync.Mutex
	pending    *Capture
	partial    map[string]*strings.Builder
	previewing bool
	lineOpen   bool
	diffSource string
	lastReply  string
	sentinels  int
}

// NewPresenter creates a presenter. A nil printer uses the global printer and a
// nil renderer prints responses as received.
func NewPresenter(source Source, printer *output.Printer, renderer *Renderer, catalog *prompts.Catalog) *Presenter {
	if printer == nil {
		printer = output.GetGlobalPrinter()
	}
	if renderer == nil {
		renderer = &Renderer{width: DefaultWidth}
	}
	return &Presenter{
		source:   source,
		printer:  printer,
		renderer: renderer,
		catalog:  catalog,
		interval: DefaultInterval,
		whole:    printer.Mode() == output.ModeJSON,
		partial:  make(map[string]*strings.Builder),
		log:      logger.NewStyledLogger("Console"),
	}
}

// SetInterval changes the drain cadence.
func (p *Presenter) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

// Run drains the channel on every tick until ctx is done. Messages still
// queued when ctx ends are rendered before returning.
func (p *Presenter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Flush()
			return
		case <-ticker.C:
			p.Flush()
		}
	}
}

// Flush renders every queued message.
func (p *Presenter) Flush() {
	for _, msg := range p.source.Drain() {
		p.Handle(msg)
	}
}

// WaitSentinel renders messages until the next Sentinel.
func (p *Presenter) WaitSentinel(ctx context.Context) error {
	for {
		msg, err := p.source.Receive(ctx)
		if err != nil {
			return err
		}
		if p.Handle(msg) {
			return nil
		}
	}
}

// Handle renders one message and reports whether it ended a sequence.
func (p *Presenter) Handle(msg buddytypes.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch m := msg.(type) {
	case buddytypes.Info:
		p.endLine()
		p.printer.Info(m.Text)
	case buddytypes.Error:
		p.endLine()
		p.printer.Error(m.Text)
	case buddytypes.PromptTokensUpdate:
		p.endLine()
		p.printer.Dim(fmt.Sprintf("Prompt tokens: %d", m.Count))
	case buddytypes.Chunk:
		p.chunk(m)
	case buddytypes.FinalTokenCounts:
		p.endLine()
		p.printer.Status(fmt.Sprintf("P: %d, C: %d = Total: %d", m.Prompt, m.Completion, m.Total))
	case buddytypes.FullResponse:
		p.fullResponse(m)
	case buddytypes.CapturedContent:
		p.captured(m)
	case buddytypes.HideCaptureActions:
		p.endLine()
		p.pending = nil
		p.printer.Dim("Capture actions hidden.")
	case buddytypes.Sentinel:
		p.endLine()
		delete(p.partial, m.RequestID)
		p.sentinels++
		p.log.Debug("Sequence finished", "request", m.RequestID)
		return true
	default:
		p.log.Warn("Ignoring unknown message", "kind", buddytypes.KindOf(msg))
	}
	return false
}

func (p *Presenter) chunk(m buddytypes.Chunk) {
	if p.whole {
		return
	}
	if !p.renderer.Markdown() {
		p.printer.Response(m.Text)
		if m.Text != "" {
			p.lineOpen = true
		}
		return
	}

	buf, ok := p.partial[m.RequestID]
	if !ok {
		buf = &strings.Builder{}
		p.partial[m.RequestID] = buf
	}
	buf.WriteString(m.Text)

	if p.printer.IsStylable() {
		p.printer.Print("\r" + ansi.EraseEntireLine + p.renderer.Preview(buf.String(), m.LiveCompletionTokens))
		p.previewing = true
	}
}

func (p *Presenter) fullResponse(m buddytypes.FullResponse) {
	p.endLine()
	thinking, answer := SplitThinking(m.Text)
	// without markdown the streamed text is already on screen
	switch {
	case p.whole:
		if len(thinking) > 0 {
			p.printer.Dim(RenderThinking(thinking))
		}
		p.printer.Response(answer)
	case p.renderer.Markdown():
		if len(thinking) > 0 {
			p.printer.Dim(RenderThinking(thinking))
		}
		p.printer.Println(p.renderer.Response(answer))
	}
	delete(p.partial, m.RequestID)
	p.lastReply = answer

	if p.diffSource != "" {
		source := p.diffSource
		p.diffSource = ""
		if Changed(source, answer) {
			p.printer.Dim("Changes:")
			p.printer.Println(p.renderer.Diff(source, answer))
		}
	}
}

func (p *Presenter) captured(m buddytypes.CapturedContent) {
	p.endLine()
	p.pending = &Capture{Text: m.Text, Image: m.Image, At: time.Now()}

	summary := fmt.Sprintf("Captured %d characters of text", len([]rune(m.Text)))
	if m.Image != nil {
		b := m.Image.Bounds()
		summary += fmt.Sprintf(" and a %dx%d image", b.Dx(), b.Dy())
	}
	p.printer.Info(summary + ".")
	if line := firstLine(m.Text); line != "" {
		p.printer.Dim("  " + ansi.Truncate(line, p.renderer.Width()-2, "…"))
	}
	p.listActions()
}

func (p *Presenter) listActions() {
	if p.catalog == nil {
		return
	}
	for _, key := range p.catalog.Keys() {
		action, _ := p.catalog.Lookup(key)
		p.printer.Dim(fmt.Sprintf("  /action %-26s %s", key, action.Label))
	}
}

// endLine finishes an open streamed line or removes the live preview.
func (p *Presenter) endLine() {
	if p.previewing {
		p.printer.Print("\r" + ansi.EraseEntireLine)
		p.previewing = false
	}
	if p.lineOpen {
		p.printer.Println("")
		p.lineOpen = false
	}
}

// ExpectDiff makes the next FullResponse show its changes against source.
func (p *Presenter) ExpectDiff(source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diffSource = source
}

// PendingCapture returns the captured content actions apply to.
func (p *Presenter) PendingCapture() (Capture, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return Capture{}, false
	}
	return *p.pending, true
}

// LastResponse returns the most recent complete response.
func (p *Presenter) LastResponse() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReply
}

// Finished returns the number of sequences seen to completion.
func (p *Presenter) Finished() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sentinels
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
