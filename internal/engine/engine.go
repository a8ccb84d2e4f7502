// Package engine implements the conversation engine: it turns hotkey presses,
// captured content and direct questions into model requests, owns the
// conversation history and wires the runtime's collaborators together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"lmbuddy/internal/llm"
	"lmbuddy/internal/logger"
	"lmbuddy/internal/messaging"
	"lmbuddy/internal/prompts"
	"lmbuddy/pkg/buddytypes"
)

// Texts posted by the engine itself.
const (
	ContextSetText    = "[Context set. Please type your question.]"
	ClearedText       = "Context and buffers cleared."
	BlankQuestionText = "Cannot process an empty question."
	MissingLangText   = "Please choose a target language for the translation."
	NoCaptureText     = "Screen capture is not available."
)

// DefaultShutdownWait bounds how long Shutdown waits for in-flight workers.
const DefaultShutdownWait = 1500 * time.Millisecond

// Input errors. The matching Error message has already been posted when they
// are returned.
var (
	ErrBlankQuestion         = errors.New("question is empty")
	ErrMissingTargetLanguage = errors.New("translate needs a target language")
)

// Streamer sends one request and reports it on the request's sink.
type Streamer interface {
	Stream(ctx context.Context, req llm.StreamRequest)
}

// HotkeyControl is the part of the hotkey listener the engine drives.
type HotkeyControl interface {
	Stop()
	ReloadCombo() (string, error)
	State() buddytypes.HotkeyState
}

// Options configures an Engine. Config, Streamer and Sink are required.
type Options struct {
	Config   llm.ConfigProvider
	Streamer Streamer
	Counter  buddytypes.TokenCounter
	Capture  buddytypes.CapturePipeline
	Speaker  buddytypes.Speaker
	Sink     buddytypes.MessageSink
	Stop     *StopSignal
	History  *History
	Catalog  *prompts.Catalog
	// ShutdownWait defaults to DefaultShutdownWait.
	ShutdownWait time.Duration
}

// ContextStatus summarizes the size of the conversation.
type ContextStatus struct {
	Turns            int
	Messages         int
	PromptTokens     int
	CompletionTokens int
	ImageInHistory   bool
	// Long is set when the history exceeds the configured message or token limits.
	Long bool
}

// Engine is the conversation engine.
type Engine struct {
	cfg      llm.ConfigProvider
	streamer Streamer
	counter  buddytypes.TokenCounter
	capture  buddytypes.CapturePipeline
	speaker  buddytypes.Speaker
	sink     buddytypes.MessageSink
	stop     *StopSignal
	history  *History
	catalog  *prompts.Catalog
	wait     time.Duration
	log      *log.Logger

	workers sync.WaitGroup

	mu               sync.Mutex
	listener         HotkeyControl
	lastText         string
	lastImage        image.Image
	promptTokens     int
	completionTokens int
	shutdownOnce     sync.Once
}

// New creates an engine.
func New(opts Options) *Engine {
	e := &Engine{
		cfg:      opts.Config,
		streamer: opts.Streamer,
		counter:  opts.Counter,
		capture:  opts.Capture,
		speaker:  opts.Speaker,
		sink:     opts.Sink,
		stop:     opts.Stop,
		history:  opts.History,
		catalog:  opts.Catalog,
		wait:     opts.ShutdownWait,
		log:      logger.NewStyledLogger("Engine"),
	}
	if e.counter == nil {
		e.counter = llm.NewHeuristicCounter()
	}
	if e.stop == nil {
		e.stop = NewStopSignal()
	}
	if e.history == nil {
		e.history = NewHistory()
	}
	if e.catalog == nil {
		e.catalog = prompts.MustDefault()
	}
	if e.wait <= 0 {
		e.wait = DefaultShutdownWait
	}
	return e
}

// AttachHotkey sets the listener controlled by the engine.
func (e *Engine) AttachHotkey(l HotkeyControl) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// ProcessDirectQuestion sends a typed question. A blank question posts an
// Error and starts nothing.
func (e *Engine) ProcessDirectQuestion(text string) error {
	if strings.TrimSpace(text) == "" {
		e.log.Warn("Direct question is empty")
		e.sink.Post(buddytypes.Error{Envelope: newEnvelope(), Text: BlankQuestionText})
		return ErrBlankQuestion
	}

	req := llm.StreamRequest{
		RequestID:      buddytypes.NewRequestID(),
		Parts:          []buddytypes.Part{buddytypes.TextPart(text)},
		DirectQuestion: true,
	}
	e.log.Debug("Processing direct question", "request", req.RequestID, "length", len(text))
	e.startStream(req)
	return nil
}

// ProcessCapturedAction runs an action on captured content. ocrText and img
// may each be empty; targetLanguage is required for translate.
func (e *Engine) ProcessCapturedAction(action, ocrText string, img image.Image, targetLanguage string) error {
	action = strings.TrimSpace(action)
	cfg := e.cfg.Current()

	if action == prompts.ActionTranslate && strings.TrimSpace(targetLanguage) == "" {
		e.log.Warn("Translate requested without target language")
		e.sink.Post(buddytypes.Error{Envelope: newEnvelope(), Text: MissingLangText})
		return ErrMissingTargetLanguage
	}

	e.remember(ocrText, img)

	var parts []buddytypes.Part
	var sent image.Image
	if img != nil && cfg.VisionEnabled {
		url, err := llm.ImageToDataURL(img, llm.DefaultJPEGQuality, llm.DefaultMaxImageKB)
		if err != nil {
			e.log.Warn("Image could not be encoded, continuing with text only", "error", err)
		} else {
			parts = append(parts, buddytypes.ImagePart(url))
			sent = img
		}
	}

	text := e.catalog.Build(prompts.Input{
		ActionKey:      action,
		OCRText:        ocrText,
		TargetLanguage: targetLanguage,
		HasImage:       sent != nil,
	})
	parts = append(parts, buddytypes.TextPart(text))

	requestID := buddytypes.NewRequestID()
	e.log.Debug("Processing captured action", "request", requestID, "action", action,
		"ocr_length", len(ocrText), "image", sent != nil)

	if action == prompts.ActionSetContext {
		e.setContext(requestID, parts, sent)
		return nil
	}

	e.startStream(llm.StreamRequest{
		RequestID:      requestID,
		Parts:          parts,
		Image:          sent,
		ActionKey:      action,
		TargetLanguage: strings.TrimSpace(targetLanguage),
	})
	return nil
}

// setContext stores captured content as context for the next question without
// contacting the model.
func (e *Engine) setContext(requestID string, parts []buddytypes.Part, img image.Image) {
	seq := messaging.NewSequence(e.trackedSink(), requestID)
	defer seq.Close()

	e.history.AppendPair(buddytypes.UserTurn(parts, img), buddytypes.AssistantTurn(ContextSetText))
	tokens := llm.CountParts(e.counter, parts)

	e.log.Info("Context set", "request", requestID, "tokens", tokens)
	seq.Info(ContextSetText)
	seq.PromptTokens(tokens)
	seq.FinalCounts(tokens, 0, tokens)
}

func (e *Engine) startStream(req llm.StreamRequest) {
	req.History = e.history
	req.Sink = e.trackedSink()
	req.Stop = e.stop

	e.spawn("stream", func() {
		e.streamer.Stream(context.Background(), req)
	})
}

// OnHotkeyTriggered captures the active window and extracts its text on a
// worker. The result is posted as CapturedContent, or as Error followed by
// HideCaptureActions.
func (e *Engine) OnHotkeyTriggered() {
	e.log.Info("Hotkey triggered, capturing active window")
	e.spawn("capture", e.captureAndExtract)
}

func (e *Engine) captureAndExtract() {
	env := newEnvelope()
	fail := func(text string) {
		e.sink.Post(buddytypes.Error{Envelope: env, Text: text})
		e.sink.Post(buddytypes.HideCaptureActions{Envelope: env})
	}

	if e.capture == nil {
		fail(NoCaptureText)
		return
	}

	ctx, cancel := e.stop.Context()
	defer cancel()

	img, err := e.capture.CaptureActiveWindow(ctx)
	if err != nil {
		e.log.Error("Screenshot capture failed", "error", err)
		fail("Error: Screenshot capture failed: " + err.Error())
		return
	}
	if img == nil {
		fail("Error: Screenshot capture failed (no image returned).")
		return
	}

	text, err := e.capture.ExtractText(ctx, img)
	if err != nil {
		if !e.cfg.Current().VisionEnabled {
			e.log.Error("OCR failed", "error", err)
			fail("Error: OCR failed: " + err.Error())
			return
		}
		e.log.Warn("OCR failed, continuing with the image only", "error", err)
		text = ""
	}

	e.remember(text, img)
	e.sink.Post(buddytypes.CapturedContent{Envelope: env, Text: text, Image: img})
}

// LastCapture returns the buffered OCR text and image of the last capture or
// captured action.
func (e *Engine) LastCapture() (string, image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastText, e.lastImage
}

func (e *Engine) remember(text string, img image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastText = text
	e.lastImage = img
}

// ClearHistory drops the conversation and the capture buffers.
func (e *Engine) ClearHistory() {
	e.history.Clear()

	e.mu.Lock()
	e.lastText = ""
	e.lastImage = nil
	e.promptTokens = 0
	e.completionTokens = 0
	e.mu.Unlock()

	e.log.Info("Conversation history and buffers cleared")
	env := newEnvelope()
	e.sink.Post(buddytypes.Info{Envelope: env, Text: ClearedText})
	e.sink.Post(buddytypes.PromptTokensUpdate{Envelope: env, Count: 0})
	e.sink.Post(buddytypes.FinalTokenCounts{Envelope: env})
}

// History returns a copy of the conversation.
func (e *Engine) History() []buddytypes.Turn {
	return e.history.Snapshot()
}

// ContextStatus reports the conversation size against the configured limits.
func (e *Engine) ContextStatus() ContextStatus {
	cfg := e.cfg.Current()
	messages := e.history.Len()

	e.mu.Lock()
	prompt, completion := e.promptTokens, e.completionTokens
	e.mu.Unlock()

	st := ContextStatus{
		Turns:            messages / 2,
		Messages:         messages,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		ImageInHistory:   e.history.HasImage(),
	}
	st.Long = (cfg.MaxContextMessages > 0 && messages > cfg.MaxContextMessages) ||
		(cfg.MaxContextTokensWarning > 0 && prompt+completion > cfg.MaxContextTokensWarning)
	return st
}

func (e *Engine) recordTokens(prompt, completion int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promptTokens = prompt
	e.completionTokens = completion
}

// Speak reads text aloud. Blank text is ignored.
func (e *Engine) Speak(text string) error {
	if strings.TrimSpace(text) == "" {
		e.log.Debug("Speak called with empty text, ignoring")
		return nil
	}
	if e.speaker == nil {
		return fmt.Errorf("speech is not available")
	}
	return e.speaker.Speak(text)
}

// StopSpeech interrupts speech in progress.
func (e *Engine) StopSpeech() {
	if e.speaker != nil {
		e.speaker.Stop()
	}
}

// NoHotkeyBackend is the failure reported when no listener is attached.
const NoHotkeyBackend = "no global hotkey backend on this platform"

// HotkeyStatus returns the listener state. Without a listener the state is
// stopped and invalid.
func (e *Engine) HotkeyStatus() buddytypes.HotkeyState {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l == nil {
		return buddytypes.HotkeyState{Failure: NoHotkeyBackend}
	}
	return l.State()
}

// ReloadHotkey re-reads the hotkey from the configuration.
func (e *Engine) ReloadHotkey() (string, error) {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l == nil {
		return "", fmt.Errorf("hotkey listener is not running")
	}
	return l.ReloadCombo()
}

// Stop returns the engine's stop signal.
func (e *Engine) Stop() *StopSignal {
	return e.stop
}

// Shutdown raises the stop signal, stops the listener and speech, and waits a
// bounded time for in-flight workers. It is safe to call more than once.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.log.Info("Shutting down")
		e.stop.Set()

		e.mu.Lock()
		l := e.listener
		e.mu.Unlock()
		if l != nil {
			l.Stop()
		}
		e.StopSpeech()

		done := make(chan struct{})
		go func() {
			e.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(e.wait):
			e.log.Warn("Workers still running after shutdown wait", "wait", e.wait)
		}
	})
}

// Wait blocks until all workers have finished.
func (e *Engine) Wait() {
	e.workers.Wait()
}

func (e *Engine) spawn(name string, fn func()) {
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("Worker panicked", "worker", name, "error", r)
			}
		}()
		fn()
	}()
}

// trackedSink returns a per-request sink that records final token counts and
// adds a context-size warning just before the request's Sentinel.
func (e *Engine) trackedSink() buddytypes.MessageSink {
	return &trackingSink{engine: e, next: e.sink}
}

type trackingSink struct {
	engine *Engine
	next   buddytypes.MessageSink
	final  bool
}

func (t *trackingSink) Post(msg buddytypes.Message) {
	switch m := msg.(type) {
	case buddytypes.FinalTokenCounts:
		t.final = true
		t.engine.recordTokens(m.Prompt, m.Completion)
	case buddytypes.Sentinel:
		if t.final {
			if st := t.engine.ContextStatus(); st.Long {
				t.next.Post(buddytypes.Info{
					Envelope: m.Envelope,
					Text: fmt.Sprintf("The conversation is getting long (%d messages, %d tokens). Consider clearing the context.",
						st.Messages, st.PromptTokens+st.CompletionTokens),
				})
			}
		}
	}
	t.next.Post(msg)
}

func newEnvelope() buddytypes.Envelope {
	return buddytypes.Envelope{RequestID: buddytypes.NewRequestID()}
}
