package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chzyer/readline"

	"lmbuddy/internal/engine"
	"lmbuddy/internal/logger"
	"lmbuddy/internal/output"
	"lmbuddy/internal/prompts"
	"lmbuddy/pkg/buddytypes"
)

// Engine is the part of the conversation engine the shell drives.
type Engine interface {
	ProcessDirectQuestion(text string) error
	ProcessCapturedAction(action, ocrText string, img image.Image, targetLanguage string) error
	OnHotkeyTriggered()
	ClearHistory()
	ContextStatus() engine.ContextStatus
	Speak(text string) error
	StopSpeech()
	HotkeyStatus() buddytypes.HotkeyState
	ReloadHotkey() (string, error)
}

// ExchangeSource exposes the last recorded HTTP exchange.
type ExchangeSource interface {
	LastExchange() string
}

// QueueStats reports message channel throughput.
type QueueStats interface {
	Stats() (posted, drained uint64)
	Len() int
}

type commandInfo struct {
	name string
	args string
	help string
}

var commandHelp = []commandInfo{
	{name: "/action", args: "<key> [language]", help: "apply an action to the captured content"},
	{name: "/actions", help: "list the available actions"},
	{name: "/capture", help: "capture the active window now"},
	{name: "/clear", help: "clear the conversation context"},
	{name: "/copy", help: "copy the last response to the clipboard"},
	{name: "/debug", help: "show the last HTTP exchange with the LLM endpoint"},
	{name: "/help", help: "show this help"},
	{name: "/quit", help: "leave LM Buddy"},
	{name: "/reload", help: "re-read the hotkey from the configuration"},
	{name: "/speak", args: "[text]", help: "read text or the last response aloud"},
	{name: "/status", help: "show context size and hotkey state"},
	{name: "/stop", help: "stop speaking"},
}

// Shell reads lines from the terminal. Plain lines are direct questions, lines
// starting with a slash are commands.
type Shell struct {
	engine    Engine
	presenter *Presenter
	printer   *output.Printer
	catalog   *prompts.Catalog
	prompt    string
	copyText  func(string) error
	exchanges ExchangeSource
	queue     QueueStats
	log       *log.Logger
}

// NewShell creates a shell.
func NewShell(eng Engine, presenter *Presenter, printer *output.Printer, catalog *prompts.Catalog, prompt string) *Shell {
	if printer == nil {
		printer = output.GetGlobalPrinter()
	}
	if prompt == "" {
		prompt = "buddy> "
	}
	return &Shell{
		engine:    eng,
		presenter: presenter,
		printer:   printer,
		catalog:   catalog,
		prompt:    prompt,
		copyText:  writeToClipboard,
		log:       logger.NewStyledLogger("Console"),
	}
}

// SetExchangeSource enables /debug.
func (s *Shell) SetExchangeSource(src ExchangeSource) {
	s.exchanges = src
}

// SetQueueStats adds message counts to /status.
func (s *Shell) SetQueueStats(q QueueStats) {
	s.queue = q
}

// Run reads lines until /quit, end of input or ctx is done. Output printed
// while a line is being edited is routed through the line editor so the prompt
// is redrawn.
func (s *Shell) Run(ctx context.Context) error {
	var keys []string
	if s.catalog != nil {
		keys = s.catalog.Keys()
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt,
		AutoComplete:    NewCompleter(keys),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		HistoryLimit:    500,
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s.printer.SetWriter(rl.Stdout())

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if s.Execute(line) {
			return nil
		}
	}
}

// Execute handles one input line and reports whether the shell should exit.
func (s *Shell) Execute(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := s.engine.ProcessDirectQuestion(line); err != nil {
			s.log.Debug("Direct question rejected", "error", err)
		}
		return false
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		s.help()
	case "/clear":
		s.engine.ClearHistory()
	case "/capture":
		s.engine.OnHotkeyTriggered()
	case "/actions":
		s.listActions()
	case "/action":
		s.action(rest)
	case "/speak":
		s.speak(rest)
	case "/stop":
		s.engine.StopSpeech()
	case "/copy":
		s.copyLast()
	case "/status":
		s.status()
	case "/reload":
		s.reload()
	case "/debug":
		s.debug()
	default:
		s.printer.Warning(fmt.Sprintf("Unknown command %s. Type /help for a list of commands.", name))
	}
	return false
}

func (s *Shell) help() {
	for _, c := range commandHelp {
		usage := c.name
		if c.args != "" {
			usage += " " + c.args
		}
		s.printer.Println(fmt.Sprintf("  %-28s %s", usage, c.help))
	}
	s.printer.Dim("Anything else is sent as a question.")
}

func (s *Shell) listActions() {
	if s.catalog == nil {
		s.printer.Warning("No actions are loaded.")
		return
	}
	for _, key := range s.catalog.Keys() {
		action, _ := s.catalog.Lookup(key)
		s.printer.Println(fmt.Sprintf("  %-26s %s", key, action.Label))
	}
}

func (s *Shell) action(args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		s.printer.Warning("Usage: /action <key> [language]")
		return
	}
	key := fields[0]
	language := strings.Join(fields[1:], " ")

	if s.catalog != nil {
		if _, ok := s.catalog.Lookup(key); !ok {
			s.printer.Warning(fmt.Sprintf("Unknown action %q. Type /actions for a list.", key))
			return
		}
	}

	captured, ok := s.presenter.PendingCapture()
	if !ok {
		s.printer.Warning("Nothing captured yet. Press the hotkey or type /capture first.")
		return
	}

	if key == prompts.ActionImproveText {
		s.presenter.ExpectDiff(captured.Text)
	}
	if err := s.engine.ProcessCapturedAction(key, captured.Text, captured.Image, language); err != nil {
		s.log.Debug("Captured action rejected", "action", key, "error", err)
	}
}

func (s *Shell) speak(text string) {
	if text == "" {
		text = s.presenter.LastResponse()
	}
	if strings.TrimSpace(text) == "" {
		s.printer.Warning("Nothing to read aloud.")
		return
	}
	if err := s.engine.Speak(text); err != nil {
		s.printer.Error(fmt.Sprintf("Speech failed: %v", err))
	}
}

func (s *Shell) copyLast() {
	text := s.presenter.LastResponse()
	if text == "" {
		s.printer.Warning("No response to copy yet.")
		return
	}
	if err := s.copyText(text); err != nil {
		s.printer.Error(fmt.Sprintf("Copy failed: %v", err))
		return
	}
	s.printer.Success("Response copied to the clipboard.")
}

func (s *Shell) status() {
	st := s.engine.ContextStatus()
	line := fmt.Sprintf("Context: %d turns (%d messages), last request P: %d, C: %d",
		st.Turns, st.Messages, st.PromptTokens, st.CompletionTokens)
	if st.ImageInHistory {
		line += ", with image"
	}
	if st.Long {
		s.printer.Warning(line + ". Consider /clear.")
	} else {
		s.printer.Status(line)
	}

	hk := s.engine.HotkeyStatus()
	combo := hk.Combo
	if combo == "" {
		combo = "none"
	}
	hotkeyLine := fmt.Sprintf("Hotkey: %s (%s)", combo, hk.Listener)
	if !hk.LastTrigger.IsZero() {
		hotkeyLine += ", last trigger " + hk.LastTrigger.Format("15:04:05")
	}
	s.printer.Status(hotkeyLine)
	if hk.Failure != "" {
		s.printer.Dim(fmt.Sprintf("Hotkey unavailable: %s. Use /capture instead.", hk.Failure))
	}
	if s.queue != nil {
		posted, drained := s.queue.Stats()
		s.printer.Dim(fmt.Sprintf("Messages: %d posted, %d delivered, %d queued", posted, drained, s.queue.Len()))
	}
	if !clipboardAvailable {
		s.printer.Dim("Clipboard: not available on this platform")
	}
}

func (s *Shell) reload() {
	combo, err := s.engine.ReloadHotkey()
	if err != nil {
		s.printer.Error(fmt.Sprintf("Hotkey reload failed: %v", err))
		return
	}
	s.printer.Success(fmt.Sprintf("Hotkey configuration reloaded: %s", combo))
}

func (s *Shell) debug() {
	if s.exchanges == nil {
		s.printer.Warning("HTTP debugging is not available.")
		return
	}
	raw := s.exchanges.LastExchange()
	if raw == "" {
		s.printer.Info("No request has been sent yet.")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(raw), "", "  "); err != nil {
		s.printer.Println(raw)
		return
	}
	s.printer.Println(pretty.String())
}
