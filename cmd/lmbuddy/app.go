package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lmbuddy/internal/capture"
	"lmbuddy/internal/config"
	"lmbuddy/internal/console"
	"lmbuddy/internal/engine"
	"lmbuddy/internal/hotkey/native"
	"lmbuddy/internal/logger"
	"lmbuddy/internal/output"
	"lmbuddy/internal/prompts"
	"lmbuddy/internal/speech"
	"lmbuddy/internal/version"
)

// setup selects what a command needs from the runtime.
type setup struct {
	imagePath string
	hotkey    bool
}

// newRuntime loads the configuration and builds the runtime with the command
// based capture pipeline and speaker.
func newRuntime(s setup) (*engine.Runtime, *capture.Pipeline, error) {
	store := config.NewStore(config.DefaultOptions(configPath))
	if err := store.Reload(); err != nil && !errors.Is(err, config.ErrConfigFile) {
		return nil, nil, err
	}
	cfg := store.Current()
	pipeline := capture.FromConfig(cfg, s.imagePath)

	opts := engine.RuntimeOptions{
		Config:  store,
		Capture: pipeline,
		Speaker: speech.NewCommandSpeaker(cfg.SpeechCommand),
	}
	if s.hotkey {
		if native.Supported() {
			opts.Backend = native.New()
		} else {
			logger.Warn("Global hotkey is not supported on this platform, use /capture instead")
		}
	}

	rt, err := engine.NewRuntime(opts)
	if err != nil {
		return nil, nil, err
	}
	if err := rt.Init(); err != nil {
		_ = rt.Shutdown()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return rt, pipeline, nil
}

// newPrinter builds the printer for w and makes it the global printer.
func newPrinter(w io.Writer) *output.Printer {
	options := []output.Option{output.WithWriter(w)}
	switch {
	case jsonMode:
		options = append(options, output.JSON())
	case plainMode:
		options = append(options, output.PlainText())
	default:
		options = append(options, output.WithStyles(output.NewLipglossStyleProvider(w)))
	}
	output.ConfigureGlobal(options...)
	return output.GetGlobalPrinter()
}

func newPresenter(rt *engine.Runtime, printer *output.Printer) (*console.Presenter, *prompts.Catalog, error) {
	catalog, err := prompts.Default()
	if err != nil {
		return nil, nil, err
	}
	renderer, err := console.NewRenderer(terminalWidth(), !plainMode && !jsonMode, printer.IsStylable())
	if err != nil {
		return nil, nil, err
	}
	return console.NewPresenter(rt.Channel, printer, renderer, catalog), catalog, nil
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return console.DefaultWidth
}

func runConsole(cmd *cobra.Command, _ []string) error {
	logger.Info("Starting LM Buddy", "version", version.Version)

	rt, _, err := newRuntime(setup{hotkey: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Shutdown(); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	printer := newPrinter(cmd.OutOrStdout())
	presenter, catalog, err := newPresenter(rt, printer)
	if err != nil {
		return err
	}

	cfg := rt.Config.Current()
	printer.Println(cfg.Title())
	if rt.Listener != nil {
		if _, err := rt.StartHotkey(); err != nil {
			printer.Warning(fmt.Sprintf("Hotkey disabled: %v", err))
		} else {
			printer.Info(fmt.Sprintf("Press %s to capture the active window.", rt.Listener.State().Combo))
		}
	}
	printer.Dim("Type a question, or /help for commands.")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	presenterCtx, stopPresenter := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		presenter.Run(presenterCtx)
	}()

	shell := console.NewShell(rt.Engine, presenter, printer, catalog, "buddy> ")
	shell.SetExchangeSource(rt.Client)
	shell.SetQueueStats(rt.Channel)
	err = shell.Run(ctx)

	stopPresenter()
	wg.Wait()
	logger.Info("LM Buddy stopped")
	return err
}

func runAsk(cmd *cobra.Command, args []string) error {
	rt, _, err := newRuntime(setup{})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Shutdown() }()

	presenter, _, err := newPresenter(rt, newPrinter(cmd.OutOrStdout()))
	if err != nil {
		return err
	}

	if err := rt.Engine.ProcessDirectQuestion(strings.Join(args, " ")); err != nil {
		presenter.Flush()
		return err
	}
	return presenter.WaitSentinel(cmd.Context())
}

func runAction(cmd *cobra.Command, args []string) error {
	key := args[0]
	catalog, err := prompts.Default()
	if err != nil {
		return err
	}
	if _, ok := catalog.Lookup(key); !ok {
		return fmt.Errorf("unknown action %q, available: %s", key, strings.Join(catalog.Keys(), ", "))
	}

	rt, pipeline, err := newRuntime(setup{imagePath: actionImage})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Shutdown() }()

	presenter, _, err := newPresenter(rt, newPrinter(cmd.OutOrStdout()))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	img, err := pipeline.CaptureActiveWindow(ctx)
	if err != nil {
		return err
	}
	text, err := pipeline.ExtractText(ctx, img)
	if err != nil {
		if !rt.Config.Current().VisionEnabled {
			return err
		}
		logger.Warn("OCR failed, continuing with the image only", "error", err)
		text = ""
	}

	if err := rt.Engine.ProcessCapturedAction(key, text, img, actionLanguage); err != nil {
		presenter.Flush()
		return err
	}
	return presenter.WaitSentinel(ctx)
}
