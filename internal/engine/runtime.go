package engine

import (
	"errors"
	"fmt"
	"net/http"

	"lmbuddy/internal/config"
	"lmbuddy/internal/hotkey"
	"lmbuddy/internal/llm"
	"lmbuddy/internal/logger"
	"lmbuddy/internal/messaging"
	"lmbuddy/internal/prompts"
	"lmbuddy/pkg/buddytypes"
)

// RuntimeOptions selects the collaborators of a Runtime. Everything except
// Config is optional.
type RuntimeOptions struct {
	Config  *config.Store
	Capture buddytypes.CapturePipeline
	Speaker buddytypes.Speaker
	// Backend enables the hotkey listener.
	Backend    hotkey.Backend
	HTTPClient *http.Client
	Hotkey     hotkey.Options
	// Extra services are registered after the built-in ones.
	Extra []buddytypes.Service
}

// Runtime is the application context built once at startup. It owns the
// configuration, the message channel, the stop signal, the tokenizer and the
// engine, and initializes and shuts them down as a unit.
type Runtime struct {
	Registry *Registry
	Config   *config.Store
	Channel  *messaging.Channel
	Stop     *StopSignal
	History  *History
	Counter  *llm.Counter
	Client   *llm.Client
	Engine   *Engine
	Listener *hotkey.Listener

	opts        RuntimeOptions
	initialized bool
}

// NewRuntime registers the services. Nothing is loaded until Init.
func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	if opts.Config == nil {
		return nil, errors.New("runtime needs a config store")
	}

	r := &Runtime{
		Registry: NewRegistry(),
		Config:   opts.Config,
		Channel:  messaging.NewChannel(),
		Stop:     NewStopSignal(),
		History:  NewHistory(),
		opts:     opts,
	}

	services := []buddytypes.Service{r.Config, r.Channel}
	for _, s := range []any{opts.Capture, opts.Speaker} {
		if svc, ok := s.(buddytypes.Service); ok {
			services = append(services, svc)
		}
	}
	services = append(services, opts.Extra...)

	for _, s := range services {
		if err := r.Registry.RegisterService(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Init initializes the services and builds the engine and, when a backend is
// set, the hotkey listener.
func (r *Runtime) Init() error {
	if r.initialized {
		return nil
	}
	if err := r.Registry.InitializeAll(); err != nil {
		return err
	}

	cfg := r.Config.Current()
	r.Counter = llm.LoadCounter(cfg.TokenizerModel)
	r.Client = llm.NewClient(r.Config, r.Counter)
	if r.opts.HTTPClient != nil {
		r.Client.SetHTTPClient(r.opts.HTTPClient)
	}

	catalog, err := prompts.Default()
	if err != nil {
		return fmt.Errorf("failed to load prompt catalog: %w", err)
	}

	r.Engine = New(Options{
		Config:   r.Config,
		Streamer: r.Client,
		Counter:  r.Counter,
		Capture:  r.opts.Capture,
		Speaker:  r.opts.Speaker,
		Sink:     r.Channel,
		Stop:     r.Stop,
		History:  r.History,
		Catalog:  catalog,
	})

	if r.opts.Backend != nil {
		r.Listener = hotkey.NewListener(r.Config, r.opts.Backend, r.Stop, r.Engine.OnHotkeyTriggered, r.opts.Hotkey)
		r.Engine.AttachHotkey(r.Listener)
	}

	logger.Info("Runtime initialized", "tokenizer", r.Counter.Name(), "exact_tokens", r.Counter.Exact(),
		"services", r.Registry.Names(), "hotkey", r.Listener != nil)
	r.initialized = true
	return nil
}

// StartHotkey validates the configured combo and starts listening. It reports
// whether the listener is running.
func (r *Runtime) StartHotkey() (bool, error) {
	if r.Listener == nil {
		return false, errors.New("no hotkey backend")
	}
	if _, err := r.Listener.LoadCombo(); err != nil {
		return false, err
	}
	return r.Listener.Start(), nil
}

// Shutdown stops the engine and then the services.
func (r *Runtime) Shutdown() error {
	if r.Engine != nil {
		r.Engine.Shutdown()
	} else {
		r.Stop.Set()
	}
	return r.Registry.ShutdownAll()
}
