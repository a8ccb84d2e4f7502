package config

import (
	"errors"
	"sync"

	"lmbuddy/internal/logger"
)

// Store holds the active configuration and can re-read it from disk.
// It is the configuration collaborator handed to the runtime.
type Store struct {
	mu     sync.RWMutex
	opts   Options
	cfg    *Config
	static bool
}

// NewStore creates a store that loads with opts.
func NewStore(opts Options) *Store {
	return &Store{opts: opts, cfg: Defaults()}
}

// NewStaticStore wraps an already built configuration. Reload keeps it as is.
func NewStaticStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = Defaults()
	}
	return &Store{cfg: cfg, static: true}
}

// Name returns the service name for the runtime registry.
func (s *Store) Name() string {
	return "config"
}

// Initialize loads the configuration. A broken config file is logged and the
// defaults are kept, so the assistant still starts.
func (s *Store) Initialize() error {
	logger.ServiceOperation(s.Name(), "initialize", "path", s.opts.Path)
	if err := s.Reload(); err != nil {
		if errors.Is(err, ErrConfigFile) {
			logger.Error("Config file could not be read, using defaults", "error", err)
			return nil
		}
		return err
	}
	return nil
}

// Shutdown implements buddytypes.Service.
func (s *Store) Shutdown() error {
	return nil
}

// Reload re-reads the configuration. Static stores are unaffected.
func (s *Store) Reload() error {
	if s.static {
		return nil
	}

	cfg, err := LoadWithOptions(s.opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("Configuration has problems", "error", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the active configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// HotkeyCombo returns the configured hotkey combination.
func (s *Store) HotkeyCombo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Hotkey
}
