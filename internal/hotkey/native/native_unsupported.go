//go:build !windows && !darwin

// Package native provides an event-driven hotkey backend built on the
// operating system's global hotkey registration.
package native

import (
	"fmt"

	"lmbuddy/internal/hotkey"
)

// Backend is unavailable on this platform; every poll reports a fatal error so
// the listener stops without affecting the rest of the process.
type Backend struct{}

// New creates the unsupported backend.
func New() *Backend {
	return &Backend{}
}

// Supported reports whether this platform has a native backend.
func Supported() bool {
	return false
}

// IsPressed implements hotkey.Backend.
func (b *Backend) IsPressed(combo hotkey.Combo) (bool, error) {
	return false, fmt.Errorf("%w: global hotkeys are not supported on this platform", hotkey.ErrBackendFatal)
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}
