//go:build windows || darwin

// Package native provides an event-driven hotkey backend built on the
// operating system's global hotkey registration.
package native

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	xhotkey "golang.design/x/hotkey"

	"lmbuddy/internal/hotkey"
	"lmbuddy/internal/logger"
)

// Backend registers the combo with the OS and tracks whether it is held from
// key-down and key-up events. A press shorter than one poll interval is
// latched so the poll loop still sees it.
type Backend struct {
	mu         sync.Mutex
	registered string
	hk         *xhotkey.Hotkey
	state      keyLatch
	quit       chan struct{}
	log        *log.Logger
}

// New creates a backend. Registration happens on the first poll.
func New() *Backend {
	return &Backend{log: logger.NewStyledLogger("Hotkey")}
}

// Supported reports whether this platform has a native backend.
func Supported() bool {
	return true
}

// IsPressed implements hotkey.Backend.
func (b *Backend) IsPressed(combo hotkey.Combo) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registered != combo.String() {
		if err := b.register(combo); err != nil {
			return false, err
		}
	}

	return b.state.take(), nil
}

// Close unregisters the hotkey.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unregisterLocked()
}

func (b *Backend) register(combo hotkey.Combo) error {
	if err := b.unregisterLocked(); err != nil {
		b.log.Warn("Failed to unregister previous hotkey", "combo", b.registered, "error", err)
	}

	mods, key, err := translate(combo)
	if err != nil {
		return fmt.Errorf("%w: %v", hotkey.ErrBackendFatal, err)
	}

	hk := xhotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("%w: register %s: %v", hotkey.ErrBackendFatal, combo, err)
	}

	b.hk = hk
	b.registered = combo.String()
	b.state.reset()
	b.quit = make(chan struct{})
	go b.watch(hk, b.quit)

	b.log.Info("Registered global hotkey", "combo", b.registered)
	return nil
}

func (b *Backend) unregisterLocked() error {
	if b.hk == nil {
		return nil
	}
	close(b.quit)
	err := b.hk.Unregister()
	b.hk = nil
	b.registered = ""
	return err
}

func (b *Backend) watch(hk *xhotkey.Hotkey, quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-hk.Keydown():
			b.mu.Lock()
			b.state.down()
			b.mu.Unlock()
		case <-hk.Keyup():
			b.mu.Lock()
			b.state.up()
			b.mu.Unlock()
		}
	}
}

func translate(combo hotkey.Combo) ([]xhotkey.Modifier, xhotkey.Key, error) {
	return resolve(combo, modifierFor, keys)
}

var keys = map[string]xhotkey.Key{
	"a": xhotkey.KeyA, "b": xhotkey.KeyB, "c": xhotkey.KeyC, "d": xhotkey.KeyD,
	"e": xhotkey.KeyE, "f": xhotkey.KeyF, "g": xhotkey.KeyG, "h": xhotkey.KeyH,
	"i": xhotkey.KeyI, "j": xhotkey.KeyJ, "k": xhotkey.KeyK, "l": xhotkey.KeyL,
	"m": xhotkey.KeyM, "n": xhotkey.KeyN, "o": xhotkey.KeyO, "p": xhotkey.KeyP,
	"q": xhotkey.KeyQ, "r": xhotkey.KeyR, "s": xhotkey.KeyS, "t": xhotkey.KeyT,
	"u": xhotkey.KeyU, "v": xhotkey.KeyV, "w": xhotkey.KeyW, "x": xhotkey.KeyX,
	"y": xhotkey.KeyY, "z": xhotkey.KeyZ,

	"0": xhotkey.Key0, "1": xhotkey.Key1, "2": xhotkey.Key2, "3": xhotkey.Key3,
	"4": xhotkey.Key4, "5": xhotkey.Key5, "6": xhotkey.Key6, "7": xhotkey.Key7,
	"8": xhotkey.Key8, "9": xhotkey.Key9,

	"f1": xhotkey.KeyF1, "f2": xhotkey.KeyF2, "f3": xhotkey.KeyF3, "f4": xhotkey.KeyF4,
	"f5": xhotkey.KeyF5, "f6": xhotkey.KeyF6, "f7": xhotkey.KeyF7, "f8": xhotkey.KeyF8,
	"f9": xhotkey.KeyF9, "f10": xhotkey.KeyF10, "f11": xhotkey.KeyF11, "f12": xhotkey.KeyF12,
	"f13": xhotkey.KeyF13, "f14": xhotkey.KeyF14, "f15": xhotkey.KeyF15, "f16": xhotkey.KeyF16,
	"f17": xhotkey.KeyF17, "f18": xhotkey.KeyF18, "f19": xhotkey.KeyF19, "f20": xhotkey.KeyF20,

	"space":  xhotkey.KeySpace,
	"enter":  xhotkey.KeyReturn,
	"escape": xhotkey.KeyEscape,
	"delete": xhotkey.KeyDelete,
	"tab":    xhotkey.KeyTab,
	"left":   xhotkey.KeyLeft,
	"right":  xhotkey.KeyRight,
	"up":     xhotkey.KeyUp,
	"down":   xhotkey.KeyDown,
}
