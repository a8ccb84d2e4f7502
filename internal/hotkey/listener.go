package hotkey

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"lmbuddy/internal/logger"
	"lmbuddy/pkg/buddytypes"
)

const (
	// DefaultPollInterval is the pause between two key-state checks.
	DefaultPollInterval = 50 * time.Millisecond
	// DebounceWindow is the minimum time between two callback invocations.
	DebounceWindow = 1200 * time.Millisecond
	// DefaultErrorBackoff is the pause after a non-fatal backend error.
	DefaultErrorBackoff = time.Second
	// DefaultJoinTimeout bounds how long Stop waits for the poll loop.
	DefaultJoinTimeout = time.Second
)

// ErrBackendFatal marks backend failures after which polling cannot go on,
// such as a missing OS hook or denied input-monitoring permission.
var ErrBackendFatal = errors.New("hotkey backend unavailable")

// Backend reports whether a combo is currently held down.
type Backend interface {
	IsPressed(combo Combo) (bool, error)
}

// ComboSource supplies the configured combo string.
type ComboSource interface {
	HotkeyCombo() string
}

// StopSignal is the process-wide stop flag observed by the poll loop.
type StopSignal interface {
	IsSet() bool
	Done() <-chan struct{}
}

// Clock returns the current time. Tests replace it to drive the debounce window.
type Clock func() time.Time

// Options tunes the listener. Zero values select the defaults.
type Options struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
	JoinTimeout  time.Duration
	Clock        Clock
}

// Listener polls the backend for the configured combo and invokes the callback
// at most once per debounce window.
type Listener struct {
	source   ComboSource
	backend  Backend
	stop     StopSignal
	callback func()
	opts     Options
	log      *log.Logger

	mu          sync.Mutex
	raw         string
	combo       Combo
	valid       bool
	state       buddytypes.ListenerState
	lastTrigger time.Time
	activeCombo string
	failure     string
	done        chan struct{}
}

// NewListener creates a stopped listener.
func NewListener(source ComboSource, backend Backend, stop StopSignal, callback func(), opts Options) *Listener {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = DefaultJoinTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Listener{
		source:   source,
		backend:  backend,
		stop:     stop,
		callback: callback,
		opts:     opts,
		log:      logger.NewStyledLogger("Hotkey"),
		state:    buddytypes.ListenerStopped,
	}
}

// LoadCombo reads the combo from the config source and validates it. An invalid
// combo leaves the listener unable to start and returns a *ValidationError.
func (l *Listener) LoadCombo() (string, error) {
	raw := l.source.HotkeyCombo()

	l.mu.Lock()
	listening := l.state == buddytypes.ListenerListening
	if !listening {
		l.state = buddytypes.ListenerValidating
	}
	l.mu.Unlock()

	combo, err := ParseCombo(raw)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !listening {
		l.state = buddytypes.ListenerStopped
	}
	l.raw = raw
	if err != nil {
		l.valid = false
		l.combo = Combo{}
		l.log.Error("Invalid hotkey in configuration, listener will not start", "combo", raw, "error", err)
		return "", err
	}

	l.valid = true
	l.combo = combo
	l.log.Info("Hotkey loaded", "combo", combo.String())
	return combo.String(), nil
}

// Start launches the poll loop. It returns false when the combo is invalid and
// true when the loop was started or is already running.
func (l *Listener) Start() bool {
	l.mu.Lock()
	if l.state == buddytypes.ListenerListening {
		l.mu.Unlock()
		l.log.Info("Listener already running", "combo", l.activeCombo)
		return true
	}
	valid := l.valid
	l.mu.Unlock()

	if !valid {
		l.log.Warn("Cannot start listener, no valid hotkey configured")
		return false
	}

	// Pick up config changes made since the last load.
	if _, err := l.LoadCombo(); err != nil {
		return false
	}

	if l.stop.IsSet() {
		l.log.Warn("Not starting listener, shutdown already requested")
		return false
	}

	l.mu.Lock()
	combo := l.combo
	l.activeCombo = combo.String()
	l.state = buddytypes.ListenerListening
	l.failure = ""
	done := make(chan struct{})
	l.done = done
	l.mu.Unlock()

	go l.run(combo, done)
	l.log.Info("Listener started", "combo", combo.String())
	return true
}

// Stop waits for the poll loop to exit after the stop signal was set. It logs,
// but does not fail, when the loop does not finish within the join timeout.
func (l *Listener) Stop() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		l.log.Debug("No active listener to stop")
		return
	}
	if !l.stop.IsSet() {
		l.log.Debug("Stop called before the stop signal was set; waiting for it")
	}

	select {
	case <-done:
		l.log.Info("Listener stopped")
	case <-time.After(l.opts.JoinTimeout):
		l.log.Warn("Listener did not terminate within timeout", "timeout", l.opts.JoinTimeout)
	}

	l.mu.Lock()
	if l.done == done {
		l.done = nil
	}
	l.mu.Unlock()
}

// ReloadCombo re-reads the combo from configuration. A running loop keeps the
// combo it was started with until the next start.
func (l *Listener) ReloadCombo() (string, error) {
	l.mu.Lock()
	running := l.state == buddytypes.ListenerListening
	old := l.activeCombo
	l.mu.Unlock()

	combo, err := l.LoadCombo()
	if err != nil {
		return "", err
	}

	switch {
	case running && old != combo:
		l.log.Warn("Hotkey changed, active listener keeps the old combo until restart", "old", old, "combo", combo)
	case !running:
		l.log.Info("Hotkey updated, used on next start", "combo", combo)
	}
	return combo, nil
}

// State returns a snapshot for status reporting.
func (l *Listener) State() buddytypes.HotkeyState {
	l.mu.Lock()
	defer l.mu.Unlock()

	combo := l.raw
	if l.valid {
		combo = l.combo.String()
	}
	return buddytypes.HotkeyState{
		Combo:       combo,
		Valid:       l.valid,
		LastTrigger: l.lastTrigger,
		Listener:    l.state,
		Failure:     l.failure,
	}
}

func (l *Listener) run(combo Combo, done chan struct{}) {
	defer func() {
		l.mu.Lock()
		l.state = buddytypes.ListenerStopped
		l.mu.Unlock()
		close(done)
		l.log.Info("Listener loop exited", "combo", combo.String())
	}()

	for !l.stop.IsSet() {
		pressed, err := l.poll(combo)
		if err != nil {
			if IsFatal(err) {
				l.log.Error("Hotkey backend failed, stopping listener", "combo", combo.String(), "error", err)
				l.mu.Lock()
				l.failure = err.Error()
				l.mu.Unlock()
				return
			}
			l.log.Error("Hotkey poll failed", "combo", combo.String(), "error", err)
			if !l.sleep(l.opts.ErrorBackoff) {
				return
			}
			continue
		}

		if pressed {
			l.handlePress(l.opts.Clock())
		}

		if !l.sleep(l.opts.PollInterval) {
			return
		}
	}
}

// poll queries the backend, turning a panic into an error.
func (l *Listener) poll(combo Combo) (pressed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hotkey backend panic: %v", r)
		}
	}()
	return l.backend.IsPressed(combo)
}

// handlePress applies the debounce window and reports whether the callback fired.
func (l *Listener) handlePress(now time.Time) bool {
	l.mu.Lock()
	if !l.lastTrigger.IsZero() && now.Sub(l.lastTrigger) <= DebounceWindow {
		l.mu.Unlock()
		return false
	}
	l.lastTrigger = now
	combo := l.activeCombo
	l.mu.Unlock()

	l.log.Info("Hotkey detected", "combo", combo)
	if l.callback != nil {
		go l.invoke()
	}
	return true
}

func (l *Listener) invoke() {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Hotkey callback panicked", "error", r)
		}
	}()
	l.callback()
}

// sleep waits for d or until the stop signal fires; it returns false on stop.
func (l *Listener) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-l.stop.Done():
		return false
	case <-t.C:
		return true
	}
}

// IsFatal reports whether a backend error ends the poll loop: errors wrapping
// ErrBackendFatal, and errors mentioning a hook or permission failure.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackendFatal) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "hook") || strings.Contains(msg, "permission")
}
