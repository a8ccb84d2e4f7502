package buddytypes

import "time"

// ListenerState is the lifecycle state of the hotkey listener.
type ListenerState int

const (
	// ListenerStopped means no poll loop is running.
	ListenerStopped ListenerState = iota
	// ListenerValidating means the configured combo is being parsed.
	ListenerValidating
	// ListenerListening means the poll loop is running.
	ListenerListening
)

// String returns the state name.
func (s ListenerState) String() string {
	switch s {
	case ListenerStopped:
		return "stopped"
	case ListenerValidating:
		return "validating"
	case ListenerListening:
		return "listening"
	default:
		return "unknown"
	}
}

// HotkeyState is a snapshot of the hotkey listener used for status reporting.
type HotkeyState struct {
	Combo       string
	Valid       bool
	LastTrigger time.Time
	Listener    ListenerState
	// Failure is why the listener is not available, if known.
	Failure string
}
