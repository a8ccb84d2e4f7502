package engine

import (
	"sync"

	"lmbuddy/pkg/buddytypes"
)

// History is the conversation history. It is append-only between clears and
// all mutation happens under one mutex, so a request's user and assistant
// turns always land next to each other.
type History struct {
	mu    sync.Mutex
	turns []buddytypes.Turn
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// AppendPair appends a user turn and its answer atomically.
func (h *History) AppendPair(user, assistant buddytypes.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, user, assistant)
}

// Snapshot returns a copy of the turns.
func (h *History) Snapshot() []buddytypes.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]buddytypes.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Clear removes all turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// HasImage reports whether any user turn carries an image.
func (h *History) HasImage() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.turns {
		if t.Role == buddytypes.RoleUser && (t.Image != nil || t.HasEmbeddedImage()) {
			return true
		}
	}
	return false
}
