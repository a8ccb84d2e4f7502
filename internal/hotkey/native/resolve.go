package native

import (
	"fmt"

	"lmbuddy/internal/hotkey"
)

// resolve maps a combo onto the platform's modifier and key codes.
func resolve[M, K any](combo hotkey.Combo, modifier func(hotkey.Modifier) (M, bool), keys map[string]K) ([]M, K, error) {
	var zero K
	mods := make([]M, 0, len(combo.Modifiers))
	for _, m := range combo.Modifiers {
		mod, ok := modifier(m)
		if !ok {
			return nil, zero, fmt.Errorf("modifier %s not supported on this platform", m)
		}
		mods = append(mods, mod)
	}

	key, ok := keys[combo.Key]
	if !ok {
		return nil, zero, fmt.Errorf("key %s not supported by the native backend", combo.Key)
	}
	return mods, key, nil
}

// keyLatch turns key-down and key-up events into the held state the poll
// loop asks for. A press released between two polls is still reported once.
type keyLatch struct {
	held    bool
	latched bool
}

func (l *keyLatch) down() {
	l.held = true
	l.latched = true
}

func (l *keyLatch) up() {
	l.held = false
}

// take reports whether the key is held or was pressed since the last call.
func (l *keyLatch) take() bool {
	pressed := l.held || l.latched
	l.latched = false
	return pressed
}

func (l *keyLatch) reset() {
	*l = keyLatch{}
}
