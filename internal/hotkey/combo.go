// Package hotkey implements the global hotkey listener: combo parsing, the
// poll loop with its debounce window, and the key-state backend contract.
package hotkey

import (
	"fmt"
	"strconv"
	"strings"
)

// Modifier is a modifier key of a combo.
type Modifier string

// Supported modifiers.
const (
	ModCtrl  Modifier = "ctrl"
	ModShift Modifier = "shift"
	ModAlt   Modifier = "alt"
	ModSuper Modifier = "super"
)

// modifierAliases maps accepted spellings to their modifier.
var modifierAliases = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
	"super":   ModSuper,
	"win":     ModSuper,
	"windows": ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"meta":    ModSuper,
}

// namedKeys are the non-character keys a combo may end with.
var namedKeys = map[string]string{
	"space":     "space",
	"enter":     "enter",
	"return":    "enter",
	"tab":       "tab",
	"esc":       "escape",
	"escape":    "escape",
	"delete":    "delete",
	"del":       "delete",
	"backspace": "backspace",
	"insert":    "insert",
	"home":      "home",
	"end":       "end",
	"pageup":    "pageup",
	"pagedown":  "pagedown",
	"up":        "up",
	"down":      "down",
	"left":      "left",
	"right":     "right",
	"print":     "printscreen",
}

// modifierOrder fixes the canonical order used by Combo.String.
var modifierOrder = []Modifier{ModCtrl, ModAlt, ModShift, ModSuper}

// Combo is a parsed hotkey: zero or more modifiers plus exactly one key.
type Combo struct {
	Modifiers []Modifier
	Key       string
}

// ValidationError reports a combo string that cannot be used. It never stops
// the process; the listener simply stays stopped.
type ValidationError struct {
	Combo  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid hotkey %q: %s", e.Combo, e.Reason)
}

// ParseCombo parses strings such as "ctrl+shift+f" or "alt+F9".
// Parts are separated by '+', case-insensitive, surrounding spaces ignored.
func ParseCombo(raw string) (Combo, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return Combo{}, &ValidationError{Combo: raw, Reason: "empty combo"}
	}

	var combo Combo
	seen := make(map[Modifier]bool)
	for _, part := range strings.Split(text, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Combo{}, &ValidationError{Combo: raw, Reason: "empty key in combo"}
		}

		if mod, ok := modifierAliases[part]; ok {
			if seen[mod] {
				return Combo{}, &ValidationError{Combo: raw, Reason: fmt.Sprintf("modifier %s repeated", mod)}
			}
			seen[mod] = true
			continue
		}

		key, ok := normalizeKey(part)
		if !ok {
			return Combo{}, &ValidationError{Combo: raw, Reason: fmt.Sprintf("unknown key %q", part)}
		}
		if combo.Key != "" {
			return Combo{}, &ValidationError{Combo: raw, Reason: "more than one non-modifier key"}
		}
		combo.Key = key
	}

	if combo.Key == "" {
		return Combo{}, &ValidationError{Combo: raw, Reason: "combo has no key besides modifiers"}
	}

	for _, mod := range modifierOrder {
		if seen[mod] {
			combo.Modifiers = append(combo.Modifiers, mod)
		}
	}
	return combo, nil
}

// normalizeKey accepts single letters and digits, function keys f1..f24 and
// the named keys.
func normalizeKey(part string) (string, bool) {
	if len(part) == 1 {
		c := part[0]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			return part, true
		}
		return "", false
	}

	if strings.HasPrefix(part, "f") {
		if n, err := strconv.Atoi(part[1:]); err == nil && n >= 1 && n <= 24 && part[1] != '0' {
			return part, true
		}
	}

	if key, ok := namedKeys[part]; ok {
		return key, true
	}
	return "", false
}

// Has reports whether the combo includes the modifier.
func (c Combo) Has(mod Modifier) bool {
	for _, m := range c.Modifiers {
		if m == mod {
			return true
		}
	}
	return false
}

// String returns the canonical form, e.g. "ctrl+shift+f".
func (c Combo) String() string {
	if c.Key == "" {
		return ""
	}
	parts := make([]string, 0, len(c.Modifiers)+1)
	for _, m := range c.Modifiers {
		parts = append(parts, string(m))
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}
