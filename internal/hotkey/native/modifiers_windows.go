//go:build windows

package native

import (
	xhotkey "golang.design/x/hotkey"

	"lmbuddy/internal/hotkey"
)

func modifierFor(m hotkey.Modifier) (xhotkey.Modifier, bool) {
	switch m {
	case hotkey.ModCtrl:
		return xhotkey.ModCtrl, true
	case hotkey.ModShift:
		return xhotkey.ModShift, true
	case hotkey.ModAlt:
		return xhotkey.ModAlt, true
	case hotkey.ModSuper:
		return xhotkey.ModWin, true
	default:
		return 0, false
	}
}
