//go:build darwin

package main

import "golang.design/x/mainthread"

// runMain runs fn with the main thread available to the hotkey backend.
func runMain(fn func()) {
	mainthread.Init(fn)
}
