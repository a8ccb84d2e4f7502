//go:build !linux

package console

import (
	"sync"

	"golang.design/x/clipboard"
)

// clipboardAvailable indicates if clipboard functionality is available on this platform
const clipboardAvailable = true

var (
	clipboardOnce sync.Once
	clipboardErr  error
)

// initClipboard initializes the clipboard library once.
func initClipboard() error {
	clipboardOnce.Do(func() {
		clipboardErr = clipboard.Init()
	})
	return clipboardErr
}

// writeToClipboard writes text to the system clipboard
func writeToClipboard(text string) error {
	if err := initClipboard(); err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
