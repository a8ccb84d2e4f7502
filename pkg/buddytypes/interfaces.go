// Package buddytypes defines the shared data model for LM Buddy.
// This file contains the interfaces of the collaborators the core talks to.
package buddytypes

import (
	"context"
	"image"
)

// Service defines the lifecycle shared by long-lived runtime components.
// Services are initialized once at startup and shut down in reverse order.
type Service interface {
	Name() string
	Initialize() error
	Shutdown() error
}

// MessageSink accepts messages from producers. Post must never block.
type MessageSink interface {
	Post(msg Message)
}

// CapturePipeline captures the active window and extracts its text.
// Both calls block; the engine always invokes them from a worker goroutine.
type CapturePipeline interface {
	CaptureActiveWindow(ctx context.Context) (image.Image, error)
	ExtractText(ctx context.Context, img image.Image) (string, error)
}

// Speaker is the speech output delegate.
type Speaker interface {
	Speak(text string) error
	Stop()
}

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}
