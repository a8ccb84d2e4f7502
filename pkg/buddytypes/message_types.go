// Package buddytypes defines the shared data model for LM Buddy.
// This file contains the closed set of messages posted from workers to the
// presentation layer over the message channel.
package buddytypes

import (
	"image"

	"github.com/google/uuid"
)

// Message is a tagged union of everything that can travel over the message
// channel. The set of variants is closed: only types in this package implement
// it, so consumers can switch exhaustively on the concrete type.
type Message interface {
	// Request returns the identifier of the request sequence the message belongs to.
	Request() string
	isMessage()
}

// Envelope carries the fields shared by every message variant.
type Envelope struct {
	RequestID string
}

// Request returns the request sequence identifier.
func (e Envelope) Request() string { return e.RequestID }

func (Envelope) isMessage() {}

// NewRequestID returns a fresh identifier for a request sequence.
func NewRequestID() string {
	return uuid.New().String()
}

// Info is a neutral status notice.
type Info struct {
	Envelope
	Text string
}

// Error reports a failure to the user.
type Error struct {
	Envelope
	Text string
}

// Chunk is one incremental piece of a streamed model response.
type Chunk struct {
	Envelope
	Text                 string
	LiveCompletionTokens int
}

// PromptTokensUpdate reports the client-side prompt token count before sending.
type PromptTokensUpdate struct {
	Envelope
	Count int
}

// FinalTokenCounts reports token accounting once a request is over.
type FinalTokenCounts struct {
	Envelope
	Prompt     int
	Completion int
	Total      int
}

// FullResponse carries the complete accumulated response text.
type FullResponse struct {
	Envelope
	Text string
}

// CapturedContent carries the result of a screenshot + OCR pass so the
// presentation layer can offer actions on it.
type CapturedContent struct {
	Envelope
	Text  string
	Image image.Image
}

// HideCaptureActions asks the presentation layer to withdraw capture actions.
type HideCaptureActions struct {
	Envelope
}

// Sentinel terminates a request sequence. Exactly one is posted per sequence,
// and it is always the last message of that sequence.
type Sentinel struct {
	Envelope
}

// KindOf returns a short stable name for a message variant, used in logs.
func KindOf(m Message) string {
	switch m.(type) {
	case Info:
		return "info"
	case Error:
		return "error"
	case Chunk:
		return "chunk"
	case PromptTokensUpdate:
		return "prompt_tokens"
	case FinalTokenCounts:
		return "final_tokens"
	case FullResponse:
		return "full_response"
	case CapturedContent:
		return "captured_content"
	case HideCaptureActions:
		return "hide_capture_actions"
	case Sentinel:
		return "sentinel"
	default:
		return "unknown"
	}
}
