// Package buddytypes defines the shared data model for LM Buddy.
// This file contains the conversation types: roles, content parts and turns.
package buddytypes

import (
	"image"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

// Roles used in the conversation history and in the provider request.
// RoleSystem only ever appears in the outgoing request, never in history.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind tags the variant held by a Part.
type PartKind int

// Part variants.
const (
	PartText PartKind = iota
	PartImage
)

// Part is one element of a multi-part message.
// Exactly one of Text or ImageURL is meaningful, selected by Kind.
type Part struct {
	Kind     PartKind
	Text     string
	ImageURL string // data URL, e.g. "data:image/jpeg;base64,..."
}

// TextPart creates a text part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ImagePart creates an image part from an already encoded data URL.
func ImagePart(dataURL string) Part {
	return Part{Kind: PartImage, ImageURL: dataURL}
}

// IsImage reports whether the part references an image.
func (p Part) IsImage() bool {
	return p.Kind == PartImage
}

// Turn is one exchange unit in the conversation history.
// Content is either plain text (Text, with Parts nil) or an ordered list of
// parts. Only user turns may carry an image.
type Turn struct {
	Role  Role
	Text  string
	Parts []Part
	Image image.Image
}

// UserTurn creates a user turn from parts and an optional captured image.
func UserTurn(parts []Part, img image.Image) Turn {
	cp := make([]Part, len(parts))
	copy(cp, parts)
	return Turn{Role: RoleUser, Parts: cp, Image: img}
}

// AssistantTurn creates a plain-text assistant turn.
// Assistant turns never carry an image.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// IsParted reports whether the turn holds parted content.
func (t Turn) IsParted() bool {
	return t.Parts != nil
}

// PlainText returns the textual content of the turn. For parted content the
// text parts are joined with newlines; image parts are skipped.
func (t Turn) PlainText() string {
	if !t.IsParted() {
		return t.Text
	}
	texts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		if p.Kind == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasEmbeddedImage reports whether any part already references an image.
func (t Turn) HasEmbeddedImage() bool {
	for _, p := range t.Parts {
		if p.IsImage() {
			return true
		}
	}
	return false
}
