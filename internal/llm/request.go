package llm

import (
	"strings"

	"lmbuddy/internal/logger"
	"lmbuddy/pkg/buddytypes"
)

// ContextResetMarker prefixes assistant turns that do not come from the model,
// such as the confirmation stored when context is set for a follow-up question.
// A history ending in such a turn starts a new logical conversation.
const ContextResetMarker = "["

// chatRequest is the request body of an OpenAI-compatible chat completion.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// chatMessage carries either a plain string or a list of content parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// IsNewLogicalConversation reports whether the next request starts a new
// logical conversation: the history is empty, or its last turn is a plain
// assistant turn starting with ContextResetMarker.
//
// This sniffs the text prefix, so a model answer that happens to start with
// "[" also restarts the conversation and re-sends the system prompt.
func IsNewLogicalConversation(history []buddytypes.Turn) bool {
	if len(history) == 0 {
		return true
	}
	last := history[len(history)-1]
	return last.Role == buddytypes.RoleAssistant && !last.IsParted() && strings.HasPrefix(last.Text, ContextResetMarker)
}

// buildMessages flattens the system prompt, history and new user parts into
// the provider message list.
func buildMessages(systemPrompt string, history []buddytypes.Turn, parts []buddytypes.Part) []chatMessage {
	messages := make([]chatMessage, 0, len(history)+2)

	systemPrompt = strings.TrimSpace(systemPrompt)
	if systemPrompt != "" && IsNewLogicalConversation(history) {
		messages = append(messages, chatMessage{Role: string(buddytypes.RoleSystem), Content: systemPrompt})
	}

	for _, turn := range history {
		content := turnContent(turn)
		if len(content) == 0 {
			continue
		}
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: content})
	}

	messages = append(messages, chatMessage{Role: string(buddytypes.RoleUser), Content: toContentParts(parts)})
	return messages
}

// turnContent converts one history turn. A stored user image that is not yet
// embedded is encoded and placed before the text.
func turnContent(turn buddytypes.Turn) []contentPart {
	var content []contentPart
	if turn.IsParted() {
		content = toContentParts(turn.Parts)
	} else if turn.Text != "" {
		content = []contentPart{{Type: "text", Text: turn.Text}}
	}

	if turn.Role == buddytypes.RoleUser && turn.Image != nil && !turn.HasEmbeddedImage() {
		url, err := ImageToDataURL(turn.Image, DefaultJPEGQuality, DefaultMaxImageKB)
		if err != nil {
			logger.Warn("Dropping history image that could not be encoded", "error", err)
		} else {
			content = append([]contentPart{{Type: "image_url", ImageURL: &imageURL{URL: url}}}, content...)
		}
	}
	return content
}

func toContentParts(parts []buddytypes.Part) []contentPart {
	out := make([]contentPart, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case buddytypes.PartImage:
			out = append(out, contentPart{Type: "image_url", ImageURL: &imageURL{URL: p.ImageURL}})
		default:
			out = append(out, contentPart{Type: "text", Text: p.Text})
		}
	}
	return out
}

// countPromptTokens sums text tokens over the whole message list.
func countPromptTokens(counter buddytypes.TokenCounter, messages []chatMessage) int {
	total := 0
	for _, m := range messages {
		switch c := m.Content.(type) {
		case string:
			total += counter.Count(c)
		case []contentPart:
			for _, p := range c {
				if p.Type == "text" {
					total += counter.Count(p.Text)
				}
			}
		}
	}
	return total
}
