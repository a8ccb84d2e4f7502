package console

import (
	"regexp"
	"strings"
)

// ThinkingBlock is reasoning a model emitted ahead of its answer, as reasoning
// models served by local runtimes do with <think> tags.
type ThinkingBlock struct {
	Content string
}

var thinkPattern = regexp.MustCompile(`(?s)<(think|thinking)>(.*?)</(?:think|thinking)>`)

// SplitThinking removes the thinking blocks from text and returns them with
// the remaining answer.
func SplitThinking(text string) ([]ThinkingBlock, string) {
	matches := thinkPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, text
	}
	blocks := make([]ThinkingBlock, 0, len(matches))
	for _, m := range matches {
		if content := strings.TrimSpace(m[2]); content != "" {
			blocks = append(blocks, ThinkingBlock{Content: content})
		}
	}
	return blocks, strings.TrimSpace(thinkPattern.ReplaceAllString(text, ""))
}

// RenderThinking formats thinking blocks uniformly.
func RenderThinking(blocks []ThinkingBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		b.WriteString("🤔 Thinking:\n")
		b.WriteString(block.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
