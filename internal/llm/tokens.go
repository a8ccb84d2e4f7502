package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"lmbuddy/internal/logger"
	"lmbuddy/pkg/buddytypes"
)

// fallbackEncoding is tried when the configured tokenizer name is neither a
// known model nor an encoding name.
const fallbackEncoding = "cl100k_base"

// Counter counts tokens with a tiktoken encoding when one is loaded and with a
// characters/4 estimate otherwise.
type Counter struct {
	enc  *tiktoken.Tiktoken
	name string
}

// NewHeuristicCounter returns a counter that always uses the estimate.
func NewHeuristicCounter() *Counter {
	return &Counter{name: "heuristic"}
}

// NewTiktokenCounter loads the encoding for a model or encoding name. With
// allowFallback set, unknown names use cl100k_base instead of failing.
func NewTiktokenCounter(name string, allowFallback bool) (*Counter, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		if enc, err := tiktoken.EncodingForModel(name); err == nil {
			return &Counter{enc: enc, name: name}, nil
		}
		if enc, err := tiktoken.GetEncoding(name); err == nil {
			return &Counter{enc: enc, name: name}, nil
		}
	}

	if !allowFallback {
		return nil, fmt.Errorf("no tokenizer for %q", name)
	}

	enc, err := tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", fallbackEncoding, err)
	}
	logger.Debug("Tokenizer name unknown, using fallback encoding", "tokenizer", name, "encoding", fallbackEncoding)
	return &Counter{enc: enc, name: fallbackEncoding}, nil
}

// LoadCounter returns a tiktoken counter for name, or the heuristic counter if
// name is empty or no encoding can be loaded.
func LoadCounter(name string) *Counter {
	if strings.TrimSpace(name) == "" {
		logger.Info("No tokenizer configured, estimating tokens from text length")
		return NewHeuristicCounter()
	}
	c, err := NewTiktokenCounter(name, true)
	if err != nil {
		logger.Warn("Tokenizer unavailable, estimating tokens from text length", "tokenizer", name, "error", err)
		return NewHeuristicCounter()
	}
	return c
}

// Name returns the tokenizer in use.
func (c *Counter) Name() string {
	return c.name
}

// Exact reports whether a real tokenizer is loaded.
func (c *Counter) Exact() bool {
	return c.enc != nil
}

// Count returns the number of tokens in text. Empty and whitespace-only text
// count as zero.
func (c *Counter) Count(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	if c != nil && c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return EstimateTokens(trimmed)
}

// EstimateTokens is the fallback rule: ceil(characters / 4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// CountParts sums the tokens of the text parts. Images count as zero.
func CountParts(counter buddytypes.TokenCounter, parts []buddytypes.Part) int {
	total := 0
	for _, p := range parts {
		if p.Kind == buddytypes.PartText {
			total += counter.Count(p.Text)
		}
	}
	return total
}
