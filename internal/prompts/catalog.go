// Package prompts builds the text prompt of captured-content actions from the
// embedded action catalog.
package prompts

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"lmbuddy/internal/data/embedded"
)

// Well-known action keys.
const (
	ActionSummarize     = "summarize"
	ActionHelp          = "help"
	ActionImproveText   = "improve_text"
	ActionAnalyzeImage  = "analyze_image"
	ActionBulletPoints  = "bullet_points"
	ActionTranslate     = "translate"
	ActionSetContext    = "set_context_for_question"
	ActionDefault       = "default"
	languagePlaceholder = "{language}"
	textPlaceholder     = "{text}"
)

// Action is one entry of the catalog.
type Action struct {
	Key              string
	Label            string `yaml:"label"`
	Prompt           string `yaml:"prompt"`
	RequiresText     bool   `yaml:"requires_text"`
	RequiresLanguage bool   `yaml:"requires_language"`
	ImageOnly        bool   `yaml:"image_only"`
	InlineText       bool   `yaml:"inline_text"`
}

// catalogFile mirrors the YAML layout.
type catalogFile struct {
	Version       int               `yaml:"version"`
	TextBlock     string            `yaml:"text_block"`
	ContextBlock  string            `yaml:"context_block"`
	MixedWording  string            `yaml:"mixed_wording"`
	TextWording   string            `yaml:"text_wording"`
	NoImage       string            `yaml:"no_image"`
	NoImageText   string            `yaml:"no_image_text"`
	DefaultAction string            `yaml:"default_action"`
	Actions       map[string]Action `yaml:"actions"`
}

// Catalog holds the parsed action prompts.
type Catalog struct {
	file catalogFile
	keys []string
}

// Input is everything a prompt depends on.
type Input struct {
	ActionKey      string
	OCRText        string
	TargetLanguage string
	// HasImage reports whether an image is sent along with the prompt.
	HasImage bool
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog parsed from the embedded data.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(embedded.ActionPromptsData)
	})
	return defaultCatalog, defaultErr
}

// MustDefault is Default for callers that treat a broken embedded catalog as a
// programming error.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and validates a catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse prompt catalog: %w", err)
	}
	if len(f.Actions) == 0 {
		return nil, fmt.Errorf("prompt catalog has no actions")
	}
	if _, ok := f.Actions[f.DefaultAction]; !ok {
		return nil, fmt.Errorf("prompt catalog default action %q is not defined", f.DefaultAction)
	}

	keys := make([]string, 0, len(f.Actions))
	for key, action := range f.Actions {
		if strings.TrimSpace(action.Prompt) == "" {
			return nil, fmt.Errorf("prompt catalog action %q has an empty prompt", key)
		}
		action.Key = key
		f.Actions[key] = action
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return &Catalog{file: f, keys: keys}, nil
}

// Keys returns the action keys in sorted order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Lookup returns the action registered under key.
func (c *Catalog) Lookup(key string) (Action, bool) {
	a, ok := c.file.Actions[strings.TrimSpace(key)]
	return a, ok
}

// Resolve returns the action that will actually run for in. Unknown keys and
// actions whose requirements are not met fall back to the default action.
func (c *Catalog) Resolve(in Input) Action {
	action, ok := c.Lookup(in.ActionKey)
	switch {
	case !ok:
		return c.file.Actions[c.file.DefaultAction]
	case action.RequiresText && strings.TrimSpace(in.OCRText) == "":
		return c.file.Actions[c.file.DefaultAction]
	case action.RequiresLanguage && strings.TrimSpace(in.TargetLanguage) == "":
		return c.file.Actions[c.file.DefaultAction]
	}
	return action
}

// Build renders the text part of the user message for in.
func (c *Catalog) Build(in Input) string {
	action := c.Resolve(in)
	hasText := strings.TrimSpace(in.OCRText) != ""

	if !in.HasImage && action.ImageOnly {
		text := c.file.NoImage
		if hasText {
			text += fill(c.file.NoImageText, textPlaceholder, in.OCRText)
		}
		return text
	}

	text := fill(action.Prompt, languagePlaceholder, strings.TrimSpace(in.TargetLanguage))
	if !in.HasImage && c.file.MixedWording != "" {
		text = strings.ReplaceAll(text, c.file.MixedWording, c.file.TextWording)
	}

	if hasText {
		block := c.file.TextBlock
		if action.InlineText {
			block = c.file.ContextBlock
		}
		text += fill(block, textPlaceholder, in.OCRText)
	}
	return text
}

func fill(template, placeholder, value string) string {
	return strings.ReplaceAll(template, placeholder, value)
}
