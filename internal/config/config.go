// Package config loads the read-only LM Buddy configuration.
//
// Values are layered, lowest precedence first: built-in defaults, the config
// file (JSON, YAML or TOML by extension), .env files, and LMBUDDY_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"lmbuddy/internal/version"
)

// Config is the configuration surface consumed by the core.
type Config struct {
	Provider       string  `mapstructure:"llm_provider"`
	Endpoint       string  `mapstructure:"llm_endpoint"`
	APIKey         string  `mapstructure:"llm_api_key"`
	Model          string  `mapstructure:"llm_model"`
	TokenizerModel string  `mapstructure:"tokenizer_model_name"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	RequestTimeout int     `mapstructure:"llm_request_timeout"`

	SystemPromptGlobal         string `mapstructure:"system_prompt_global"`
	AvatarName                 string `mapstructure:"avatar_name"`
	AvatarSystemPromptOverride string `mapstructure:"avatar_system_prompt_override"`

	VisionEnabled     bool    `mapstructure:"enable_vision_if_available"`
	Hotkey            string  `mapstructure:"hotkey"`
	OCRLanguage       string  `mapstructure:"ocr_language"`
	ScreenshotDelay   float64 `mapstructure:"screenshot_delay"`
	ScreenshotCommand string  `mapstructure:"screenshot_command"`
	TesseractPath     string  `mapstructure:"tesseract_path"`
	SpeechCommand     string  `mapstructure:"speech_command"`

	MaxContextMessages      int `mapstructure:"max_context_messages"`
	MaxContextTokensWarning int `mapstructure:"max_context_tokens_warning"`

	UITitle       string `mapstructure:"classic_ui_title"`
	UserLanguage  string `mapstructure:"user_language"`
	AppVersion    string `mapstructure:"app_version"`
	ConfigVersion string `mapstructure:"config_version"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// defaultValues lists every known key with its built-in value.
func defaultValues() map[string]any {
	return map[string]any{
		"llm_provider":                  "custom",
		"llm_endpoint":                  "http://127.0.0.1:1234/v1/chat/completions",
		"llm_api_key":                   "",
		"llm_model":                     "local-model/example-model-name",
		"tokenizer_model_name":          "local-model/example-model-name",
		"temperature":                   0.3,
		"max_tokens":                    4096,
		"llm_request_timeout":           180,
		"system_prompt_global":          DefaultSystemPrompt,
		"avatar_name":                   "Sherlox",
		"avatar_system_prompt_override": "",
		"enable_vision_if_available":    true,
		"hotkey":                        "ctrl+shift+f",
		"ocr_language":                  "deu",
		"screenshot_delay":              0.5,
		"screenshot_command":            "",
		"tesseract_path":                "tesseract",
		"speech_command":                "",
		"max_context_messages":          30,
		"max_context_tokens_warning":    6000,
		"classic_ui_title":              "LM Buddy",
		"user_language":                 "auto",
		"app_version":                   "v" + version.Version,
		"config_version":                "1.0",
	}
}

// presentationKeys are read by window front ends, not by the core. They are
// accepted in config files without a warning.
var presentationKeys = []string{
	"active_ui_skin",
	"classic_ui_alpha",
	"classic_ui_initial_geometry",
	"classic_ui_save_window_geometry",
	"avatar_skin",
	"avatar_accessories",
	"avatar_show_on_startup",
	"avatar_position_x",
	"avatar_position_y",
	"avatar_scale",
}

// DefaultSystemPrompt is the global system prompt used when none is configured.
const DefaultSystemPrompt = "You are LM Buddy, a helpful and friendly AI assistant. " +
	"Format your answers clearly using Markdown. Be concise but helpful. Explain things simply."

// RequestTimeoutDuration returns the LLM request timeout.
func (c *Config) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout <= 0 {
		return 180 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// ScreenshotDelayDuration returns the pause taken before a screenshot.
func (c *Config) ScreenshotDelayDuration() time.Duration {
	if c.ScreenshotDelay <= 0 {
		return 0
	}
	return time.Duration(c.ScreenshotDelay * float64(time.Second))
}

// SystemPrompt returns the effective system prompt: the avatar override when
// set, otherwise the global prompt. Empty means no system turn is sent.
func (c *Config) SystemPrompt() string {
	if strings.TrimSpace(c.AvatarSystemPromptOverride) != "" {
		return c.AvatarSystemPromptOverride
	}
	return c.SystemPromptGlobal
}

// UsesBearerAuth reports whether requests carry an Authorization header.
func (c *Config) UsesBearerAuth() bool {
	if c.APIKey == "" {
		return false
	}
	switch strings.ToLower(c.Provider) {
	case "openai", "openrouter", "custom":
		return true
	default:
		return false
	}
}

// Title returns the window or console title including the application version.
func (c *Config) Title() string {
	if c.AppVersion == "" {
		return c.UITitle
	}
	return fmt.Sprintf("%s %s", c.UITitle, c.AppVersion)
}

// Validate reports settings that are out of range. The problems are warnings:
// the core keeps running with the values as given.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, errors.New("llm_endpoint is empty"))
	}
	if c.Temperature < 0 || c.Temperature > 2 || math.IsNaN(c.Temperature) {
		errs = append(errs, fmt.Errorf("temperature %.2f outside [0, 2]", c.Temperature))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("llm_request_timeout must be positive, got %d", c.RequestTimeout))
	}
	if c.ScreenshotDelay < 0 {
		errs = append(errs, fmt.Errorf("screenshot_delay must not be negative, got %.2f", c.ScreenshotDelay))
	}
	if c.MaxContextMessages < 0 {
		errs = append(errs, fmt.Errorf("max_context_messages must not be negative, got %d", c.MaxContextMessages))
	}
	if c.MaxContextTokensWarning < 0 {
		errs = append(errs, fmt.Errorf("max_context_tokens_warning must not be negative, got %d", c.MaxContextTokensWarning))
	}
	if err := version.CheckConfigVersion(c.ConfigVersion); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
