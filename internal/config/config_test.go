package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "custom", cfg.Provider)
	assert.Equal(t, "http://127.0.0.1:1234/v1/chat/completions", cfg.Endpoint)
	assert.Equal(t, "local-model/example-model-name", cfg.Model)
	assert.Equal(t, 0.3, cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 180*time.Second, cfg.RequestTimeoutDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.ScreenshotDelayDuration())
	assert.True(t, cfg.VisionEnabled)
	assert.Equal(t, "ctrl+shift+f", cfg.Hotkey)
	assert.Equal(t, 30, cfg.MaxContextMessages)
	assert.Equal(t, 6000, cfg.MaxContextTokensWarning)
	assert.Equal(t, DefaultSystemPrompt, cfg.SystemPrompt())
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithOptions_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
llm_endpoint: http://localhost:9999/v1/chat/completions
llm_model: test-model
temperature: 0.7
max_tokens: 256
enable_vision_if_available: false
hotkey: ctrl+alt+b
avatar_system_prompt_override: "You are Sherlox."
classic_ui_alpha: 0.5
totally_unknown: 1
`)

	cfg, err := LoadWithOptions(Options{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/v1/chat/completions", cfg.Endpoint)
	assert.Equal(t, "test-model", cfg.Model)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 256, cfg.MaxTokens)
	assert.False(t, cfg.VisionEnabled)
	assert.Equal(t, "ctrl+alt+b", cfg.Hotkey)
	assert.Equal(t, "You are Sherlox.", cfg.SystemPrompt())
	// untouched keys keep their defaults
	assert.Equal(t, 180, cfg.RequestTimeout)
}

func TestLoadWithOptions_JSONFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"llm_provider": "openai", "llm_api_key": "sk-test", "max_context_messages": 5}`)

	cfg, err := LoadWithOptions(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, 5, cfg.MaxContextMessages)
	assert.True(t, cfg.UsesBearerAuth())
}

func TestLoadWithOptions_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithOptions(Options{Path: filepath.Join(t.TempDir(), "nope.yaml")})
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadWithOptions_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"llm_model": `)

	_, err := LoadWithOptions(Options{Path: path})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigFile)
}

func TestLoadWithOptions_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "llm_model: from-file\nllm_provider: from-file\nhotkey: ctrl+f1\n")
	writeFile(t, dir, ".env", "LMBUDDY_LLM_MODEL=from-dotenv\nLMBUDDY_LLM_PROVIDER=from-dotenv\nUNRELATED=1\n")
	t.Setenv("LMBUDDY_LLM_MODEL", "from-env")

	cfg, err := LoadWithOptions(Options{Path: path, DotEnvDirs: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Model)
	assert.Equal(t, "from-dotenv", cfg.Provider)
	assert.Equal(t, "ctrl+f1", cfg.Hotkey)
}

func TestLoadWithOptions_FirstDotEnvWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, first, ".env", "LMBUDDY_OCR_LANGUAGE=eng\n")
	writeFile(t, second, ".env", "LMBUDDY_OCR_LANGUAGE=fra\nLMBUDDY_HOTKEY=ctrl+alt+x\n")

	cfg, err := LoadWithOptions(Options{
		Path:       filepath.Join(first, "missing.yaml"),
		DotEnvDirs: []string{first, second},
	})
	require.NoError(t, err)
	assert.Equal(t, "eng", cfg.OCRLanguage)
	assert.Equal(t, "ctrl+alt+x", cfg.Hotkey)
}

func TestLoadWithOptions_ProviderKeyFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "llm_provider: openrouter\n")
	writeFile(t, dir, ".env", "OPENROUTER_API_KEY=or-key\n")
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg, err := LoadWithOptions(Options{Path: path, DotEnvDirs: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, "or-key", cfg.APIKey)

	t.Setenv("OPENROUTER_API_KEY", "env-key")
	cfg, err = LoadWithOptions(Options{Path: path, DotEnvDirs: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
}

func TestConfig_UsesBearerAuth(t *testing.T) {
	tests := []struct {
		provider string
		key      string
		expected bool
	}{
		{provider: "openai", key: "k", expected: true},
		{provider: "OpenRouter", key: "k", expected: true},
		{provider: "custom", key: "k", expected: true},
		{provider: "custom", key: "", expected: false},
		{provider: "google_vertexai", key: "k", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.key, func(t *testing.T) {
			cfg := Defaults()
			cfg.Provider = tt.provider
			cfg.APIKey = tt.key
			assert.Equal(t, tt.expected, cfg.UsesBearerAuth())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Defaults()
	cfg.Endpoint = " "
	cfg.Temperature = 3
	cfg.MaxTokens = 0
	cfg.RequestTimeout = -1
	cfg.ConfigVersion = "7.0"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_endpoint is empty")
	assert.Contains(t, err.Error(), "temperature")
	assert.Contains(t, err.Error(), "max_tokens")
	assert.Contains(t, err.Error(), "llm_request_timeout")
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestConfig_Title(t *testing.T) {
	cfg := Defaults()
	cfg.AppVersion = "v0.9.6"
	assert.Equal(t, "LM Buddy v0.9.6", cfg.Title())
	cfg.AppVersion = ""
	assert.Equal(t, "LM Buddy", cfg.Title())
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "hotkey: ctrl+shift+g\n")

	store := NewStore(Options{Path: path})
	assert.Equal(t, "config", store.Name())
	require.NoError(t, store.Initialize())
	assert.Equal(t, "ctrl+shift+g", store.HotkeyCombo())

	writeFile(t, dir, "config.yaml", "hotkey: ctrl+shift+h\n")
	require.NoError(t, store.Reload())
	assert.Equal(t, "ctrl+shift+h", store.HotkeyCombo())

	// broken file on startup falls back to defaults
	writeFile(t, dir, "config.yaml", "hotkey: [\n")
	broken := NewStore(Options{Path: path})
	require.NoError(t, broken.Initialize())
	assert.Equal(t, "ctrl+shift+f", broken.HotkeyCombo())
	require.NoError(t, broken.Shutdown())
}

func TestStaticStore(t *testing.T) {
	cfg := Defaults()
	cfg.Hotkey = "alt+q"
	store := NewStaticStore(cfg)
	require.NoError(t, store.Initialize())
	assert.Equal(t, "alt+q", store.HotkeyCombo())
	assert.Equal(t, "alt+q", store.Current().Hotkey)
}
