package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"lmbuddy/internal/logger"
)

// EnvPrefix is the prefix of environment variables that override config keys.
const EnvPrefix = "LMBUDDY"

// ErrConfigFile is returned when a config file exists but cannot be parsed.
var ErrConfigFile = errors.New("invalid config file")

// Options controls where Load looks for configuration.
type Options struct {
	// Path of the config file. Empty selects DefaultPath(); a missing file is not an error.
	Path string
	// DotEnvDirs are searched in order for .env files. Earlier files win.
	DotEnvDirs []string
}

// DefaultOptions returns the options used by the CLI: the default config path,
// and .env files from the config directory and the working directory.
func DefaultOptions(path string) Options {
	opts := Options{Path: path}
	if dir, err := Dir(); err == nil {
		opts.DotEnvDirs = append(opts.DotEnvDirs, dir)
	}
	if wd, err := os.Getwd(); err == nil {
		opts.DotEnvDirs = append(opts.DotEnvDirs, wd)
	}
	return opts
}

// Dir returns the LM Buddy config directory under XDG_CONFIG_HOME, falling
// back to ~/.config.
func Dir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configHome, "lmbuddy"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := Dir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads configuration using DefaultOptions.
func Load(path string) (*Config, error) {
	return LoadWithOptions(DefaultOptions(path))
}

// LoadWithOptions reads configuration from the layers described in the package
// documentation. A config file that exists but fails to parse yields
// ErrConfigFile; callers typically fall back to Defaults().
func LoadWithOptions(opts Options) (*Config, error) {
	v := newViper()

	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrConfigFile, path, err)
		}
		warnUnknownKeys(v, path)
		logger.Debug("Configuration loaded", "path", path)
	} else {
		logger.Debug("No config file, using defaults", "path", path)
	}

	dotenv, raw, err := readDotEnv(opts.DotEnvDirs)
	if err != nil {
		return nil, err
	}
	if len(dotenv) > 0 {
		if err := v.MergeConfigMap(dotenv); err != nil {
			return nil, fmt.Errorf("failed to merge .env values: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	applyProviderKey(cfg, raw)
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// warnUnknownKeys logs keys present in the file that no component reads.
func warnUnknownKeys(v *viper.Viper, path string) {
	known := make(map[string]bool)
	for key := range defaultValues() {
		known[key] = true
	}
	for _, key := range presentationKeys {
		known[key] = true
	}

	var unknown []string
	for _, key := range v.AllKeys() {
		top := strings.SplitN(key, ".", 2)[0]
		if !known[top] && v.InConfig(top) {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		logger.Warn("Unknown key in config file is ignored", "key", key, "path", path)
	}
}

// readDotEnv collects LMBUDDY_* values from .env files, keyed by config key.
// The raw map keeps every variable as written, first file winning.
func readDotEnv(dirs []string) (map[string]any, map[string]string, error) {
	values := make(map[string]any)
	raw := make(map[string]string)
	for _, dir := range dirs {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err != nil {
			continue
		}

		envMap, err := godotenv.Read(envPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse .env file %s: %w", envPath, err)
		}

		for name, value := range envMap {
			if _, seen := raw[name]; !seen {
				raw[name] = value
			}
			key, ok := configKeyFromEnv(name)
			if !ok {
				continue
			}
			if _, seen := values[key]; !seen {
				values[key] = value
			}
		}
		logger.Debug("Loaded .env file", "path", envPath)
	}
	return values, raw, nil
}

// configKeyFromEnv maps LMBUDDY_LLM_API_KEY to llm_api_key.
func configKeyFromEnv(name string) (string, bool) {
	prefix := EnvPrefix + "_"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	key := strings.ToLower(strings.TrimPrefix(name, prefix))
	if _, known := defaultValues()[key]; !known {
		return "", false
	}
	return key, true
}

// applyProviderKey fills an empty API key from the provider's conventional
// variable, looked up in the environment first and then in .env files.
func applyProviderKey(cfg *Config, dotenv map[string]string) {
	if cfg.APIKey != "" {
		return
	}
	var name string
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		name = "OPENAI_API_KEY"
	case "openrouter":
		name = "OPENROUTER_API_KEY"
	default:
		return
	}
	if key := os.Getenv(name); key != "" {
		cfg.APIKey = key
		return
	}
	cfg.APIKey = dotenv[name]
}
