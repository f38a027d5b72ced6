// Package config handles configuration loading for finlens.
// It supports YAML config files with .env and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. FINLENS_LLM_GEMINI_KEY.
const EnvPrefix = "FINLENS"

// DefaultConfigFile is where SaveToFile writes when no file was loaded.
const DefaultConfigFile = "config/config.yaml"

// Config represents the complete application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"      yaml:"llm"      json:"llm"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis" json:"analysis"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"      json:"api"`
	Report   ReportConfig   `mapstructure:"report"   yaml:"report"   json:"report"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"  json:"logging"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Primary           string  `mapstructure:"primary"             yaml:"primary"             json:"primary"             validate:"oneof=gemini anthropic openai ollama"`
	GeminiKey         string  `mapstructure:"gemini_key"          yaml:"gemini_key"          json:"gemini_key,omitempty"`
	AnthropicKey      string  `mapstructure:"anthropic_key"       yaml:"anthropic_key"       json:"anthropic_key,omitempty"`
	OpenAIKey         string  `mapstructure:"openai_key"          yaml:"openai_key"          json:"openai_key,omitempty"`
	OllamaURL         string  `mapstructure:"ollama_url"          yaml:"ollama_url"          json:"ollama_url"          validate:"omitempty,url"`
	Model             string  `mapstructure:"model"               yaml:"model"               json:"model"`
	DocumentProvider  string  `mapstructure:"document_provider"   yaml:"document_provider"   json:"document_provider"   validate:"omitempty,oneof=gemini anthropic openai ollama"`
	Temperature       float64 `mapstructure:"temperature"         yaml:"temperature"         json:"temperature"         validate:"min=0,max=2"`
	MaxTokens         int     `mapstructure:"max_tokens"          yaml:"max_tokens"          json:"max_tokens"          validate:"min=1"`
	TimeoutSec        int     `mapstructure:"timeout_sec"         yaml:"timeout_sec"         json:"timeout_sec"         validate:"min=1"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute" validate:"min=0"`
}

// AnalysisConfig holds analysis pipeline settings.
type AnalysisConfig struct {
	ForecastPeriods    int      `mapstructure:"forecast_periods"     yaml:"forecast_periods"     json:"forecast_periods"     validate:"min=1,max=10"`
	ForecastMinPeriods int      `mapstructure:"forecast_min_periods" yaml:"forecast_min_periods" json:"forecast_min_periods" validate:"min=2"`
	Languages          []string `mapstructure:"languages"            yaml:"languages"            json:"languages"            validate:"min=1,dive,oneof=English Arabic"`
	SessionTTL         int      `mapstructure:"session_ttl"          yaml:"session_ttl"          json:"session_ttl"          validate:"min=60"` // seconds
	MaxUploadMB        int      `mapstructure:"max_upload_mb"        yaml:"max_upload_mb"        json:"max_upload_mb"        validate:"min=1"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"         json:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"         json:"port"         validate:"min=1,max=65535"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
}

// ReportConfig holds report export settings.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	Author    string `mapstructure:"author"     yaml:"author"     json:"author"`
	FontPath  string `mapstructure:"font_path"  yaml:"font_path"  json:"font_path"` // UTF-8 TTF for PDF text; needed for Arabic
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"  validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=text json"`
}

var (
	activeMu   sync.RWMutex
	activePath string
)

// ConfigFilePath returns the file the running configuration was read
// from, or DefaultConfigFile when none was found.
func ConfigFilePath() string {
	activeMu.RLock()
	defer activeMu.RUnlock()
	if activePath == "" {
		return DefaultConfigFile
	}
	return activePath
}

func setActivePath(path string) {
	activeMu.Lock()
	activePath = path
	activeMu.Unlock()
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.finlens/config.yaml (home directory)
//  3. /etc/finlens/config.yaml (system)
//
// A .env file in the working directory is loaded first, if present.
// Environment variables override config file values.
// Format: FINLENS_<SECTION>_<KEY>, e.g., FINLENS_LLM_GEMINI_KEY
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".finlens"))
	v.AddConfigPath("/etc/finlens")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	setActivePath(v.ConfigFileUsed())
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	setActivePath(path)
	return decode(v)
}

// Default returns the built-in defaults with environment overrides applied.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		// Defaults always decode; keep the zero config usable regardless.
		return &Config{}
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.primary", "gemini")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.document_provider", "gemini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout_sec", 120)
	v.SetDefault("llm.requests_per_minute", 60)

	// Analysis defaults
	v.SetDefault("analysis.forecast_periods", 3)
	v.SetDefault("analysis.forecast_min_periods", 3)
	v.SetDefault("analysis.languages", []string{"English", "Arabic"})
	v.SetDefault("analysis.session_ttl", 3600) // 1 hour
	v.SetDefault("analysis.max_upload_mb", 20)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Report defaults
	v.SetDefault("report.output_dir", "./reports")
	v.SetDefault("report.author", "AAA Finance")
	v.SetDefault("report.font_path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
// GEMINI_API_KEY is honoured when the prefixed variable is unset.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv(EnvPrefix + "_LLM_GEMINI_KEY"); key != "" {
		cfg.LLM.GeminiKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.LLM.GeminiKey == "" {
		cfg.LLM.GeminiKey = key
	}
	if key := os.Getenv(EnvPrefix + "_LLM_ANTHROPIC_KEY"); key != "" {
		cfg.LLM.AnthropicKey = key
	}
	if key := os.Getenv(EnvPrefix + "_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and enumerations. The error lists every
// failing field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s=%s, got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("config: invalid fields: %s", strings.Join(msgs, "; "))
}

// SaveToFile writes cfg as YAML, creating parent directories. API keys are
// written as-is, so the file is created owner-readable only.
func SaveToFile(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	setActivePath(path)
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
