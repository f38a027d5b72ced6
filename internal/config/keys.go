package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name     string       `json:"name"`
	Provider string       `json:"provider"`
	Source   APIKeySource `json:"source"`
	IsSet    bool         `json:"is_set"`
	Masked   string       `json:"masked,omitempty"` // e.g., "AIz...abc"
}

// CheckAPIKeys returns the status of every provider key.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("Gemini API Key", "gemini", cfg.LLM.GeminiKey, EnvPrefix+"_LLM_GEMINI_KEY", "GEMINI_API_KEY"),
		checkKey("Anthropic API Key", "anthropic", cfg.LLM.AnthropicKey, EnvPrefix+"_LLM_ANTHROPIC_KEY"),
		checkKey("OpenAI API Key", "openai", cfg.LLM.OpenAIKey, EnvPrefix+"_LLM_OPENAI_KEY"),
	}
}

// HasKeyFor reports whether the named provider can be used. Ollama needs
// only a URL.
func HasKeyFor(cfg *Config, provider string) bool {
	switch provider {
	case "gemini":
		return cfg.LLM.GeminiKey != ""
	case "anthropic":
		return cfg.LLM.AnthropicKey != ""
	case "openai":
		return cfg.LLM.OpenAIKey != ""
	case "ollama":
		return cfg.LLM.OllamaURL != ""
	}
	return false
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, provider, value string, envVars ...string) KeyStatus {
	status := KeyStatus{
		Name:     name,
		Provider: provider,
		IsSet:    value != "",
		Source:   KeySourceNone,
	}
	if value == "" {
		return status
	}

	status.Source = KeySourceConfig
	for _, env := range envVars {
		if os.Getenv(env) == value {
			status.Source = KeySourceEnv
			break
		}
	}
	status.Masked = maskKey(value)
	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
