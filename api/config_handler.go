package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/seenimoa/finlens/internal/config"
)

// configMu serialises reads and writes of the running config.
var configMu sync.Mutex

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config     *config.Config `json:"config"`
	ConfigFile string         `json:"config_file"` // path to the active config file
	// RestartRequired is set after an update: the running pipeline keeps
	// the provider and limits it was started with.
	RestartRequired bool `json:"restart_required,omitempty"`
}

// settings returns a copy of the running configuration.
func (s *Server) settings() config.Config {
	configMu.Lock()
	defer configMu.Unlock()
	return *s.cfg
}

// redacted returns a copy of cfg without provider keys. Key status is
// served by /config/keys.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg
	out.LLM.GeminiKey = ""
	out.LLM.AnthropicKey = ""
	out.LLM.OpenAIKey = ""
	out.Analysis.Languages = append([]string(nil), cfg.Analysis.Languages...)
	out.API.CORSOrigins = append([]string(nil), cfg.API.CORSOrigins...)
	return &out
}

// handleGetConfig returns the current (running) configuration.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configMu.Lock()
	cfg := redacted(s.cfg)
	configMu.Unlock()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:     cfg,
			ConfigFile: config.ConfigFilePath(),
		},
	})
}

// handleUpdateConfig merges the provided partial configuration into the running
// config, validates and persists it, and returns the updated config.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var incoming config.Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	configMu.Lock()
	defer configMu.Unlock()

	merged := *s.cfg
	mergeConfig(&merged, &incoming)
	if err := config.Validate(&merged); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfgPath := config.ConfigFilePath()
	if err := config.SaveToFile(&merged, cfgPath); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save config: "+err.Error())
		return
	}
	*s.cfg = merged

	requestLogger(r).Info().Str("file", cfgPath).Msg("configuration updated")
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:          redacted(s.cfg),
			ConfigFile:      cfgPath,
			RestartRequired: true,
		},
	})
}

// handleGetConfigKeys returns the status of all sensitive API keys.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	configMu.Lock()
	keys := config.CheckAPIKeys(s.cfg)
	configMu.Unlock()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    keys,
	})
}

// mergeConfig copies non-zero/non-empty values from src into dst.
func mergeConfig(dst, src *config.Config) {
	// LLM
	if src.LLM.Primary != "" {
		dst.LLM.Primary = src.LLM.Primary
	}
	if src.LLM.GeminiKey != "" {
		dst.LLM.GeminiKey = src.LLM.GeminiKey
	}
	if src.LLM.AnthropicKey != "" {
		dst.LLM.AnthropicKey = src.LLM.AnthropicKey
	}
	if src.LLM.OpenAIKey != "" {
		dst.LLM.OpenAIKey = src.LLM.OpenAIKey
	}
	if src.LLM.OllamaURL != "" {
		dst.LLM.OllamaURL = src.LLM.OllamaURL
	}
	if src.LLM.Model != "" {
		dst.LLM.Model = src.LLM.Model
	}
	if src.LLM.DocumentProvider != "" {
		dst.LLM.DocumentProvider = src.LLM.DocumentProvider
	}
	if src.LLM.Temperature != 0 {
		dst.LLM.Temperature = src.LLM.Temperature
	}
	if src.LLM.MaxTokens != 0 {
		dst.LLM.MaxTokens = src.LLM.MaxTokens
	}
	if src.LLM.TimeoutSec != 0 {
		dst.LLM.TimeoutSec = src.LLM.TimeoutSec
	}
	if src.LLM.RequestsPerMinute != 0 {
		dst.LLM.RequestsPerMinute = src.LLM.RequestsPerMinute
	}

	// Analysis
	if src.Analysis.ForecastPeriods != 0 {
		dst.Analysis.ForecastPeriods = src.Analysis.ForecastPeriods
	}
	if src.Analysis.ForecastMinPeriods != 0 {
		dst.Analysis.ForecastMinPeriods = src.Analysis.ForecastMinPeriods
	}
	if len(src.Analysis.Languages) > 0 {
		dst.Analysis.Languages = src.Analysis.Languages
	}
	if src.Analysis.SessionTTL != 0 {
		dst.Analysis.SessionTTL = src.Analysis.SessionTTL
	}
	if src.Analysis.MaxUploadMB != 0 {
		dst.Analysis.MaxUploadMB = src.Analysis.MaxUploadMB
	}

	// API
	if src.API.Host != "" {
		dst.API.Host = src.API.Host
	}
	if src.API.Port != 0 {
		dst.API.Port = src.API.Port
	}
	if len(src.API.CORSOrigins) > 0 {
		dst.API.CORSOrigins = src.API.CORSOrigins
	}

	// Report
	if src.Report.OutputDir != "" {
		dst.Report.OutputDir = src.Report.OutputDir
	}
	if src.Report.Author != "" {
		dst.Report.Author = src.Report.Author
	}
	if src.Report.FontPath != "" {
		dst.Report.FontPath = src.Report.FontPath
	}

	// Logging
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
}
