// Package api provides the HTTP REST API server for finlens.
//
// It exposes endpoints for starting analyses from uploaded statements,
// resolving validation issues, downloading reports and exports, chatting
// about a finished analysis, and managing configuration.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/internal/config"
	"github.com/seenimoa/finlens/internal/infra"
	"github.com/seenimoa/finlens/internal/pipeline"
	"github.com/seenimoa/finlens/internal/report"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

// Version is reported by /health. It is set by the command at startup.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	pipe     *pipeline.Pipeline
	sessions *infra.Cache
	started  time.Time
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config) (*Server, error) {
	pipe, err := pipeline.FromConfig(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "api: pipeline setup")
	}
	return NewServerWithPipeline(cfg, pipe), nil
}

// NewServerWithPipeline creates a server around an existing pipeline.
func NewServerWithPipeline(cfg *config.Config, pipe *pipeline.Pipeline) *Server {
	ttl := time.Duration(cfg.Analysis.SessionTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	srv := &Server{
		cfg:      cfg,
		pipe:     pipe,
		sessions: infra.NewCache(ttl),
		started:  time.Now(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.sessions.RunJanitor(ctx, time.Minute)

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return eris.Wrap(err, "api: listen")
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	origins := s.cfg.API.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// Streaming endpoints run without a request deadline.
		r.Get("/health", s.handleHealth)
		r.Get("/analyses/{id}/chat/ws", s.handleChatWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(5 * time.Minute))

			r.Get("/ratios", s.handleRatioCatalog)
			r.Get("/template.csv", s.handleTemplateCSV)
			r.Get("/template.xlsx", s.handleTemplateXLSX)
			r.Post("/forecast", s.handleForecast)

			r.Post("/analyses", s.handleCreateAnalysis)
			r.Route("/analyses/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAnalysis)
				r.Delete("/", s.handleDeleteAnalysis)
				r.Post("/corrections", s.handleCorrections)
				r.Get("/report.pdf", s.handleReportPDF)
				r.Get("/report.html", s.handleReportHTML)
				r.Get("/report.md", s.handleReportMarkdown)
				r.Get("/ratios.xlsx", s.handleRatiosXLSX)
				r.Get("/ratios.csv", s.handleRatiosCSV)
				r.Get("/chat", s.handleChatHistory)
				r.Post("/chat", s.handleChat)
			})

			r.Get("/config", s.handleGetConfig)
			r.Put("/config", s.handleUpdateConfig)
			r.Get("/config/keys", s.handleGetConfigKeys)
		})
	})

	return r
}

// ════════════════════════════════════════════════════════════════════
// Response Types
// ════════════════════════════════════════════════════════════════════

// APIResponse is the standard JSON response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	AI       bool   `json:"ai"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

// RatioInfo describes one ratio in the catalog.
type RatioInfo struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	Growth     bool   `json:"growth"`
	Valuation  bool   `json:"valuation"`
	Percentage bool   `json:"percentage"`
}

// ForecastRequest is the body of POST /api/v1/forecast.
type ForecastRequest struct {
	Ratios  *models.RatioResult `json:"ratios"`
	Periods int                 `json:"periods"`
}

// ════════════════════════════════════════════════════════════════════
// Handlers
// ════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: HealthResponse{
			Status:   "ok",
			Version:  Version,
			AI:       s.pipe.HasAI(),
			Sessions: s.sessions.Len(),
			Uptime:   report.FormatDuration(time.Since(s.started)),
		},
	})
}

func (s *Server) handleRatioCatalog(w http.ResponseWriter, r *http.Request) {
	kinds := fundamental.AllRatioKinds()
	out := make([]RatioInfo, len(kinds))
	for i, k := range kinds {
		out[i] = RatioInfo{
			Name:       k.String(),
			Category:   string(k.Category()),
			Growth:     k.IsGrowth(),
			Valuation:  k.IsValuation(),
			Percentage: utils.IsPercentageRatio(k.String()),
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) handleTemplateCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := report.WriteTemplateCSV(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeFile(w, "text/csv; charset=utf-8", statement.TemplateCSVName, buf.Bytes())
}

func (s *Server) handleTemplateXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := report.WriteTemplateXLSX(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeFile(w, xlsxContentType, statement.TemplateXLSXName, buf.Bytes())
}

// handleForecast projects a ratio table supplied by the caller.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Ratios == nil || req.Ratios.Len() == 0 {
		writeError(w, http.StatusBadRequest, "ratios are required")
		return
	}
	if req.Periods == 0 {
		req.Periods = s.settings().Analysis.ForecastPeriods
	}

	out, err := fundamental.Forecast(req.Ratios, req.Periods)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out.Rounded(4)})
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var flow *pipeline.FlowError
	switch {
	case errors.As(err, &flow),
		errors.Is(err, pipeline.ErrInvalidRequest),
		errors.Is(err, fundamental.ErrInvalidPeriods),
		errors.Is(err, report.ErrFontRequired):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotAwaiting),
		errors.Is(err, pipeline.ErrNotReady),
		errors.Is(err, pipeline.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrAIUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// writeFile sends data as a download.
func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Str("file", name).Msg("download interrupted")
	}
}

func requestLogger(r *http.Request) *zerolog.Logger {
	return hlog.FromRequest(r)
}
