package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/finlens/internal/config"
	"github.com/seenimoa/finlens/internal/infra"
)

// Router dispatches requests to the primary provider. A failed request is
// reported to the caller as-is: there is no retry and no fallback to a
// different provider. PDF extraction may use a separate document provider.
type Router struct {
	mu        sync.RWMutex
	providers map[string]LLMProvider
	primary   string
	document  string
	limiter   *infra.RateLimiter
	defaults  ChatOptions
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithDocumentProvider names the provider used for PDF extraction.
func WithDocumentProvider(name string) RouterOption {
	return func(r *Router) { r.document = name }
}

// WithRateLimiter throttles outgoing requests.
func WithRateLimiter(l *infra.RateLimiter) RouterOption {
	return func(r *Router) { r.limiter = l }
}

// WithDefaultOptions fills unset request options (temperature, max tokens).
func WithDefaultOptions(opts ChatOptions) RouterOption {
	return func(r *Router) { r.defaults = opts }
}

// NewRouter creates a new LLM router with the given primary provider.
func NewRouter(primary string, opts ...RouterOption) *Router {
	r := &Router{
		providers: make(map[string]LLMProvider),
		primary:   primary,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider adds a provider to the router.
func (r *Router) RegisterProvider(provider LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider returns a registered provider by name.
func (r *Router) GetProvider(name string) (LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Primary returns the primary provider.
func (r *Router) Primary() (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.primary]
	if !ok {
		return nil, fmt.Errorf("%w: primary provider %q not registered", ErrNoProviders, r.primary)
	}
	return p, nil
}

// DocumentProvider returns the provider for PDF extraction: the configured
// document provider when registered, otherwise the primary.
func (r *Router) DocumentProvider() (LLMProvider, error) {
	if r.document != "" {
		if p, ok := r.GetProvider(r.document); ok {
			return &limited{LLMProvider: p, router: r}, nil
		}
		log.Warn().Str("component", "llm/router").Str("provider", r.document).Msg("document provider not registered, using primary")
	}
	p, err := r.Primary()
	if err != nil {
		return nil, err
	}
	return &limited{LLMProvider: p, router: r}, nil
}

// Chat sends the request to the primary provider.
func (r *Router) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	p, err := r.Primary()
	if err != nil {
		return nil, err
	}
	return r.chat(ctx, p, messages, opts)
}

// ChatStream streams the request from the primary provider.
func (r *Router) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error) {
	p, err := r.Primary()
	if err != nil {
		return nil, err
	}
	return r.chatStream(ctx, p, messages, opts)
}

// HealthCheck pings all registered providers and returns their status.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	providers := make(map[string]LLMProvider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(providers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, provider := range providers {
		wg.Add(1)
		go func(n string, p LLMProvider) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			err := p.Ping(pingCtx)
			mu.Lock()
			results[n] = err
			mu.Unlock()
		}(name, provider)
	}

	wg.Wait()
	return results
}

// Name returns the name of the primary provider (satisfies LLMProvider).
func (r *Router) Name() string {
	return "router/" + r.primary
}

// Models returns the union of models from all registered providers (satisfies LLMProvider).
func (r *Router) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []string
	seen := make(map[string]bool)
	for _, name := range r.sortedNames() {
		for _, m := range r.providers[name].Models() {
			if !seen[m] {
				seen[m] = true
				all = append(all, m)
			}
		}
	}
	return all
}

// Ping checks the primary provider's health (satisfies LLMProvider).
func (r *Router) Ping(ctx context.Context) error {
	p, err := r.Primary()
	if err != nil {
		return err
	}
	return p.Ping(ctx)
}

// SupportsDocuments reports whether the primary provider reads PDFs.
func (r *Router) SupportsDocuments() bool {
	p, err := r.Primary()
	return err == nil && SupportsDocuments(p)
}

// ProviderNames returns the names of all registered providers, sorted.
func (r *Router) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

// ── Internal Helpers ──

func (r *Router) sortedNames() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) withDefaults(opts *ChatOptions) *ChatOptions {
	out := r.defaults
	if opts != nil {
		o := *opts
		if o.Temperature == 0 {
			o.Temperature = out.Temperature
		}
		if o.MaxTokens == 0 {
			o.MaxTokens = out.MaxTokens
		}
		out = o
	}
	return &out
}

func (r *Router) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimit, err)
	}
	return nil
}

func (r *Router) chat(ctx context.Context, p LLMProvider, messages []Message, opts *ChatOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := p.Chat(ctx, messages, r.withDefaults(opts))
	if err != nil {
		log.Error().Err(err).Str("component", "llm/router").Str("provider", p.Name()).Msg("chat failed")
		return nil, err
	}
	log.Debug().Str("component", "llm/router").Str("provider", resp.Provider).Str("model", resp.Model).
		Int("tokens", resp.Usage.TotalTokens).Dur("latency", resp.Latency).Msg("chat complete")
	return resp, nil
}

func (r *Router) chatStream(ctx context.Context, p LLMProvider, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	ch, err := p.ChatStream(ctx, messages, r.withDefaults(opts))
	if err != nil {
		log.Error().Err(err).Str("component", "llm/router").Str("provider", p.Name()).Msg("stream failed")
		return nil, err
	}
	return ch, nil
}

// limited routes a single provider through the router's limiter and defaults.
type limited struct {
	LLMProvider
	router *Router
}

func (l *limited) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	return l.router.chat(ctx, l.LLMProvider, messages, opts)
}

func (l *limited) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error) {
	return l.router.chatStream(ctx, l.LLMProvider, messages, opts)
}

func (l *limited) SupportsDocuments() bool { return SupportsDocuments(l.LLMProvider) }

// NewRouterFromConfig creates a fully configured Router from the application config.
// It instantiates every provider that has credentials (or a URL, for Ollama).
func NewRouterFromConfig(cfg *config.Config) (*Router, error) {
	timeout := time.Duration(cfg.LLM.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	opts := []RouterOption{
		WithDocumentProvider(cfg.LLM.DocumentProvider),
		WithDefaultOptions(ChatOptions{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}),
	}
	if cfg.LLM.RequestsPerMinute > 0 {
		opts = append(opts, WithRateLimiter(infra.NewRateLimiter(cfg.LLM.RequestsPerMinute, time.Minute)))
	}
	router := NewRouter(cfg.LLM.Primary, opts...)

	registered := 0
	register := func(p LLMProvider, err error) {
		if err != nil {
			log.Warn().Err(err).Str("component", "llm/router").Msg("provider not registered")
			return
		}
		router.RegisterProvider(p)
		registered++
	}

	if cfg.LLM.GeminiKey != "" {
		register(NewGeminiProvider(cfg.LLM.GeminiKey,
			WithGeminiModel(modelFor(ProviderGemini, cfg.LLM.Model)),
			WithGeminiHTTPClient(newHTTPClient(timeout)),
		))
	}
	if cfg.LLM.AnthropicKey != "" {
		register(NewAnthropicProvider(cfg.LLM.AnthropicKey,
			WithAnthropicModel(modelFor(ProviderAnthropic, cfg.LLM.Model)),
			WithAnthropicHTTPClient(newHTTPClient(timeout)),
		))
	}
	if cfg.LLM.OpenAIKey != "" {
		register(NewOpenAIProvider(cfg.LLM.OpenAIKey,
			WithOpenAIModel(modelFor(ProviderOpenAI, cfg.LLM.Model)),
			WithOpenAIHTTPClient(newHTTPClient(timeout)),
		))
	}
	// Ollama needs no key; only register it when it is the chosen backend.
	if cfg.LLM.OllamaURL != "" && (cfg.LLM.Primary == ProviderOllama || cfg.LLM.DocumentProvider == ProviderOllama) {
		register(NewOllamaProvider(cfg.LLM.OllamaURL,
			WithOllamaModel(modelFor(ProviderOllama, cfg.LLM.Model)),
		))
	}

	if registered == 0 {
		return nil, ErrNoProviders
	}
	if _, ok := router.GetProvider(cfg.LLM.Primary); !ok {
		return nil, fmt.Errorf("%w: primary provider %q has no credentials", ErrNoAPIKey, cfg.LLM.Primary)
	}
	log.Info().Str("component", "llm/router").Str("primary", cfg.LLM.Primary).
		Strs("providers", router.ProviderNames()).Msg("LLM router ready")
	return router, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// modelFor keeps the configured model when it belongs to the provider's
// family and otherwise picks the provider default.
func modelFor(provider, model string) string {
	switch provider {
	case ProviderGemini:
		if strings.HasPrefix(model, "gemini") {
			return model
		}
		return defaultGeminiModelName
	case ProviderAnthropic:
		if strings.HasPrefix(model, "claude") {
			return model
		}
		return defaultAnthropicModelName
	case ProviderOpenAI:
		if strings.HasPrefix(model, "gpt") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") {
			return model
		}
		return defaultOpenAIModel
	default:
		if model == "" || strings.HasPrefix(model, "gemini") || strings.HasPrefix(model, "claude") || strings.HasPrefix(model, "gpt") {
			return defaultOllamaModel
		}
		return model
	}
}
