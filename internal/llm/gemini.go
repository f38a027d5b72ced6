package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModelName = "gemini-2.5-flash"

// geminiModels lists commonly available Gemini models.
var geminiModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash",
}

// GeminiProvider implements LLMProvider on the Gemini API. It is the only
// backend that reads statement PDFs directly.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	genai   *genai.Client
}

// GeminiOption configures the Gemini provider.
type GeminiOption func(*GeminiProvider)

// WithGeminiModel sets the default model.
func WithGeminiModel(model string) GeminiOption {
	return func(p *GeminiProvider) { p.model = model }
}

// WithGeminiHTTPClient sets a custom HTTP client.
func WithGeminiHTTPClient(client *http.Client) GeminiOption {
	return func(p *GeminiProvider) { p.client = client }
}

// WithGeminiBaseURL points the client at a different endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(p *GeminiProvider) { p.baseURL = url }
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	p := &GeminiProvider{
		apiKey: apiKey,
		model:  defaultGeminiModelName,
		client: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}

	cc := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.client,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.genai = client
	return p, nil
}

func (p *GeminiProvider) Name() string            { return ProviderGemini }
func (p *GeminiProvider) Models() []string        { return geminiModels }
func (p *GeminiProvider) SupportsDocuments() bool { return true }

// Ping verifies the API key by listing models.
func (p *GeminiProvider) Ping(ctx context.Context) error {
	if _, err := p.genai.Models.List(ctx, nil); err != nil {
		return p.classifyError(err)
	}
	return nil
}

// Chat sends a generate content request to Gemini.
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	model := p.resolveModel(opts)
	contents, config := p.buildRequest(messages, opts)

	resp, err := p.genai.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, p.classifyError(err)
	}
	return p.parseResponse(resp, model, start)
}

// ChatStream streams a generate content request from Gemini.
func (p *GeminiProvider) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error) {
	model := p.resolveModel(opts)
	contents, config := p.buildRequest(messages, opts)

	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		for resp, err := range p.genai.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				ch <- StreamChunk{Err: p.classifyError(err)}
				return
			}
			ch <- StreamChunk{Content: resp.Text()}
		}
		ch <- StreamChunk{Done: true, FinishReason: FinishStop}
	}()
	return ch, nil
}

// ── Helpers ──

func (p *GeminiProvider) resolveModel(opts *ChatOptions) string {
	if opts != nil && opts.Model != "" {
		return opts.Model
	}
	return p.model
}

func (p *GeminiProvider) buildRequest(messages []Message, opts *ChatOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		parts := []*genai.Part{genai.NewPartFromText(m.Content)}
		for _, a := range m.Attachments {
			parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts != nil {
		if opts.Temperature > 0 {
			config.Temperature = genai.Ptr(float32(opts.Temperature))
		}
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.TopP > 0 {
			config.TopP = genai.Ptr(float32(opts.TopP))
		}
		if len(opts.Stop) > 0 {
			config.StopSequences = opts.Stop
		}
		if opts.JSONMode {
			config.ResponseMIMEType = "application/json"
		}
	}
	return contents, config
}

func (p *GeminiProvider) parseResponse(resp *genai.GenerateContentResponse, model string, start time.Time) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	r := &Response{
		Content:      resp.Text(),
		Model:        model,
		Provider:     ProviderGemini,
		Latency:      time.Since(start),
		FinishReason: FinishStop,
	}
	if resp.ModelVersion != "" {
		r.Model = resp.ModelVersion
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		r.FinishReason = FinishLength
	}
	if u := resp.UsageMetadata; u != nil {
		r.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return r, nil
}

func (p *GeminiProvider) classifyError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("%w: gemini: %v", ErrRateLimit, err)
	case strings.Contains(msg, "API_KEY_INVALID") || strings.Contains(msg, "403"):
		return fmt.Errorf("%w: gemini: %v", ErrNoAPIKey, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
