package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// openAIModels lists commonly available OpenAI models.
var openAIModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4.1",
	"gpt-4.1-mini",
	"o3-mini",
}

// OpenAIProvider implements LLMProvider for OpenAI's Chat Completions API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	sdk     *openai.Client
}

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIBaseURL sets a custom base URL (e.g., for Azure OpenAI or proxies).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithOpenAIModel sets the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.model = model }
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.client = client }
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	p := &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		model:   defaultOpenAIModel,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := openai.DefaultConfig(p.apiKey)
	cfg.BaseURL = p.baseURL
	cfg.HTTPClient = p.client
	p.sdk = openai.NewClientWithConfig(cfg)
	return p, nil
}

func (p *OpenAIProvider) Name() string     { return ProviderOpenAI }
func (p *OpenAIProvider) Models() []string { return openAIModels }

// Ping verifies the API key by listing models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.sdk.ListModels(ctx); err != nil {
		return p.classifyError(err)
	}
	return nil
}

// Chat sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	if hasAttachments(messages) {
		return nil, fmt.Errorf("%w: %s", ErrAttachmentNotSupported, ProviderOpenAI)
	}

	resp, err := p.sdk.CreateChatCompletion(ctx, p.buildRequest(messages, opts, false))
	if err != nil {
		return nil, p.classifyError(err)
	}
	return p.parseResponse(resp, start)
}

// ChatStream sends a streaming chat completion request to OpenAI.
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error) {
	if hasAttachments(messages) {
		return nil, fmt.Errorf("%w: %s", ErrAttachmentNotSupported, ProviderOpenAI)
	}

	stream, err := p.sdk.CreateChatCompletionStream(ctx, p.buildRequest(messages, opts, true))
	if err != nil {
		return nil, p.classifyError(err)
	}

	ch := make(chan StreamChunk, 64)
	go p.readStream(stream, ch)
	return ch, nil
}

// ── Helpers ──

func (p *OpenAIProvider) resolveModel(opts *ChatOptions) string {
	if opts != nil && opts.Model != "" {
		return opts.Model
	}
	return p.model
}

func (p *OpenAIProvider) buildRequest(messages []Message, opts *ChatOptions, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    p.resolveModel(opts),
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		Stream:   stream,
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if opts == nil {
		return req
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.TopP > 0 {
		req.TopP = float32(opts.TopP)
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (p *OpenAIProvider) parseResponse(resp openai.ChatCompletionResponse, start time.Time) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	choice := resp.Choices[0]
	r := &Response{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		Provider:     ProviderOpenAI,
		Latency:      time.Since(start),
		FinishReason: FinishStop,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if choice.FinishReason == openai.FinishReasonLength {
		r.FinishReason = FinishLength
	}
	return r, nil
}

func (p *OpenAIProvider) readStream(stream *openai.ChatCompletionStream, ch chan<- StreamChunk) {
	defer close(ch)
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			ch <- StreamChunk{Done: true, FinishReason: FinishStop}
			return
		}
		if err != nil {
			ch <- StreamChunk{Err: p.classifyError(err)}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		sc := StreamChunk{Content: resp.Choices[0].Delta.Content}
		if resp.Choices[0].FinishReason == openai.FinishReasonLength {
			sc.FinishReason = FinishLength
		}
		ch <- sc
	}
}

func (p *OpenAIProvider) classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: openai: invalid API key", ErrNoAPIKey)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: openai: %s", ErrRateLimit, apiErr.Message)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: openai: %s", ErrProviderDown, apiErr.Message)
		}
	}
	return fmt.Errorf("openai: %w", err)
}
