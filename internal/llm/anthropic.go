package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModelName = "claude-sonnet-4-20250514"

// jsonOnlyInstruction is appended to the system prompt for backends
// without a native JSON response mode.
const jsonOnlyInstruction = "Respond with a single raw JSON document and nothing else."

// anthropicModels lists commonly available Anthropic models.
var anthropicModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-haiku-20241022",
}

// AnthropicProvider implements LLMProvider for Anthropic's Messages API.
type AnthropicProvider struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
	sdk       anthropic.Client
}

// AnthropicOption configures the Anthropic provider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicModel sets the default model.
func WithAnthropicModel(model string) AnthropicOption {
	return func(p *AnthropicProvider) { p.model = model }
}

// WithAnthropicBaseURL sets a custom base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(p *AnthropicProvider) { p.baseURL = strings.TrimRight(url, "/") + "/" }
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) { p.client = client }
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	p := &AnthropicProvider{
		apiKey:    apiKey,
		model:     defaultAnthropicModelName,
		maxTokens: 8192,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(p.apiKey),
		option.WithHTTPClient(p.client),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.sdk = anthropic.NewClient(reqOpts...)
	return p, nil
}

func (p *AnthropicProvider) Name() string     { return ProviderAnthropic }
func (p *AnthropicProvider) Models() []string { return anthropicModels }

// Ping verifies the API key by listing models.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	if _, err := p.sdk.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return p.classifyError(err)
	}
	return nil
}

// Chat sends a messages request to Anthropic.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	if hasAttachments(messages) {
		return nil, fmt.Errorf("%w: %s", ErrAttachmentNotSupported, ProviderAnthropic)
	}

	params := p.buildRequest(messages, opts)
	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, p.classifyError(err)
	}
	return p.parseResponse(resp, start), nil
}

// ChatStream sends a streaming messages request to Anthropic.
func (p *AnthropicProvider) ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error) {
	if hasAttachments(messages) {
		return nil, fmt.Errorf("%w: %s", ErrAttachmentNotSupported, ProviderAnthropic)
	}

	stream := p.sdk.Messages.NewStreaming(ctx, p.buildRequest(messages, opts))
	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
					ch <- StreamChunk{Content: d.Text}
				}
			case anthropic.MessageStopEvent:
				ch <- StreamChunk{Done: true, FinishReason: FinishStop}
				return
			}
		}
		if err := stream.Err(); err != nil {
			ch <- StreamChunk{Err: p.classifyError(err)}
		}
	}()
	return ch, nil
}

// ── Helpers ──

func (p *AnthropicProvider) resolveModel(opts *ChatOptions) string {
	if opts != nil && opts.Model != "" {
		return opts.Model
	}
	return p.model
}

func (p *AnthropicProvider) buildRequest(messages []Message, opts *ChatOptions) anthropic.MessageNewParams {
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.resolveModel(opts)),
		MaxTokens: int64(p.maxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	if opts != nil {
		if opts.MaxTokens > 0 {
			params.MaxTokens = int64(opts.MaxTokens)
		}
		if opts.Temperature > 0 {
			params.Temperature = anthropic.Float(opts.Temperature)
		}
		if opts.TopP > 0 {
			params.TopP = anthropic.Float(opts.TopP)
		}
		if len(opts.Stop) > 0 {
			params.StopSequences = opts.Stop
		}
		if opts.JSONMode {
			if system != "" {
				system += "\n\n"
			}
			system += jsonOnlyInstruction
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (p *AnthropicProvider) parseResponse(resp *anthropic.Message, start time.Time) *Response {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	r := &Response{
		Content:      sb.String(),
		Model:        string(resp.Model),
		Provider:     ProviderAnthropic,
		Latency:      time.Since(start),
		FinishReason: FinishStop,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		r.FinishReason = FinishLength
	}
	return r
}

func (p *AnthropicProvider) classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: anthropic: invalid API key", ErrNoAPIKey)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: anthropic: %v", ErrRateLimit, err)
		}
		if apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: anthropic: %v", ErrProviderDown, err)
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}
