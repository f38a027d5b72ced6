package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/finlens/internal/agent/prompts"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/pkg/models"
)

const chatFailure = "Sorry, I encountered an error: "

// ChatSession answers follow-up questions about analyzed companies. Turns
// are serialised; a turn that fails leaves the history unchanged.
type ChatSession struct {
	*BaseAgent
	system  string
	memory  *Memory
	mu      sync.Mutex
	history []models.ChatMessage
}

type chatCompany struct {
	Name   string              `json:"name"`
	Ratios *models.RatioResult `json:"ratios"`
}

// NewChatSession creates a session whose context is the ratios of every
// analyzed company, benchmarks included.
func NewChatSession(provider llm.LLMProvider, opts *llm.ChatOptions, companies []models.CompanyData) (*ChatSession, error) {
	data := make([]chatCompany, len(companies))
	for i, c := range companies {
		data[i] = chatCompany{Name: c.Name, Ratios: roundedRatios(c)}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "agent: encode chat context")
	}
	return &ChatSession{
		BaseAgent: NewBaseAgent(prompts.AgentChat, provider, opts),
		system:    prompts.ChatSystem(string(b)),
		memory:    NewMemory(),
	}, nil
}

// SystemPrompt returns the session's system instruction.
func (c *ChatSession) SystemPrompt() string { return c.system }

// History returns the completed turns.
func (c *ChatSession) History() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.history...)
}

// Send streams the reply to message, calling onChunk for every piece of
// text as it arrives, and returns the full reply. onChunk may be nil. On
// error the partial reply is discarded and the turn is not recorded.
func (c *ChatSession) Send(ctx context.Context, message string, onChunk func(string)) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", eris.New("agent: chat message is empty")
	}
	if c.provider == nil {
		return "", aiError(chatFailure, llm.ErrNoProviders)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	user := llm.UserMessage(message)
	messages := append([]llm.Message{llm.SystemMessage(c.system)}, c.memory.Messages()...)
	messages = append(messages, user)

	stream, err := c.provider.ChatStream(ctx, messages, c.options(false))
	if err != nil {
		return "", aiError(chatFailure, err)
	}

	var reply strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			go drain(stream)
			log.Warn().Str("component", "agent").Err(chunk.Err).Int("partial_chars", reply.Len()).Msg("chat stream failed")
			return "", aiError(chatFailure, chunk.Err)
		}
		if chunk.Content == "" {
			continue
		}
		reply.WriteString(chunk.Content)
		if onChunk != nil {
			onChunk(chunk.Content)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", aiError(chatFailure, err)
	}

	text := reply.String()
	c.memory.Add(user, llm.AssistantMessage(text))
	now := time.Now()
	c.history = append(c.history,
		models.ChatMessage{Role: models.ChatUser, Text: message, Timestamp: now},
		models.ChatMessage{Role: models.ChatModel, Text: text, Timestamp: now},
	)

	log.Debug().Str("component", "agent").Int("turns", len(c.history)/2).Int("chars", len(text)).Dur("duration", time.Since(start)).Msg("chat reply streamed")
	return text, nil
}

func drain(ch <-chan llm.StreamChunk) {
	for range ch {
	}
}
