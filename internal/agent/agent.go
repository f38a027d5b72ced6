// Package agent drives the AI collaborator for financial analysis: it
// writes the bilingual narrative, estimates industry benchmarks, extracts
// statement records from PDFs, and answers follow-up chat questions.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/finlens/internal/llm"
)

// ErrAIResponse classifies every failure of the AI collaborator: an
// unreachable service, an empty reply, or a reply that cannot be decoded.
var ErrAIResponse = errors.New("agent: AI response failed")

// AIError is a user-facing AI failure. Message is shown verbatim; the
// underlying cause stays reachable through errors.Is / errors.As.
type AIError struct {
	Message string
	Err     error
}

func (e *AIError) Error() string { return e.Message }

// Unwrap exposes both the classification and the cause.
func (e *AIError) Unwrap() []error { return []error{ErrAIResponse, e.Err} }

// aiError builds an AIError whose message is prefix followed by the
// cause's message.
func aiError(prefix string, err error) error {
	return &AIError{Message: prefix + err.Error(), Err: err}
}

// ── Memory ──

// Memory is the running conversation of a chat session. It is safe for
// concurrent use.
type Memory struct {
	mu       sync.RWMutex
	messages []llm.Message
}

// NewMemory creates an empty conversation memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Add appends messages to the memory.
func (m *Memory) Add(msgs ...llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
}

// Messages returns a copy of the conversation.
func (m *Memory) Messages() []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Size returns the number of messages in memory.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Clear resets the memory.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = m.messages[:0]
}

// ── BaseAgent ──

// BaseAgent sends one-shot requests for a named task and logs their cost.
// The specialized agents embed it.
type BaseAgent struct {
	name     string
	provider llm.LLMProvider
	opts     *llm.ChatOptions
}

// NewBaseAgent creates a BaseAgent. opts may be nil.
func NewBaseAgent(name string, provider llm.LLMProvider, opts *llm.ChatOptions) *BaseAgent {
	return &BaseAgent{name: name, provider: provider, opts: opts}
}

// Name returns the agent's identifier.
func (a *BaseAgent) Name() string { return a.name }

// Provider returns the agent's LLM provider.
func (a *BaseAgent) Provider() llm.LLMProvider { return a.provider }

// options returns a copy of the agent's options with JSON mode set as
// requested.
func (a *BaseAgent) options(jsonMode bool) *llm.ChatOptions {
	var o llm.ChatOptions
	if a.opts != nil {
		o = *a.opts
	}
	o.JSONMode = jsonMode
	return &o
}

// ask sends messages and returns the reply text.
func (a *BaseAgent) ask(ctx context.Context, messages []llm.Message, jsonMode bool) (string, error) {
	if a.provider == nil {
		return "", eris.Wrap(llm.ErrNoProviders, "agent: "+a.name)
	}
	start := time.Now()
	resp, err := a.provider.Chat(ctx, messages, a.options(jsonMode))
	if err != nil {
		log.Warn().Str("component", "agent").Str("agent", a.name).Err(err).Msg("AI request failed")
		return "", err
	}

	log.Debug().
		Str("component", "agent").
		Str("agent", a.name).
		Str("provider", resp.Provider).
		Str("model", resp.Model).
		Int("tokens", resp.Usage.TotalTokens).
		Dur("duration", time.Since(start)).
		Msg("AI request complete")

	if resp.FinishReason == llm.FinishLength {
		log.Warn().Str("component", "agent").Str("agent", a.name).Msg("AI response truncated at max tokens")
	}
	return resp.Content, nil
}
