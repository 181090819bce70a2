package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/voicegw/pkg/ai/llm"
)

// FakeLLM is a fake LLM implementation for testing. It cycles through its
// responses and records every request it receives.
type FakeLLM struct {
	responses []string

	// Echo appends the last user message to each response.
	Echo bool
	// Err, when set, is returned by Chat.
	Err error
	// Delay simulates provider latency; Chat honours ctx while waiting.
	Delay time.Duration

	mu        sync.Mutex
	callCount int
	requests  []llm.ChatRequest
}

// NewFakeLLM creates a new fake LLM provider with predefined responses.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{
			"This is a fake response from the fake LLM provider.",
			"I'm a fake AI assistant. How can I help you?",
			"This is another fake response for testing purposes.",
		}
	}
	return &FakeLLM{responses: responses}
}

// Chat processes a chat request and returns a fake response.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	response := f.responses[f.callCount%len(f.responses)]
	f.callCount++
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return llm.ChatResponse{}, ctx.Err()
		}
	}
	if f.Err != nil {
		return llm.ChatResponse{}, f.Err
	}

	if f.Echo && len(req.Messages) > 0 {
		lastMsg := req.Messages[len(req.Messages)-1]
		if lastMsg.Role == llm.RoleUser {
			response = fmt.Sprintf("%s (You said: %s)", response, lastMsg.Content)
		}
	}

	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: response,
		},
		TokensUsed:   len(strings.Fields(response)) + 10,
		FinishReason: "stop",
	}, nil
}

// Requests returns a copy of every request seen so far.
func (f *FakeLLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.ChatRequest(nil), f.requests...)
}

// Capabilities returns the fake LLM capabilities.
func (f *FakeLLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsStreaming:  false,
		MaxTokens:          4096,
		SupportedModels:    []string{"fake-model-1", "fake-model-2"},
		SupportsSystemRole: true,
	}
}
