package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/voicegw/pkg/ai/llm"
)

const defaultChatModel = openai.GPT4oMini

// LLM implements llm.LLM using OpenAI chat completions.
type LLM struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewLLM creates a chat provider. An empty model selects the default.
func NewLLM(client *openai.Client, model string, logger *slog.Logger) *LLM {
	if model == "" {
		model = defaultChatModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{client: client, model: model, logger: logger.With(slog.String("provider", "openai-llm"))}
}

// Chat performs chat completion with conversation history
func (o *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return llm.ChatResponse{}, classify("chat", err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("openai chat: no completion choices returned")
	}

	choice := resp.Choices[0]
	o.logger.Debug("Chat completion finished",
		slog.String("model", o.model),
		slog.Int("tokens", resp.Usage.TotalTokens),
		slog.Duration("duration", time.Since(start)))

	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: choice.Message.Content,
		},
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Capabilities returns the OpenAI provider's capabilities
func (o *LLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsStreaming:  false,
		MaxTokens:          128000,
		SupportedModels:    []string{openai.GPT4oMini, openai.GPT4o, openai.GPT4Turbo},
		SupportsSystemRole: true,
	}
}
