// Package gemini provides a Google Gemini language generation provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/ai/llm"
	"github.com/chriscow/voicegw/pkg/plugin"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// LLM implements llm.LLM with the Gemini generateContent API.
type LLM struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// New creates a Gemini provider.
func New(ctx context.Context, cfg plugin.Config) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ai.ErrMissingCredential)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.HTTPClient != nil {
		cc.HTTPClient = cfg.HTTPClient
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, ai.NewFatalError(err, "gemini: create client")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{client: client, model: model, logger: logger.With(slog.String("provider", "gemini"))}, nil
}

// Chat sends the conversation to Gemini. System messages become the system
// instruction; assistant turns map to the "model" role.
func (g *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()

	var contents []*genai.Content
	for _, m := range req.Conversation() {
		var role genai.Role = genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	if len(contents) == 0 {
		return llm.ChatResponse{}, ai.NewFatalError(nil, "gemini: empty conversation")
	}

	config := &genai.GenerateContentConfig{}
	if sys := req.SystemPrompt(); sys != "" {
		config.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.ChatResponse{}, classify(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return llm.ChatResponse{}, ai.NewRecoverableError(nil, "gemini: empty response")
	}

	var tokens int
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	g.logger.Debug("Gemini generation finished",
		slog.String("model", g.model),
		slog.Int("tokens", tokens),
		slog.Duration("duration", time.Since(start)))

	return llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: text},
		TokensUsed:   tokens,
		FinishReason: "stop",
	}, nil
}

// Capabilities returns the Gemini provider's capabilities.
func (g *LLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsStreaming:  false,
		MaxTokens:          1000000,
		SupportedModels:    []string{"gemini-1.5-flash", "gemini-2.0-flash", "gemini-2.5-flash"},
		SupportsSystemRole: true,
	}
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ai.ClassifyHTTPStatus("gemini", apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return ai.ClassifyHTTPStatus("gemini", apiErrPtr.Code, apiErrPtr.Message)
	}
	return ai.NewRecoverableError(err, "gemini")
}

func newGeminiLLM(cfg plugin.Config) (any, error) {
	return New(context.Background(), cfg)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "gemini",
		Factory:     newGeminiLLM,
		Description: "Google Gemini language generation",
		Version:     "1.0.0",
		Config: map[string]any{
			"model": DefaultModel,
		},
	})
}
