// Package openai provides OpenAI-based providers: Whisper speech-to-text,
// chat completion, and text-to-speech.
package openai

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/plugin"
)

func newClient(cfg plugin.Config) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ai.ErrMissingCredential)
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(c), nil
}

// classify maps go-openai errors onto the shared retry classification.
func classify(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ai.ClassifyHTTPStatus("openai "+op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ai.ClassifyHTTPStatus("openai "+op, reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode))
	}
	return ai.NewRecoverableError(err, "openai "+op)
}

func newOpenAISTT(cfg plugin.Config) (any, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWhisperSTT(client, WhisperConfig{
		Model:    cfg.Model,
		Language: cfg.String("language", ""),
		Logger:   cfg.Logger,
	}), nil
}

func newOpenAILLM(cfg plugin.Config) (any, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewLLM(client, cfg.Model, cfg.Logger), nil
}

func newOpenAITTS(cfg plugin.Config) (any, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewTTS(client, cfg.Model, cfg.Voice, cfg.Logger), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "openai",
		Factory:     newOpenAISTT,
		Description: "OpenAI Whisper speech-to-text over fixed audio windows",
		Version:     "1.0.0",
		Config: map[string]any{
			"model":    openai.Whisper1,
			"language": "auto-detect (leave empty) or specify language code",
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "openai",
		Factory:     newOpenAILLM,
		Description: "OpenAI chat completion",
		Version:     "1.0.0",
		Config: map[string]any{
			"model": defaultChatModel,
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "openai",
		Factory:     newOpenAITTS,
		Description: "OpenAI text-to-speech returning WAV clips",
		Version:     "1.0.0",
		Config: map[string]any{
			"model": string(openai.TTSModel1),
			"voice": string(openai.VoiceAlloy),
		},
	})
}
