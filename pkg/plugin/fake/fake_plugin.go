// Package fake registers the fake providers under the name "fake" for every
// kind, so the gateway can run end to end without external services.
package fake

import (
	"strings"

	augmentfake "github.com/chriscow/voicegw/pkg/ai/augment/fake"
	llmfake "github.com/chriscow/voicegw/pkg/ai/llm/fake"
	sttfake "github.com/chriscow/voicegw/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/voicegw/pkg/ai/tts/fake"
	"github.com/chriscow/voicegw/pkg/plugin"
)

// newFakeSTT creates a new fake STT provider from configuration.
func newFakeSTT(cfg plugin.Config) (any, error) {
	transcripts := strings.Split(cfg.String("transcripts", "hello|what's the weather today|tell me a joke"), "|")
	return sttfake.NewFakeSTT(transcripts...), nil
}

// newFakeTTS creates a new fake TTS provider from configuration.
func newFakeTTS(plugin.Config) (any, error) {
	return ttsfake.NewFakeTTS(), nil
}

// newFakeLLM creates a new fake LLM provider from configuration.
func newFakeLLM(cfg plugin.Config) (any, error) {
	responses := []string{
		"This is a fake LLM response.",
		"I'm a test AI assistant. How can I help you today?",
	}
	if r, ok := cfg.Options["responses"].([]string); ok && len(r) > 0 {
		responses = r
	}
	return llmfake.NewFakeLLM(responses...), nil
}

func newFakeSearch(cfg plugin.Config) (any, error) {
	return augmentfake.NewFakeProvider(cfg.String("result", "It is sunny and 31 degrees.")), nil
}

func newFakeNews(cfg plugin.Config) (any, error) {
	return augmentfake.NewFakeProvider(cfg.String("result", "Here are some headlines:\n1. Gophers win again")), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "fake",
		Factory:     newFakeSTT,
		Description: "Fake STT provider for testing and development",
		Version:     "1.0.0",
		Config: map[string]any{
			"transcripts": "Pipe-separated transcripts, one per utterance",
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Factory:     newFakeTTS,
		Description: "Fake TTS provider producing sine-tone WAV clips",
		Version:     "1.0.0",
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "fake",
		Factory:     newFakeLLM,
		Description: "Fake LLM provider for testing and development",
		Version:     "1.0.0",
		Config: map[string]any{
			"responses": []string{"List of predefined responses"},
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSearch,
		Name:        "fake",
		Factory:     newFakeSearch,
		Description: "Fake web search returning a fixed snippet",
		Version:     "1.0.0",
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindNews,
		Name:        "fake",
		Factory:     newFakeNews,
		Description: "Fake news provider returning a fixed headline",
		Version:     "1.0.0",
	})
}
