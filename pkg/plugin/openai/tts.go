package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/voicegw/pkg/ai/tts"
)

var voices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// TTS implements tts.TTS using OpenAI's speech endpoint.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
	logger *slog.Logger
}

// NewTTS creates a speech provider. Empty model and voice select defaults.
func NewTTS(client *openai.Client, model, voice string, logger *slog.Logger) *TTS {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if !slices.Contains(voices, voice) {
		voice = string(openai.VoiceAlloy)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TTS{client: client, model: model, voice: voice, logger: logger.With(slog.String("provider", "openai-tts"))}
}

// Synthesize returns a WAV clip for req.Text.
func (o *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) ([]byte, error) {
	start := time.Now()

	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(o.getVoice(req.Voice)),
		ResponseFormat: openai.SpeechResponseFormatWav,
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	resp, err := o.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		return nil, classify("speech", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai speech: read body: %w", err)
	}

	o.logger.Debug("Speech synthesized",
		slog.Int("bytes", len(audio)),
		slog.Duration("duration", time.Since(start)))
	return audio, nil
}

// getVoice prefers a request voice OpenAI knows over the default.
func (o *TTS) getVoice(requestVoice string) string {
	if slices.Contains(voices, requestVoice) {
		return requestVoice
	}
	return o.voice
}

// Capabilities returns the OpenAI TTS provider's capabilities
func (o *TTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Format:               "wav",
		SupportedLanguages:   []string{"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh"},
		SupportedVoices:      voices,
		SampleRates:          []int{24000},
		SupportsSpeedControl: true,
	}
}
