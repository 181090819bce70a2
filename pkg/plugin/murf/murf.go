// Package murf provides a Murf speech synthesis provider.
package murf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/ai/tts"
	"github.com/chriscow/voicegw/pkg/plugin"
)

const (
	// DefaultURL is the streaming synthesis endpoint.
	DefaultURL   = "https://api.murf.ai/v1/speech/stream"
	DefaultVoice = "en-IN-priya"
	DefaultStyle = "Conversational"

	sampleRate = 24000
)

// Config holds configuration for the Murf provider.
type Config struct {
	APIKey     string
	URL        string
	Voice      string
	Style      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TTS implements tts.TTS with the Murf streaming endpoint. The streamed body
// is collected into one WAV clip per request.
type TTS struct {
	cfg Config
}

// New creates a Murf provider.
func New(cfg Config) (*TTS, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("murf: %w", ai.ErrMissingCredential)
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Style == "" {
		cfg.Style = DefaultStyle
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With(slog.String("provider", "murf"))
	return &TTS{cfg: cfg}, nil
}

type speechRequest struct {
	Text       string  `json:"text"`
	VoiceID    string  `json:"voiceId"`
	Style      string  `json:"style,omitempty"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sampleRate"`
	Rate       float32 `json:"rate,omitempty"`
}

// Synthesize converts text into a WAV clip. Empty Voice and Style use the
// configured defaults.
func (m *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) ([]byte, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ai.NewFatalError(nil, "murf: empty text")
	}

	body := speechRequest{
		Text:       text,
		VoiceID:    m.cfg.Voice,
		Style:      m.cfg.Style,
		Format:     "WAV",
		SampleRate: sampleRate,
	}
	if req.Voice != "" {
		body.VoiceID = req.Voice
		body.Style = req.Style
	}
	if req.Speed > 0 && req.Speed != 1 {
		// Murf expresses rate as a percentage offset in [-50, 50].
		body.Rate = (req.Speed - 1) * 100
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ai.NewFatalError(err, "murf: encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, ai.NewFatalError(err, "murf: create request")
	}
	httpReq.Header.Set("api-key", m.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	start := time.Now()
	resp, err := m.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, ai.NewRecoverableError(err, "murf: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, ai.ClassifyHTTPStatus("murf", resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ai.NewRecoverableError(err, "murf: read audio")
	}
	if len(audio) == 0 {
		return nil, ai.NewRecoverableError(nil, "murf: empty audio")
	}

	m.cfg.Logger.Debug("Murf synthesis finished",
		slog.String("voice", body.VoiceID),
		slog.Int("chars", len(text)),
		slog.Int("bytes", len(audio)),
		slog.Duration("duration", time.Since(start)))
	return audio, nil
}

// Capabilities returns the provider's capabilities.
func (m *TTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Format:               "wav",
		SupportedLanguages:   []string{"en", "hi", "fr", "de", "es", "it", "pt", "ja", "ko", "zh"},
		SupportedVoices:      []string{"en-IN-priya", "en-UK-theo", "en-UK-hazel", "en-US-ken", "en-US-natalie"},
		SampleRates:          []int{8000, 24000, 44100, 48000},
		SupportsSpeedControl: true,
	}
}

func newMurfTTS(cfg plugin.Config) (any, error) {
	return New(Config{
		APIKey:     cfg.APIKey,
		URL:        cfg.BaseURL,
		Voice:      cfg.Voice,
		Style:      cfg.String("style", ""),
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "murf",
		Factory:     newMurfTTS,
		Description: "Murf streaming speech synthesis returning WAV clips",
		Version:     "1.0.0",
		Config: map[string]any{
			"voice": DefaultVoice,
			"style": DefaultStyle,
		},
	})
}
