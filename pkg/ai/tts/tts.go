// Package tts provides interfaces and types for speech synthesis providers.
package tts

import (
	"context"

	"github.com/chriscow/voicegw/pkg/ai"
)

// TTS-specific aliases of the shared classification errors.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// SynthesizeRequest contains parameters for text-to-speech synthesis.
// Empty Voice and Style select the provider default.
type SynthesizeRequest struct {
	Text     string
	Voice    string
	Style    string
	Language string
	Speed    float32
}

// TTSCapabilities describes the capabilities of a TTS provider.
type TTSCapabilities struct {
	Format               string // container of the returned audio, e.g. "wav" or "mp3"
	SupportedLanguages   []string
	SupportedVoices      []string
	SampleRates          []int
	SupportsSpeedControl bool
}

// TTS is the main interface for text-to-speech providers.
type TTS interface {
	// Synthesize converts one segment of text into a complete encoded audio clip.
	Synthesize(ctx context.Context, req SynthesizeRequest) ([]byte, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() TTSCapabilities
}
