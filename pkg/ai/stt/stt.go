// Package stt provides interfaces and types for speech-to-text providers.
// It defines streaming STT interfaces that turn raw audio into transcript
// events, with finalized utterances delivered separately from interim text.
package stt

import (
	"context"

	"github.com/chriscow/voicegw/pkg/ai"
)

// STT-specific aliases of the shared classification errors.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// StreamConfig contains configuration for STT streams.
type StreamConfig struct {
	SampleRate  int
	NumChannels int
	Lang        string
	MaxRetry    int
}

// DefaultStreamConfig is the format the gateway expects from clients:
// 16 kHz mono signed 16-bit little-endian PCM.
var DefaultStreamConfig = StreamConfig{
	SampleRate:  16000,
	NumChannels: 1,
	Lang:        "en",
	MaxRetry:    3,
}

// SpeechEvent represents a speech recognition event containing transcription results or errors.
type SpeechEvent struct {
	Type      SpeechEventType // Type of event (interim, final, or error)
	Text      string          // Transcribed text (empty for error events)
	IsFinal   bool            // True if this is a final result that won't change
	Language  string          // Detected or configured language code
	Timestamp int64           // Event timestamp in milliseconds since epoch
	Error     error           // Error details (only set for error events)
}

// SpeechEventType represents the type of speech recognition event.
type SpeechEventType int

const (
	// SpeechEventInterim represents partial transcription results that may change
	SpeechEventInterim SpeechEventType = iota
	// SpeechEventFinal represents final transcription results that won't change
	SpeechEventFinal
	// SpeechEventError represents transcription errors
	SpeechEventError
)

func (t SpeechEventType) String() string {
	switch t {
	case SpeechEventInterim:
		return "interim"
	case SpeechEventFinal:
		return "final"
	case SpeechEventError:
		return "error"
	default:
		return "unknown"
	}
}

// STTCapabilities describes the capabilities of an STT provider.
type STTCapabilities struct {
	Streaming          bool
	InterimResults     bool
	SupportedLanguages []string
	SampleRates        []int
}

// STT is the main interface for speech-to-text providers.
type STT interface {
	// NewStream creates a new streaming STT session. The stream lives until
	// Close is called or ctx is cancelled.
	NewStream(ctx context.Context, cfg StreamConfig) (STTStream, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() STTCapabilities
}

// STTStream represents an active STT streaming session.
type STTStream interface {
	// Push sends a chunk of PCM audio for processing.
	Push(audio []byte) error

	// Events returns a channel of speech recognition events. The channel is
	// closed once the stream has shut down.
	Events() <-chan SpeechEvent

	// Close releases the session. It is safe to call more than once and from
	// any goroutine; calls after the first are no-ops.
	Close() error
}
