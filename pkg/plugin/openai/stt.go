package openai

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/voicegw/pkg/ai/stt"
	"github.com/chriscow/voicegw/pkg/audio/wav"
)

// ErrStreamClosed is returned by Push after Close.
var ErrStreamClosed = errors.New("stream is closed")

const (
	defaultWindow = 3 * time.Second
	// Whisper rejects clips shorter than 0.1 seconds.
	minClip = 100 * time.Millisecond
)

// WhisperConfig holds configuration for Whisper STT.
type WhisperConfig struct {
	Model    string        // Default: whisper-1
	Language string        // Default: auto-detect (empty)
	Window   time.Duration // audio collected per transcription request
	Logger   *slog.Logger
}

// WhisperSTT implements stt.STT by transcribing fixed windows of buffered
// audio. Every non-empty window becomes one finalized utterance.
type WhisperSTT struct {
	client *openai.Client
	cfg    WhisperConfig
}

// NewWhisperSTT creates a new OpenAI Whisper STT provider.
func NewWhisperSTT(client *openai.Client, cfg WhisperConfig) *WhisperSTT {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With(slog.String("provider", "openai-stt"))
	return &WhisperSTT{client: client, cfg: cfg}
}

// NewStream creates a new STT streaming session.
func (w *WhisperSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &whisperStream{
		stt:    w,
		ctx:    ctx,
		cancel: cancel,
		config: cfg,
		events: make(chan stt.SpeechEvent, 8),
		exited: make(chan struct{}),
	}
	go s.processLoop()
	return s, nil
}

// Capabilities returns the STT capabilities.
func (w *WhisperSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true, // pseudo-streaming via batching
		InterimResults:     false,
		SupportedLanguages: []string{"en", "zh", "de", "es", "ru", "ko", "fr", "ja", "pt", "tr", "pl", "nl", "hi", "it"},
		SampleRates:        []int{16000, 22050, 44100, 48000},
	}
}

type whisperStream struct {
	stt    *WhisperSTT
	ctx    context.Context
	cancel context.CancelFunc
	config stt.StreamConfig
	events chan stt.SpeechEvent
	exited chan struct{}

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// Push buffers PCM audio until the next window.
func (s *whisperStream) Push(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	s.buf = append(s.buf, audio...)
	return nil
}

func (s *whisperStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// Close stops the processing loop and waits for it to exit.
func (s *whisperStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.buf = nil
	s.mu.Unlock()

	s.cancel()
	<-s.exited
	return nil
}

func (s *whisperStream) processLoop() {
	defer close(s.exited)
	defer close(s.events)

	ticker := time.NewTicker(s.stt.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.processBufferedAudio()
		}
	}
}

func (s *whisperStream) bytesPer(d time.Duration) int {
	h := wav.Header{SampleRate: uint32(s.config.SampleRate), NumChannels: uint16(s.config.NumChannels), BitsPerSample: 16}
	return h.BytesPer(d)
}

func (s *whisperStream) processBufferedAudio() {
	s.mu.Lock()
	pcm := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(pcm) < s.bytesPer(minClip) {
		return
	}

	clip := wav.Encode(pcm, uint32(s.config.SampleRate), uint16(s.config.NumChannels), 16)
	resp, err := s.stt.client.CreateTranscription(s.ctx, openai.AudioRequest{
		Model:    s.stt.cfg.Model,
		Language: s.stt.cfg.Language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(clip),
		FilePath: "audio.wav",
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.stt.cfg.Logger.Warn("Whisper transcription failed", slog.String("error", err.Error()))
		s.send(stt.SpeechEvent{Type: stt.SpeechEventError, Error: classify("transcription", err)})
		return
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return
	}
	s.send(stt.SpeechEvent{Type: stt.SpeechEventFinal, Text: text, IsFinal: true, Language: resp.Language})
}

func (s *whisperStream) send(ev stt.SpeechEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
