// Package assemblyai provides a streaming speech-to-text provider backed by
// the AssemblyAI v3 realtime WebSocket API.
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/ai/stt"
	"github.com/chriscow/voicegw/pkg/plugin"
)

// DefaultURL is the v3 streaming endpoint.
const DefaultURL = "wss://streaming.assemblyai.com/v3/ws"

// The service accepts audio messages between 50 ms and 1000 ms long.
const (
	minChunk = 50 * time.Millisecond
	maxChunk = 1000 * time.Millisecond
)

const terminateTimeout = 2 * time.Second

// ErrStreamClosed is returned by Push after Close.
var ErrStreamClosed = errors.New("stream is closed")

// Config holds configuration for the AssemblyAI provider.
type Config struct {
	APIKey string
	URL    string // Default: DefaultURL
	Retry  ai.RetryConfig
	Logger *slog.Logger
}

// STT implements stt.STT over the AssemblyAI streaming API.
type STT struct {
	cfg    Config
	dialer *websocket.Dialer
}

// New creates an AssemblyAI provider.
func New(cfg Config) (*STT, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("assemblyai: %w", ai.ErrMissingCredential)
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With(slog.String("provider", "assemblyai"))
	return &STT{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Capabilities returns the provider's capabilities.
func (a *STT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true,
		InterimResults:     true,
		SupportedLanguages: []string{"en"},
		SampleRates:        []int{8000, 16000, 22050, 44100, 48000},
	}
}

// NewStream dials the streaming endpoint, retrying recoverable failures, and
// starts the read loop. The stream is closed when ctx is cancelled.
func (a *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = stt.DefaultStreamConfig.SampleRate
	}
	if cfg.NumChannels <= 0 {
		cfg.NumChannels = 1
	}

	endpoint, err := a.endpoint(cfg)
	if err != nil {
		return nil, ai.NewFatalError(err, "assemblyai: bad endpoint")
	}

	retry := a.cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialDelay == 0 {
		retry = ai.DefaultRetryConfig
		retry.MaxRetries = cfg.MaxRetry
	}

	conn, err := ai.Retry(ctx, retry, a.cfg.Logger, "assemblyai dial", func(ctx context.Context) (*websocket.Conn, error) {
		return a.dial(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}

	bytesPerMs := cfg.SampleRate * cfg.NumChannels * 2 / 1000
	sctx, cancel := context.WithCancel(ctx)
	s := &stream{
		conn:     conn,
		ctx:      sctx,
		cancel:   cancel,
		logger:   a.cfg.Logger,
		lang:     cfg.Lang,
		minBytes: bytesPerMs * int(minChunk/time.Millisecond),
		maxBytes: bytesPerMs * int(maxChunk/time.Millisecond),
		events:   make(chan stt.SpeechEvent, 32),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	go func() {
		select {
		case <-sctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (a *STT) endpoint(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("encoding", "pcm_s16le")
	q.Set("format_turns", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *STT) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", a.cfg.APIKey)

	conn, resp, err := a.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, ai.ClassifyHTTPStatus("assemblyai", resp.StatusCode, string(body))
		}
		return nil, ai.NewRecoverableError(err, "assemblyai: websocket connect")
	}
	return conn, nil
}

// message covers the server message types the stream handles.
type message struct {
	Type            string  `json:"type"`
	ID              string  `json:"id"`
	Transcript      string  `json:"transcript"`
	TurnOrder       int     `json:"turn_order"`
	EndOfTurn       bool    `json:"end_of_turn"`
	TurnIsFormatted bool    `json:"turn_is_formatted"`
	AudioDuration   float64 `json:"audio_duration_seconds"`
	Error           string  `json:"error"`
}

type stream struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	lang   string

	minBytes int
	maxBytes int

	events chan stt.SpeechEvent
	done   chan struct{}
	closed atomic.Bool

	writeMu sync.Mutex
	pending []byte
}

// Push buffers audio and forwards it in pieces the service accepts.
func (s *stream) Push(audio []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.pending = append(s.pending, audio...)
	for len(s.pending) >= s.minBytes {
		n := min(len(s.pending), s.maxBytes)
		if err := s.conn.WriteMessage(websocket.BinaryMessage, s.pending[:n]); err != nil {
			return ai.NewRecoverableError(err, "assemblyai: send audio")
		}
		s.pending = s.pending[n:]
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return nil
}

func (s *stream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// Close sends Terminate, waits briefly for the service to acknowledge, and
// releases the connection. Only the first call has any effect.
func (s *stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.writeMu.Lock()
	s.pending = nil
	err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Terminate"}`))
	s.writeMu.Unlock()

	if err == nil {
		select {
		case <-s.done:
		case <-time.After(terminateTimeout):
			s.logger.Warn("Timed out waiting for session termination")
		}
	}

	s.cancel()
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	cerr := s.conn.Close()
	<-s.done
	return cerr
}

func (s *stream) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Error("Streaming transcription connection lost", slog.String("error", err.Error()))
				s.send(stt.SpeechEvent{Type: stt.SpeechEventError, Error: ai.NewRecoverableError(err, "assemblyai: read")})
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("Ignoring undecodable message", slog.String("error", err.Error()))
			continue
		}

		switch {
		case msg.Error != "":
			s.logger.Error("Streaming transcription error", slog.String("error", msg.Error))
			s.send(stt.SpeechEvent{Type: stt.SpeechEventError, Error: ai.NewFatalError(errors.New(msg.Error), "assemblyai")})
		case msg.Type == "Begin":
			s.logger.Debug("Streaming session started", slog.String("session_id", msg.ID))
		case msg.Type == "Turn":
			if msg.Transcript == "" {
				continue
			}
			final := msg.EndOfTurn && msg.TurnIsFormatted
			ev := stt.SpeechEvent{Type: stt.SpeechEventInterim, Text: msg.Transcript, IsFinal: final, Language: s.lang}
			if final {
				ev.Type = stt.SpeechEventFinal
			}
			s.send(ev)
		case msg.Type == "Termination":
			s.logger.Debug("Streaming session terminated", slog.Float64("audio_seconds", msg.AudioDuration))
			return
		}
	}
}

func (s *stream) send(ev stt.SpeechEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func newAssemblyAISTT(cfg plugin.Config) (any, error) {
	return New(Config{
		APIKey: cfg.APIKey,
		URL:    cfg.BaseURL,
		Logger: cfg.Logger,
	})
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "assemblyai",
		Factory:     newAssemblyAISTT,
		Description: "AssemblyAI v3 realtime streaming speech-to-text",
		Version:     "1.0.0",
		Config: map[string]any{
			"url":          DefaultURL,
			"format_turns": true,
		},
	})
}
