package fake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chriscow/voicegw/pkg/ai/stt"
)

const (
	// DefaultFramesPerUtterance controls how many pushed chunks make one utterance.
	DefaultFramesPerUtterance = 10
	// DefaultTranscript is used when no transcript is provided
	DefaultTranscript = "This is a fake transcript from the fake STT provider."
)

// ErrStreamClosed is returned by Push after Close.
var ErrStreamClosed = errors.New("stream is closed")

// FakeSTT is a fake STT implementation for testing. Every FramesPerUtterance
// pushed chunks finalize the next scripted transcript, cycling when exhausted.
type FakeSTT struct {
	transcripts []string

	// FramesPerUtterance overrides DefaultFramesPerUtterance when positive.
	FramesPerUtterance int
	// Err, when set, is returned by NewStream.
	Err error

	mu      sync.Mutex
	streams []*FakeSTTStream
}

// NewFakeSTT creates a new fake STT provider with scripted transcripts.
func NewFakeSTT(transcripts ...string) *FakeSTT {
	if len(transcripts) == 0 {
		transcripts = []string{DefaultTranscript}
	}
	return &FakeSTT{transcripts: transcripts}
}

// NewStream creates a new fake STT stream.
func (f *FakeSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	per := f.FramesPerUtterance
	if per <= 0 {
		per = DefaultFramesPerUtterance
	}

	s := &FakeSTTStream{
		transcripts: f.transcripts,
		perUtt:      per,
		lang:        cfg.Lang,
		events:      make(chan stt.SpeechEvent, 64),
		done:        make(chan struct{}),
		ctx:         ctx,
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

// Streams returns every stream created so far.
func (f *FakeSTT) Streams() []*FakeSTTStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSTTStream(nil), f.streams...)
}

// Capabilities returns the fake STT capabilities.
func (f *FakeSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true,
		InterimResults:     true,
		SupportedLanguages: []string{"en", "en-US"},
		SampleRates:        []int{16000},
	}
}

// FakeSTTStream is a fake STT stream implementation.
type FakeSTTStream struct {
	transcripts []string
	perUtt      int
	lang        string
	events      chan stt.SpeechEvent
	done        chan struct{}
	ctx         context.Context

	mu         sync.Mutex
	closed     bool
	frameCount int
	next       int
	bytes      int

	closeOnce  sync.Once
	closeCalls atomic.Int32
}

// Push counts the chunk and emits interim and final events on schedule.
func (s *FakeSTTStream) Push(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	s.frameCount++
	s.bytes += len(audio)

	text := s.transcripts[s.next%len(s.transcripts)]
	pos := s.frameCount % s.perUtt
	if pos != 0 {
		cut := len(text) * pos / s.perUtt
		return s.send(stt.SpeechEvent{Type: stt.SpeechEventInterim, Text: text[:cut]})
	}

	s.next++
	return s.send(stt.SpeechEvent{Type: stt.SpeechEventFinal, Text: text, IsFinal: true})
}

func (s *FakeSTTStream) send(ev stt.SpeechEvent) error {
	ev.Language = s.lang
	ev.Timestamp = time.Now().UnixMilli()
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Events returns the events channel.
func (s *FakeSTTStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// Close stops the stream and closes the events channel exactly once.
func (s *FakeSTTStream) Close() error {
	s.closeCalls.Add(1)
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
	return nil
}

// Closed reports whether Close has run.
func (s *FakeSTTStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCalls returns how many times Close was invoked.
func (s *FakeSTTStream) CloseCalls() int {
	return int(s.closeCalls.Load())
}

// BytesReceived returns the total audio bytes pushed.
func (s *FakeSTTStream) BytesReceived() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
