package fake

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/chriscow/voicegw/pkg/ai/tts"
	"github.com/chriscow/voicegw/pkg/audio/wav"
)

const (
	sampleRate = 16000
	frequency  = 440.0 // A4 note
	// samples generated per character of input text (10ms)
	samplesPerChar = sampleRate / 100
)

// FakeTTS is a fake TTS implementation for testing. It returns a WAV clip
// containing a sine tone whose length follows the text length.
type FakeTTS struct {
	// FailOn makes Synthesize fail for any text containing one of these substrings.
	FailOn []string
	// Err is the error returned for failing texts.
	Err error

	mu       sync.Mutex
	requests []tts.SynthesizeRequest
}

// NewFakeTTS creates a new fake TTS provider.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{}
}

// Synthesize generates a fake WAV clip for the given text.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, s := range f.FailOn {
		if strings.Contains(req.Text, s) {
			if f.Err != nil {
				return nil, f.Err
			}
			return nil, tts.ErrFatal
		}
	}

	n := len(req.Text) * samplesPerChar
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sample := math.Sin(2*math.Pi*frequency*float64(i)/sampleRate) * 0.3
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sample*32767)))
	}
	return wav.Encode(pcm, sampleRate, 1, 16), nil
}

// Requests returns a copy of every request seen so far.
func (f *FakeTTS) Requests() []tts.SynthesizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.SynthesizeRequest(nil), f.requests...)
}

// Capabilities returns the fake TTS capabilities.
func (f *FakeTTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Format:               "wav",
		SupportedLanguages:   []string{"en-US", "en-IN"},
		SupportedVoices:      []string{"fake-voice-1", "fake-voice-2"},
		SampleRates:          []int{sampleRate},
		SupportsSpeedControl: false,
	}
}
