package murf

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/ai/tts"
)

func TestNewRequiresKey(t *testing.T) {
	is := is.New(t)
	_, err := New(Config{})
	is.True(errors.Is(err, ai.ErrMissingCredential))
}

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name      string
		req       tts.SynthesizeRequest
		wantVoice string
		wantStyle string
	}{
		{"defaults", tts.SynthesizeRequest{Text: "Hello there."}, DefaultVoice, DefaultStyle},
		{"persona voice", tts.SynthesizeRequest{Text: "Ahoy!", Voice: "en-UK-theo", Style: "Narration"}, "en-UK-theo", "Narration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)

			var got speechRequest
			var key string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				key = r.Header.Get("api-key")
				json.NewDecoder(r.Body).Decode(&got)
				w.Header().Set("Content-Type", "audio/wav")
				w.Write([]byte("RIFF....WAVE"))
			}))
			defer srv.Close()

			m, err := New(Config{APIKey: "murf-key", URL: srv.URL})
			is.NoErr(err)

			audio, err := m.Synthesize(context.Background(), tt.req)
			is.NoErr(err)
			is.Equal(string(audio), "RIFF....WAVE")
			is.Equal(key, "murf-key")
			is.Equal(got.VoiceID, tt.wantVoice)
			is.Equal(got.Style, tt.wantStyle)
			is.Equal(got.Format, "WAV")
			is.Equal(got.Text, tt.req.Text)
		})
	}
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		status      int
		recoverable bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			is := is.New(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			m, err := New(Config{APIKey: "k", URL: srv.URL})
			is.NoErr(err)

			_, err = m.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "Hi."})
			is.True(err != nil)
			is.Equal(ai.IsRecoverable(err), tt.recoverable)
		})
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	is := is.New(t)
	m, err := New(Config{APIKey: "k", URL: "http://127.0.0.1:0"})
	is.NoErr(err)

	_, err = m.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "   "})
	is.True(ai.IsFatal(err))
}
