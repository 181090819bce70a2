package all

import (
	"errors"
	"testing"

	"github.com/matryer/is"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/plugin"
)

func TestBuiltinsRegistered(t *testing.T) {
	want := map[string][]string{
		plugin.KindSTT:    {"assemblyai", "fake", "openai"},
		plugin.KindLLM:    {"fake", "gemini", "openai"},
		plugin.KindTTS:    {"fake", "murf", "openai"},
		plugin.KindSearch: {"fake", "serpapi"},
		plugin.KindNews:   {"fake", "newsapi"},
	}
	for kind, names := range want {
		t.Run(kind, func(t *testing.T) {
			is := is.New(t)
			var got []string
			for _, p := range plugin.List(kind) {
				got = append(got, p.Name)
			}
			is.Equal(got, names)
		})
	}
}

func TestRealProvidersRequireKeys(t *testing.T) {
	r := plugin.Default()
	tests := []struct {
		kind  string
		name  string
		build func() error
	}{
		{plugin.KindSTT, "assemblyai", func() error { _, err := r.NewSTT("assemblyai", plugin.Config{}); return err }},
		{plugin.KindLLM, "gemini", func() error { _, err := r.NewLLM("gemini", plugin.Config{}); return err }},
		{plugin.KindTTS, "murf", func() error { _, err := r.NewTTS("murf", plugin.Config{}); return err }},
		{plugin.KindSearch, "serpapi", func() error { _, err := r.NewAugment(plugin.KindSearch, "serpapi", plugin.Config{}); return err }},
		{plugin.KindNews, "newsapi", func() error { _, err := r.NewAugment(plugin.KindNews, "newsapi", plugin.Config{}); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.name, func(t *testing.T) {
			is := is.New(t)
			is.True(errors.Is(tt.build(), ai.ErrMissingCredential))
		})
	}
}

func TestFakesBuildWithoutKeys(t *testing.T) {
	is := is.New(t)
	r := plugin.Default()

	_, err := r.NewSTT("fake", plugin.Config{})
	is.NoErr(err)
	_, err = r.NewLLM("fake", plugin.Config{})
	is.NoErr(err)
	_, err = r.NewTTS("fake", plugin.Config{})
	is.NoErr(err)
	_, err = r.NewAugment(plugin.KindSearch, "fake", plugin.Config{})
	is.NoErr(err)
	_, err = r.NewAugment(plugin.KindNews, "fake", plugin.Config{})
	is.NoErr(err)
}
