package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chriscow/voicegw/pkg/ai/augment"
	"github.com/chriscow/voicegw/pkg/ai/llm"
	"github.com/chriscow/voicegw/pkg/ai/stt"
	"github.com/chriscow/voicegw/pkg/ai/tts"
	"github.com/chriscow/voicegw/pkg/plugin"
	"github.com/chriscow/voicegw/pkg/session"
)

// ErrProviderUnavailable is the reason recorded for a capability with no
// configured backend.
var ErrProviderUnavailable = errors.New("provider unavailable")

// Providers are the per-connection provider instances. Any may be nil, in
// which case Reasons holds why.
type Providers struct {
	STT    stt.STT
	LLM    llm.LLM
	TTS    tts.TTS
	Search augment.Provider
	News   augment.Provider

	Reasons map[session.Capability]error
}

// Unavailable returns why a capability has no provider. It always returns a
// non-nil error wrapping ErrProviderUnavailable.
func (p Providers) Unavailable(c session.Capability) error {
	if err := p.Reasons[c]; err != nil {
		return fmt.Errorf("%s: %w: %w", c, ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%s: %w", c, ErrProviderUnavailable)
}

// Backends names the plugin used for each capability. An empty name leaves
// the capability disabled.
type Backends struct {
	STT    string `yaml:"stt"`
	LLM    string `yaml:"llm"`
	TTS    string `yaml:"tts"`
	Search string `yaml:"search"`
	News   string `yaml:"news"`
}

// BuildConfig holds what BuildProviders needs for one connection.
type BuildConfig struct {
	Registry    *plugin.Registry
	Backends    Backends
	Models      map[string]string         // plugin kind -> model
	Options     map[string]map[string]any // plugin kind -> factory options
	Credentials session.Credentials
	Logger      *slog.Logger
}

// BuildProviders instantiates the configured backends with the session's
// credentials. A failing factory leaves its provider nil and records the
// error, so one missing key never prevents the others from working.
func BuildProviders(cfg BuildConfig) Providers {
	if cfg.Registry == nil {
		cfg.Registry = plugin.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := Providers{Reasons: make(map[session.Capability]error)}

	pcfg := func(kind string, c session.Capability) plugin.Config {
		return plugin.Config{
			APIKey:  cfg.Credentials.Get(c),
			Model:   cfg.Models[kind],
			Logger:  cfg.Logger,
			Options: cfg.Options[kind],
		}
	}
	record := func(c session.Capability, name string, err error) {
		if name == "" {
			err = errors.New("no backend configured")
		}
		p.Reasons[c] = err
		cfg.Logger.Warn("Provider unavailable",
			slog.String("capability", string(c)),
			slog.String("backend", name),
			slog.String("error", err.Error()))
	}

	var err error
	if name := cfg.Backends.STT; name == "" {
		record(session.SpeechToText, name, nil)
	} else if p.STT, err = cfg.Registry.NewSTT(name, pcfg(plugin.KindSTT, session.SpeechToText)); err != nil {
		record(session.SpeechToText, name, err)
	}
	if name := cfg.Backends.LLM; name == "" {
		record(session.LanguageGeneration, name, nil)
	} else if p.LLM, err = cfg.Registry.NewLLM(name, pcfg(plugin.KindLLM, session.LanguageGeneration)); err != nil {
		record(session.LanguageGeneration, name, err)
	}
	if name := cfg.Backends.TTS; name == "" {
		record(session.SpeechSynthesis, name, nil)
	} else if p.TTS, err = cfg.Registry.NewTTS(name, pcfg(plugin.KindTTS, session.SpeechSynthesis)); err != nil {
		record(session.SpeechSynthesis, name, err)
	}
	if name := cfg.Backends.Search; name == "" {
		record(session.WebSearch, name, nil)
	} else if p.Search, err = cfg.Registry.NewAugment(plugin.KindSearch, name, pcfg(plugin.KindSearch, session.WebSearch)); err != nil {
		record(session.WebSearch, name, err)
	}
	if name := cfg.Backends.News; name == "" {
		record(session.News, name, nil)
	} else if p.News, err = cfg.Registry.NewAugment(plugin.KindNews, name, pcfg(plugin.KindNews, session.News)); err != nil {
		record(session.News, name, err)
	}

	return p
}
