package plugin

import (
	"fmt"

	"github.com/chriscow/voicegw/pkg/ai/augment"
	"github.com/chriscow/voicegw/pkg/ai/llm"
	"github.com/chriscow/voicegw/pkg/ai/stt"
	"github.com/chriscow/voicegw/pkg/ai/tts"
)

func as[T any](v any, kind, name string) (T, error) {
	p, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s/%s: factory returned %T", kind, name, v)
	}
	return p, nil
}

// NewSTT builds a speech-to-text provider.
func (r *Registry) NewSTT(name string, cfg Config) (stt.STT, error) {
	v, err := r.build(KindSTT, name, cfg)
	if err != nil {
		return nil, err
	}
	return as[stt.STT](v, KindSTT, name)
}

// NewLLM builds a language generation provider.
func (r *Registry) NewLLM(name string, cfg Config) (llm.LLM, error) {
	v, err := r.build(KindLLM, name, cfg)
	if err != nil {
		return nil, err
	}
	return as[llm.LLM](v, KindLLM, name)
}

// NewTTS builds a speech synthesis provider.
func (r *Registry) NewTTS(name string, cfg Config) (tts.TTS, error) {
	v, err := r.build(KindTTS, name, cfg)
	if err != nil {
		return nil, err
	}
	return as[tts.TTS](v, KindTTS, name)
}

// NewAugment builds a web search or news provider; kind is KindSearch or KindNews.
func (r *Registry) NewAugment(kind, name string, cfg Config) (augment.Provider, error) {
	v, err := r.build(kind, name, cfg)
	if err != nil {
		return nil, err
	}
	return as[augment.Provider](v, kind, name)
}
