// Package protocol defines the JSON messages exchanged over the gateway
// WebSocket.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Message types.
const (
	TypeConfig    = "config"
	TypeFinal     = "final"
	TypeAssistant = "assistant"
	TypeAudio     = "audio"
	TypeLLMError  = "llm_error"
)

// DecodeError reports why a client message was rejected.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// Config is the optional first client message. Keys maps a provider or
// capability name to a secret; Persona selects the response style.
type Config struct {
	Keys    map[string]string
	Persona string
}

// KeyNames returns the sorted names of the non-empty keys, for logging.
func (c Config) KeyNames() []string {
	names := make([]string, 0, len(c.Keys))
	for k, v := range c.Keys {
		if strings.TrimSpace(v) != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

type wireConfig struct {
	Type    string                     `json:"type"`
	Keys    map[string]json.RawMessage `json:"keys"`
	Persona json.RawMessage            `json:"persona"`
}

// DecodeConfig parses a config message. Non-string key values and a
// non-string persona are dropped rather than rejected.
func DecodeConfig(data []byte) (Config, error) {
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return Config{}, badRequest("malformed JSON", err.Error())
	}
	if w.Type != TypeConfig {
		return Config{}, badRequest("expected config message", "type")
	}

	cfg := Config{Keys: make(map[string]string, len(w.Keys))}
	for k, raw := range w.Keys {
		var v string
		if json.Unmarshal(raw, &v) == nil {
			cfg.Keys[k] = v
		}
	}
	if len(w.Persona) > 0 {
		var p string
		if json.Unmarshal(w.Persona, &p) == nil {
			cfg.Persona = p
		}
	}
	return cfg, nil
}

// Event is a server to client message.
type Event struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	B64  string `json:"b64,omitempty"`
}

// Final reports a finalized transcript.
func Final(text string) Event { return Event{Type: TypeFinal, Text: text} }

// Assistant carries the reply text for an utterance.
func Assistant(text string) Event { return Event{Type: TypeAssistant, Text: text} }

// Audio carries one synthesized segment.
func Audio(clip []byte) Event {
	return Event{Type: TypeAudio, B64: base64.StdEncoding.EncodeToString(clip)}
}

// LLMError carries a user-facing apology.
func LLMError(text string) Event { return Event{Type: TypeLLMError, Text: text} }

// AudioBytes decodes the payload of an audio event.
func (e Event) AudioBytes() ([]byte, error) {
	if e.Type != TypeAudio {
		return nil, fmt.Errorf("not an audio event: %s", e.Type)
	}
	return base64.StdEncoding.DecodeString(e.B64)
}
