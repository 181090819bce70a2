package session

import (
	"maps"
	"slices"
	"strings"
)

// Capability names a provider role a credential unlocks.
type Capability string

const (
	SpeechToText       Capability = "speech-to-text"
	LanguageGeneration Capability = "language-generation"
	SpeechSynthesis    Capability = "speech-synthesis"
	WebSearch          Capability = "web-search"
	News               Capability = "news"
)

// Capabilities lists every capability in a stable order.
var Capabilities = []Capability{SpeechToText, LanguageGeneration, SpeechSynthesis, WebSearch, News}

// aliases maps the provider names clients send to the capability they serve.
var aliases = map[string]Capability{
	"assemblyai": SpeechToText,
	"gemini":     LanguageGeneration,
	"openai":     LanguageGeneration,
	"murf":       SpeechSynthesis,
	"serpapi":    WebSearch,
	"newsapi":    News,
}

// ResolveKey maps a client-supplied key name to a capability.
func ResolveKey(name string) (Capability, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if c, ok := aliases[n]; ok {
		return c, true
	}
	for _, c := range Capabilities {
		if string(c) == n {
			return c, true
		}
	}
	return "", false
}

// Credentials maps capabilities to secrets. Values are treated as immutable:
// Merge returns a new map.
type Credentials map[Capability]string

// Get returns the secret for capability, or "".
func (c Credentials) Get(capability Capability) string {
	return c[capability]
}

// Selection names the backend configured for each capability, using the
// same provider names clients send as key names.
type Selection map[Capability]string

// rank orders the keys that resolve to capability. A key naming the selected
// backend beats the capability name, which beats any other alias. Aliases for
// a known backend that is not selected rank zero and are dropped.
func (s Selection) rank(capability Capability, name string) int {
	n := strings.ToLower(strings.TrimSpace(name))
	backend := strings.ToLower(s[capability])
	if aliases[backend] != capability {
		backend = ""
	}
	switch {
	case backend != "" && n == backend:
		return 3
	case n == string(capability):
		return 2
	case backend == "":
		return 1
	default:
		return 0
	}
}

// Merge overlays overrides onto c key by key. Blank override values never
// replace a default. When several keys resolve to one capability the
// highest ranked one wins, ties going to the first name in sorted order.
// Unknown key names are skipped and returned sorted.
func (c Credentials) Merge(overrides map[string]string, selected Selection) (Credentials, []string) {
	out := maps.Clone(c)
	if out == nil {
		out = Credentials{}
	}

	var unknown []string
	applied := map[Capability]int{}
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		capability, ok := ResolveKey(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		v := strings.TrimSpace(overrides[name])
		if v == "" {
			continue
		}
		r := selected.rank(capability, name)
		if r <= applied[capability] {
			continue
		}
		applied[capability] = r
		out[capability] = v
	}
	return out, unknown
}

// Present lists the capabilities that have a secret, in stable order.
func (c Credentials) Present() []string {
	var out []string
	for _, capability := range Capabilities {
		if c[capability] != "" {
			out = append(out, string(capability))
		}
	}
	return out
}
