// Package router classifies a finalized utterance into the way it will be
// answered. Routing is pure: the same text and persona always give the same
// decision.
package router

import (
	"strings"

	"github.com/chriscow/voicegw/pkg/persona"
)

// Kind is the routing outcome.
type Kind int

const (
	GeneralQuery Kind = iota
	QuickReply
	NewsRequest
	WebSearchRequest
)

func (k Kind) String() string {
	switch k {
	case GeneralQuery:
		return "general"
	case QuickReply:
		return "quick_reply"
	case NewsRequest:
		return "news"
	case WebSearchRequest:
		return "web_search"
	default:
		return "unknown"
	}
}

// Decision is the result of routing one utterance. Reply is set only for
// QuickReply.
type Decision struct {
	Kind  Kind
	Reply string
}

// Keyword sets, matched as lowercase substrings. News is checked first.
var (
	NewsKeywords = []string{
		"news",
		"headlines",
		"latest headlines",
		"what's happening",
		"current events",
	}
	SearchKeywords = []string{
		"weather",
		"temperature",
		"latest",
		"today",
		"tomorrow",
		"who is",
		"what is",
		"population",
		"price",
		"time in",
		"score",
	}
)

// Normalize prepares text for quick-reply matching: trimmed and lowercased.
// Punctuation is kept, so "hello." is not a quick reply.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Route classifies text for persona p. Priority is quick reply, then news,
// then web search, then general.
func Route(text string, p persona.Persona) Decision {
	if reply, ok := p.QuickReply(Normalize(text)); ok {
		return Decision{Kind: QuickReply, Reply: reply}
	}

	lower := strings.ToLower(text)
	if containsAny(lower, NewsKeywords) {
		return Decision{Kind: NewsRequest}
	}
	if containsAny(lower, SearchKeywords) {
		return Decision{Kind: WebSearchRequest}
	}
	return Decision{Kind: GeneralQuery}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
