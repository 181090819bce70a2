package agent

import (
	"errors"
	"fmt"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/persona"
	"github.com/chriscow/voicegw/pkg/router"
)

// User-facing fallbacks. They are spoken, so they carry no emoji.
const (
	ApologyNewsKey        = "I can't fetch the news without a valid API key."
	ApologyNews           = "Something went wrong while fetching the news."
	ApologyWebSearch      = "Uh-oh, I hit a snag while searching the web."
	ApologyGeneration     = "Oops, something went wrong while processing your request."
	ApologyUnexpected     = "Sorry, I hit a snag while processing your request."
	ApologySpeechDisabled = "Sorry, speech recognition is unavailable right now, so I can't hear you."

	NoResultsWeb  = "Hmm, I couldn't find anything useful on the web."
	NoResultsNews = "Looks like I couldn't find any news on that topic."
)

func lookupApology(kind router.Kind, err error) string {
	if kind != router.NewsRequest {
		return ApologyWebSearch
	}
	if errors.Is(err, ai.ErrMissingCredential) {
		return ApologyNewsKey
	}
	return ApologyNews
}

func noResultsReply(kind router.Kind) string {
	if kind == router.NewsRequest {
		return NoResultsNews
	}
	return NoResultsWeb
}

// AugmentedPrompt wraps the user's question with looked-up context.
func AugmentedPrompt(query, found string, kind router.Kind, p persona.Persona) string {
	source := "these search results"
	if kind == router.NewsRequest {
		source = "these news headlines"
	}
	return fmt.Sprintf("User asked: '%s'\n\nBased on %s:\n%s\n\nGive a short, witty, and clear reply as %s.",
		query, source, found, p.DisplayName)
}
