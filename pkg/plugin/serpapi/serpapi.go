// Package serpapi provides a web search augmentation provider backed by the
// SerpAPI Google engine.
package serpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	serp "github.com/serpapi/google-search-results-golang"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/ai/augment"
	"github.com/chriscow/voicegw/pkg/plugin"
	"github.com/chriscow/voicegw/pkg/plugin/internal/endpoint"
)

// MaxSnippets is the number of organic results used as context.
const MaxSnippets = 3

// noResults is how SerpAPI reports an empty result page.
const noResults = "hasn't returned any results"

// Search implements augment.Provider.
type Search struct {
	apiKey string
	base   *url.URL
	engine string
	client *http.Client
	logger *slog.Logger
}

// New creates a SerpAPI provider. cfg.BaseURL, when set, replaces the
// scheme and host requests are sent to.
func New(cfg plugin.Config) (*Search, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("serpapi: %w", ai.ErrMissingCredential)
	}
	base, err := endpoint.ParseBase(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}
	s := &Search{
		apiKey: cfg.APIKey,
		base:   base,
		engine: cfg.String("engine", "google"),
		client: cfg.HTTPClient,
		logger: cfg.Logger,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 15 * time.Second}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("provider", "serpapi"))
	return s, nil
}

// Lookup runs the query and returns up to MaxSnippets organic result
// snippets, one per line.
func (s *Search) Lookup(ctx context.Context, query string) (string, error) {
	search := serp.NewGoogleSearch(map[string]string{"q": query}, s.apiKey)
	search.Engine = s.engine
	search.HttpSearch = endpoint.Client(ctx, s.client, s.base)

	result, err := search.GetJSON()
	if err != nil {
		return "", s.classify(err)
	}

	snippets := Snippets(result["organic_results"])
	if len(snippets) == 0 {
		s.logger.Debug("Search returned no snippets")
		return "", augment.ErrNoResults
	}
	return strings.Join(snippets, "\n"), nil
}

// Snippets extracts up to MaxSnippets non-empty snippets from the
// organic_results array of a SerpAPI response.
func Snippets(organic any) []string {
	results, _ := organic.([]any)
	var out []string
	for _, r := range results {
		if len(out) == MaxSnippets {
			break
		}
		entry, _ := r.(map[string]any)
		sn, _ := entry["snippet"].(string)
		if sn = strings.TrimSpace(sn); sn != "" {
			out = append(out, sn)
		}
	}
	return out
}

// classify maps client errors onto the retry taxonomy. The client reports
// API failures by their message only; transport errors lose their URL,
// which carries the key.
func (s *Search) classify(err error) error {
	var ue *url.Error
	transport := errors.As(err, &ue)
	redacted := endpoint.Redact(err)
	switch msg := strings.ToLower(redacted.Error()); {
	case transport, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ai.NewRecoverableError(redacted, "serpapi: request")
	case strings.Contains(msg, noResults):
		s.logger.Debug("Search returned no results", slog.String("error", redacted.Error()))
		return augment.ErrNoResults
	case strings.Contains(msg, "api key"), strings.Contains(msg, "run out of searches"):
		return ai.NewFatalError(redacted, "serpapi")
	default:
		return ai.NewRecoverableError(redacted, "serpapi")
	}
}

func newSerpAPISearch(cfg plugin.Config) (any, error) {
	return New(cfg)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSearch,
		Name:        "serpapi",
		Factory:     newSerpAPISearch,
		Description: "SerpAPI Google web search snippets",
		Version:     "1.0.0",
		Config: map[string]any{
			"engine": "google",
		},
	})
}
