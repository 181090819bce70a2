// Package newsapi provides a news augmentation provider backed by NewsAPI.
package newsapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	napi "github.com/barthr/newsapi"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/ai/augment"
	"github.com/chriscow/voicegw/pkg/plugin"
	"github.com/chriscow/voicegw/pkg/plugin/internal/endpoint"
)

const (
	pageSize    = 5
	maxArticles = 3
)

// generalTerms mark queries asking for news in general rather than a topic.
var generalTerms = []string{"news", "latest", "headlines", "current events", "what's happening"}

// retryableCodes are NewsAPI error codes worth trying again later.
var retryableCodes = []string{"rateLimited", "unexpectedError"}

// News implements augment.Provider using the /everything endpoint, which is
// available on the free plan.
type News struct {
	apiKey   string
	base     *url.URL
	language string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a NewsAPI provider. cfg.BaseURL, when set, replaces the
// scheme and host requests are sent to.
func New(cfg plugin.Config) (*News, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("newsapi: %w", ai.ErrMissingCredential)
	}
	base, err := endpoint.ParseBase(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	n := &News{
		apiKey:   cfg.APIKey,
		base:     base,
		language: cfg.String("language", "en"),
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}
	if n.client == nil {
		n.client = &http.Client{Timeout: 10 * time.Second}
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	n.logger = n.logger.With(slog.String("provider", "newsapi"))
	return n, nil
}

// SearchTerm returns the term sent to NewsAPI: general news questions
// search for "latest", anything else searches the query itself.
func SearchTerm(query string) string {
	lower := strings.ToLower(query)
	for _, t := range generalTerms {
		if strings.Contains(lower, t) {
			return "latest"
		}
	}
	return query
}

// Lookup fetches articles and formats the first few as a headline list.
func (n *News) Lookup(ctx context.Context, query string) (string, error) {
	c := napi.NewClient(n.apiKey, napi.WithHTTPClient(endpoint.Client(ctx, n.client, n.base)))

	resp, err := c.GetEverything(ctx, &napi.EverythingParameters{
		Keywords: SearchTerm(query),
		Language: n.language,
		PageSize: pageSize,
	})
	if err != nil {
		return "", classify(err)
	}
	if resp.Status != "" && resp.Status != "ok" {
		return "", ai.NewFatalError(fmt.Errorf("status %s", resp.Status), "newsapi")
	}
	if len(resp.Articles) == 0 {
		return "", augment.ErrNoResults
	}

	n.logger.Debug("News lookup finished", slog.Int("articles", len(resp.Articles)))
	return formatArticles(resp.Articles), nil
}

// classify maps client errors onto the retry taxonomy. API errors carry a
// NewsAPI code; everything else is a transport problem.
func classify(err error) error {
	err = endpoint.Redact(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ai.NewRecoverableError(err, "newsapi: request")
	}

	msg := err.Error()
	var apiErr *napi.Error
	if errors.As(err, &apiErr) {
		msg = apiErr.Code
	}
	for _, code := range retryableCodes {
		if strings.Contains(msg, code) {
			return ai.NewRecoverableError(err, "newsapi")
		}
	}
	if apiErr != nil || strings.Contains(msg, "apiKey") || strings.Contains(msg, "parameter") {
		return ai.NewFatalError(err, "newsapi")
	}
	return ai.NewRecoverableError(err, "newsapi: request")
}

// formatArticles renders up to three articles as a numbered list.
func formatArticles(articles []napi.Article) string {
	var b strings.Builder
	b.WriteString("Here are some headlines:\n")
	for i, a := range articles {
		if i == maxArticles {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s\n    Source: %s\n    Summary: %s\n",
			i+1, orDefault(a.Title, "No title"), orDefault(a.Source.Name, "Unknown"), orDefault(a.Description, "No description"))
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func newNewsAPI(cfg plugin.Config) (any, error) {
	return New(cfg)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindNews,
		Name:        "newsapi",
		Factory:     newNewsAPI,
		Description: "NewsAPI headlines from the /everything endpoint",
		Version:     "1.0.0",
		Config: map[string]any{
			"language": "en",
		},
	})
}
