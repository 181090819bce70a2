// Package augment defines providers that fetch external context (web search
// results, news headlines) used to ground a reply.
package augment

import (
	"context"
	"errors"
)

// ErrNoResults is returned when a lookup succeeds but finds nothing usable.
// It is not a provider failure.
var ErrNoResults = errors.New("no results")

// Kind names the capability a provider serves.
type Kind string

const (
	KindWebSearch Kind = "search"
	KindNews      Kind = "news"
)

// Provider looks up context for a user query.
type Provider interface {
	// Lookup returns a plain-text block describing what was found.
	Lookup(ctx context.Context, query string) (string, error)
}

// Func adapts an ordinary function to Provider.
type Func func(ctx context.Context, query string) (string, error)

// Lookup calls f.
func (f Func) Lookup(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}
