// Package fake provides a scripted augmentation provider for tests.
package fake

import (
	"context"
	"sync"
)

// FakeProvider returns a fixed result or error and records the queries it saw.
type FakeProvider struct {
	Result string
	Err    error

	mu      sync.Mutex
	queries []string
}

// NewFakeProvider creates a provider that answers every query with result.
func NewFakeProvider(result string) *FakeProvider {
	return &FakeProvider{Result: result}
}

// Lookup records query and returns the scripted outcome.
func (f *FakeProvider) Lookup(ctx context.Context, query string) (string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Err != nil {
		return "", f.Err
	}
	return f.Result, nil
}

// Queries returns the queries seen so far.
func (f *FakeProvider) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}
