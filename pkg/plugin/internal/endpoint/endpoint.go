// Package endpoint adapts HTTP clients for vendor SDKs that build their own
// request URLs and take no context.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Transport binds every request to Ctx and, when Base is set, sends it to
// Base's scheme and host instead of the vendor's.
type Transport struct {
	Ctx  context.Context
	Base *url.URL
	Next http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := t.Ctx
	if ctx == nil {
		ctx = req.Context()
	}
	r := req.Clone(ctx)
	if t.Base != nil {
		r.URL.Scheme = t.Base.Scheme
		r.URL.Host = t.Base.Host
		r.Host = t.Base.Host
	}
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(r)
}

// ParseBase parses a configured base URL override. An empty string means
// the vendor default.
func ParseBase(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q needs a scheme and host", raw)
	}
	return u, nil
}

// Client returns a copy of c whose requests carry ctx and go to base.
func Client(ctx context.Context, c *http.Client, base *url.URL) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	out := *c
	out.Transport = &Transport{Ctx: ctx, Base: base, Next: c.Transport}
	return &out
}

// Redact drops the request URL from transport errors. SDKs that put the API
// key in the query string would otherwise leak it into logs.
func Redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s request: %w", strings.ToLower(ue.Op), ue.Err)
	}
	return err
}
