// Package httpctx binds a context to HTTP clients whose methods take none.
package httpctx

import (
	"context"
	"net/http"
)

type transport struct {
	ctx  context.Context
	base http.RoundTripper
}

// Transport returns a RoundTripper that sends every request under ctx, so cancellation and
// deadlines reach libraries that build requests without one. A nil base uses
// http.DefaultTransport.
func Transport(ctx context.Context, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return transport{ctx: ctx, base: base}
}

func (t transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
