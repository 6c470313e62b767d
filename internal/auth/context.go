// ABOUTME: ClientIdentity carried in request context after authentication.
// ABOUTME: Provides WithIdentity/IdentityFrom accessors used by handlers.

package auth

import (
	"context"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
)

// ClientIdentity is the resolved identity for one request. It is
// constructed fresh per request and discarded after the response is
// sent; it is never cached.
type ClientIdentity struct {
	// RemoteAddr is the resolved client address (proxy-aware when
	// trust_proxy_headers is enabled).
	RemoteAddr string

	// Principal names the authenticated caller: the basic-auth or JWT
	// subject, or "api-key" / "bearer" for shared-secret schemes.
	Principal string

	// Tenant is the per-request upstream credential, nil when the
	// X-IF-* headers were absent. Tool invocation requires it.
	Tenant *insightfinder.Credential
}

// RateKey returns the key used for rate-limit accounting: the
// authenticated principal when present, otherwise the remote address.
func (id *ClientIdentity) RateKey() string {
	if id == nil {
		return "unknown"
	}
	if id.Principal != "" {
		return id.Principal + "@" + id.RemoteAddr
	}
	return id.RemoteAddr
}

type contextKey struct{}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id *ClientIdentity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom extracts the identity from the context, or nil if the
// request did not pass through the auth middleware.
func IdentityFrom(ctx context.Context) *ClientIdentity {
	id, _ := ctx.Value(contextKey{}).(*ClientIdentity)
	return id
}
