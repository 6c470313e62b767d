// Package auth provides request authentication and tenant resolution.
//
// # Authentication Methods
//
// One method is active at a time, chosen in config:
//
//   - api_key: a static key in the X-API-Key header, with an api_key
//     query parameter accepted as a fallback for SSE clients that
//     cannot set headers.
//
//   - bearer: a static token in the Authorization: Bearer header.
//
//   - jwt: an HS256 token signed with the configured secret; the sub
//     claim becomes the principal.
//
//   - basic: HTTP Basic with a configured username and password.
//
// Static secrets left empty in config are generated at startup and
// logged by their first characters only. All credential comparisons are
// constant time.
//
// # Tenant Headers
//
// Every request may carry an InsightFinder tenant:
//
//	X-IF-License-Key, X-IF-User-Name, X-IF-API-URL (optional)
//
// with X-License-Key and X-User-Name accepted as legacy spellings.
// The middleware extracts the tenant but does not require one; tool
// invocation rejects requests without a complete tenant. Credentials
// travel on the request only and are never stored server side.
//
// # Middleware Pipeline
//
// Wrap applies, in order: client address resolution (honoring proxy
// headers only when trust_proxy_headers is set), the IP allow-list,
// the rate limiter, the authenticator, and tenant extraction. The
// resulting ClientIdentity rides the request context.
package auth
