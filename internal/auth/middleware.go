// ABOUTME: HTTP security middleware: IP allow-list, rate limiting, then
// ABOUTME: server-level authentication, with the resulting identity in context.

package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/insightfinder/mcp-server/internal/ratelimit"
	"github.com/insightfinder/mcp-server/internal/validate"
)

// Middleware runs the per-request security pipeline in a fixed order:
// method check, client address resolution, IP allow-list, rate
// limiting, then authentication. Rejected requests still count against
// the rate window because Admit runs before the credential check.
type Middleware struct {
	authenticator Authenticator
	allowList     *AllowList
	limiter       *ratelimit.Limiter
	trustProxy    bool
	logger        *slog.Logger
}

// NewMiddleware builds the pipeline. authenticator may be nil when
// server-level auth is disabled; allowList may be nil when every
// address is allowed.
func NewMiddleware(authenticator Authenticator, allowList *AllowList, limiter *ratelimit.Limiter, trustProxy bool, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		authenticator: authenticator,
		allowList:     allowList,
		limiter:       limiter,
		trustProxy:    trustProxy,
		logger:        logger.With("component", "auth"),
	}
}

// Wrap applies the pipeline to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := validate.Method(r); err != nil {
			writeJSONError(w, validate.StatusFor(err), "method not allowed")
			return
		}

		addr := ClientAddr(r, m.trustProxy, m.logger)

		if m.allowList != nil && !m.allowList.Allowed(addr) {
			m.logger.Warn("request from disallowed address", "addr", addr, "path", r.URL.Path)
			writeJSONError(w, http.StatusForbidden, "access denied")
			return
		}

		if m.limiter != nil {
			admitted, retryAfter := m.limiter.Admit(addr)
			if !admitted {
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		identity := &ClientIdentity{RemoteAddr: addr}

		if m.authenticator != nil {
			principal, err := m.authenticator.Authenticate(r)
			if err != nil {
				m.logger.Warn("authentication failed", "addr", addr, "method", m.authenticator.Method(), "error", err)
				writeJSONError(w, http.StatusUnauthorized, "authentication failed")
				return
			}
			identity.Principal = principal
		}

		// Partial tenant headers are rejected up front; a fully absent
		// tenant is allowed through because list and initialize calls
		// do not need one. Tool execution re-checks.
		tenant, err := TenantFromHeaders(r.Header)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		identity.Tenant = tenant

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// StatusFor maps auth errors to HTTP status codes for callers that
// surface them outside the middleware.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrIPNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrMalformedAuthHeader):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMissingTenantHeader):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
