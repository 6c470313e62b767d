// ABOUTME: Server-level authentication schemes: api_key, bearer, jwt, basic.
// ABOUTME: A closed set of Authenticator variants selected once from config.

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/insightfinder/mcp-server/internal/config"
)

// Auth errors returned to the middleware. Client-visible messages are
// derived from these; they never echo the presented credential.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrMalformedAuthHeader = errors.New("malformed authorization header")
	ErrIPNotAllowed        = errors.New("ip address not allowed")
)

// Authenticator validates the server-level credential on one request
// and returns the principal it authenticated as.
type Authenticator interface {
	Authenticate(r *http.Request) (principal string, err error)
	Method() string
}

// FromConfig builds the Authenticator selected by cfg.Auth.Method.
// Returns nil when authentication is disabled. When the chosen method
// has no configured secret, a random one is generated and logged by
// prefix only, matching the original server's behavior.
func FromConfig(cfg *config.AuthConfig, logger *slog.Logger) (Authenticator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Method {
	case config.AuthMethodAPIKey:
		if cfg.APIKey == "" {
			cfg.APIKey = generateSecret()
			logger.Warn("no api key configured, generated one", "prefix", secretPrefix(cfg.APIKey))
		}
		return &apiKeyAuth{key: []byte(cfg.APIKey)}, nil

	case config.AuthMethodBearer:
		if cfg.BearerToken == "" {
			cfg.BearerToken = generateSecret()
			logger.Warn("no bearer token configured, generated one", "prefix", secretPrefix(cfg.BearerToken))
		}
		return &bearerAuth{token: []byte(cfg.BearerToken)}, nil

	case config.AuthMethodJWT:
		if cfg.JWTSecret == "" {
			return nil, errors.New("jwt auth requires auth.jwt_secret")
		}
		return &jwtAuth{secret: []byte(cfg.JWTSecret)}, nil

	case config.AuthMethodBasic:
		if cfg.BasicUsername == "" {
			cfg.BasicUsername = "admin"
		}
		if cfg.BasicPassword == "" {
			cfg.BasicPassword = generateSecret()
			logger.Warn("no basic auth password configured, generated one", "prefix", secretPrefix(cfg.BasicPassword))
		}
		return &basicAuth{username: cfg.BasicUsername, password: []byte(cfg.BasicPassword)}, nil

	default:
		return nil, fmt.Errorf("unsupported auth method: %q", cfg.Method)
	}
}

// apiKeyAuth compares the X-API-Key header (or api_key query parameter
// fallback) against the configured key.
type apiKeyAuth struct {
	key []byte
}

func (a *apiKeyAuth) Method() string { return config.AuthMethodAPIKey }

func (a *apiKeyAuth) Authenticate(r *http.Request) (string, error) {
	presented := r.Header.Get("X-API-Key")
	if presented == "" {
		presented = r.URL.Query().Get("api_key")
	}
	if presented == "" {
		return "", fmt.Errorf("%w: missing api key", ErrInvalidCredentials)
	}
	if !constantTimeEqual([]byte(presented), a.key) {
		return "", fmt.Errorf("%w: api key mismatch", ErrInvalidCredentials)
	}
	return "api-key", nil
}

// bearerAuth compares the Authorization bearer token against a static
// configured token.
type bearerAuth struct {
	token []byte
}

func (a *bearerAuth) Method() string { return config.AuthMethodBearer }

func (a *bearerAuth) Authenticate(r *http.Request) (string, error) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}
	if !constantTimeEqual([]byte(token), a.token) {
		return "", fmt.Errorf("%w: bearer token mismatch", ErrInvalidCredentials)
	}
	return "bearer", nil
}

// jwtAuth verifies the Authorization bearer token as an HS256 JWT and
// uses its subject claim as the principal.
type jwtAuth struct {
	secret []byte
}

func (a *jwtAuth) Method() string { return config.AuthMethodJWT }

func (a *jwtAuth) Authenticate(r *http.Request) (string, error) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}
	subject, err := verifyToken(token, a.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return subject, nil
}

// basicAuth decodes and compares HTTP Basic credentials.
type basicAuth struct {
	username string
	password []byte
}

func (a *basicAuth) Method() string { return config.AuthMethodBasic }

func (a *basicAuth) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrMalformedAuthHeader)
	}
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("%w: expected basic scheme", ErrMalformedAuthHeader)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrMalformedAuthHeader)
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", fmt.Errorf("%w: missing credential separator", ErrMalformedAuthHeader)
	}

	userOK := constantTimeEqual([]byte(username), []byte(a.username))
	passOK := constantTimeEqual([]byte(password), a.password)
	if !userOK || !passOK {
		return "", fmt.Errorf("%w: username or password mismatch", ErrInvalidCredentials)
	}
	return username, nil
}

// extractBearerToken pulls the token out of an Authorization header.
func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrMalformedAuthHeader)
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("%w: expected bearer scheme", ErrMalformedAuthHeader)
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrMalformedAuthHeader)
	}
	return token, nil
}

// constantTimeEqual compares two secrets in fixed time to resist
// timing attacks.
func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// generateSecret returns a URL-safe random secret.
func generateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// secretPrefix returns the first 8 characters for log output; secrets
// are never logged whole.
func secretPrefix(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "..."
}
