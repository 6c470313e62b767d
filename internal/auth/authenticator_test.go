// ABOUTME: Tests for the authentication schemes and their selection from
// ABOUTME: configuration, including secret auto-generation.

package auth

import (
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightfinder/mcp-server/internal/config"
)

func TestFromConfigDisabled(t *testing.T) {
	a, err := FromConfig(&config.AuthConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestFromConfigUnknownMethod(t *testing.T) {
	_, err := FromConfig(&config.AuthConfig{Enabled: true, Method: "voodoo"}, nil)
	assert.Error(t, err)
}

func TestFromConfigGeneratesAPIKey(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: true, Method: config.AuthMethodAPIKey}
	a, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.NotEmpty(t, cfg.APIKey, "a key must be generated when none is configured")

	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-API-Key", cfg.APIKey)
	principal, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "api-key", principal)
}

func TestAPIKeyAuth(t *testing.T) {
	a := &apiKeyAuth{key: []byte("correct-key")}

	tests := []struct {
		name    string
		header  string
		query   string
		wantErr error
	}{
		{"valid header", "correct-key", "", nil},
		{"valid query fallback", "", "correct-key", nil},
		{"wrong key", "wrong-key", "", ErrInvalidCredentials},
		{"missing entirely", "", "", ErrInvalidCredentials},
		{"header wins over query", "correct-key", "ignored", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/mcp"
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			r := httptest.NewRequest("POST", target, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}

			_, err := a.Authenticate(r)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	a := &bearerAuth{token: []byte("tok-123")}

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid", "Bearer tok-123", nil},
		{"wrong token", "Bearer tok-456", ErrInvalidCredentials},
		{"missing header", "", ErrMalformedAuthHeader},
		{"wrong scheme", "Basic tok-123", ErrMalformedAuthHeader},
		{"empty token", "Bearer ", ErrMalformedAuthHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/mcp", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			_, err := a.Authenticate(r)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("jwt-secret")
	a := &jwtAuth{secret: secret}

	token := signToken(t, secret, "analyst", time.Hour)

	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	principal, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "analyst", principal)

	r = httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("Authorization", "Bearer invalid.jwt.token")
	_, err = a.Authenticate(r)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestBasicAuth(t *testing.T) {
	a := &basicAuth{username: "admin", password: []byte("hunter2")}

	creds := func(user, pass string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid", creds("admin", "hunter2"), nil},
		{"wrong password", creds("admin", "letmein"), ErrInvalidCredentials},
		{"wrong username", creds("root", "hunter2"), ErrInvalidCredentials},
		{"bad base64", "Basic !!!", ErrMalformedAuthHeader},
		{"no separator", "Basic " + base64.StdEncoding.EncodeToString([]byte("adminhunter2")), ErrMalformedAuthHeader},
		{"missing header", "", ErrMalformedAuthHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/mcp", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			principal, err := a.Authenticate(r)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "admin", principal)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSecretPrefix(t *testing.T) {
	assert.Equal(t, "short", secretPrefix("short"))
	assert.Equal(t, "12345678...", secretPrefix("123456789abcdef"))
}

func TestGenerateSecretUnique(t *testing.T) {
	a := generateSecret()
	b := generateSecret()
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 40)
}

func TestErrorsDoNotEchoCredential(t *testing.T) {
	a := &apiKeyAuth{key: []byte("real-key")}
	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-API-Key", "attacker-guess")

	_, err := a.Authenticate(r)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "attacker-guess")
	assert.NotContains(t, err.Error(), "real-key")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}
