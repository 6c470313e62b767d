// ABOUTME: Tests for per-request tenant credential extraction.

package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
		wantErr bool
	}{
		{
			name:    "complete",
			headers: map[string]string{HeaderLicenseKey: "lk", HeaderUserName: "alice"},
			want:    true,
		},
		{
			name:    "complete with api url",
			headers: map[string]string{HeaderLicenseKey: "lk", HeaderUserName: "alice", HeaderAPIURL: "https://eu.insightfinder.com"},
			want:    true,
		},
		{
			name:    "legacy headers",
			headers: map[string]string{LegacyHeaderLicenseKey: "lk", LegacyHeaderUserName: "bob"},
			want:    true,
		},
		{
			name:    "canonical wins over legacy",
			headers: map[string]string{HeaderLicenseKey: "new", LegacyHeaderLicenseKey: "old", HeaderUserName: "alice"},
			want:    true,
		},
		{
			name:    "absent entirely",
			headers: nil,
		},
		{
			name:    "license key only",
			headers: map[string]string{HeaderLicenseKey: "lk"},
			wantErr: true,
		},
		{
			name:    "user name only",
			headers: map[string]string{HeaderUserName: "alice"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			cred, err := TenantFromHeaders(h)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingTenantHeader)
				return
			}
			require.NoError(t, err)
			if tt.want {
				require.NotNil(t, cred)
				assert.True(t, cred.Valid())
			} else {
				assert.Nil(t, cred)
			}
		})
	}
}

func TestTenantCanonicalPrecedence(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderLicenseKey, "canonical-key")
	h.Set(LegacyHeaderLicenseKey, "legacy-key")
	h.Set(HeaderUserName, "alice")

	cred, err := TenantFromHeaders(h)
	require.NoError(t, err)
	assert.Equal(t, "canonical-key", cred.LicenseKey)
}

func TestRequireTenant(t *testing.T) {
	h := http.Header{}
	_, err := RequireTenant(h)
	assert.ErrorIs(t, err, ErrMissingTenantHeader)
	assert.Contains(t, err.Error(), HeaderLicenseKey)

	h.Set(HeaderLicenseKey, "lk")
	h.Set(HeaderUserName, "alice")
	cred, err := RequireTenant(h)
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.UserName)
}
