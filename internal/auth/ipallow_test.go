// ABOUTME: Tests for the IP allow-list and proxy-aware client address
// ABOUTME: resolution.

package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAllowListEmpty(t *testing.T) {
	al, err := ParseAllowList(nil)
	require.NoError(t, err)
	assert.Nil(t, al)
	assert.True(t, al.Allowed("8.8.8.8"), "nil list allows everything")
}

func TestParseAllowListInvalid(t *testing.T) {
	_, err := ParseAllowList([]string{"10.0.0.0/8", "not-an-ip"})
	assert.Error(t, err)

	_, err = ParseAllowList([]string{"10.0.0.0/40"})
	assert.Error(t, err)
}

func TestAllowedSingleIPAndCIDR(t *testing.T) {
	al, err := ParseAllowList([]string{"192.168.1.5", "10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		addr string
		want bool
	}{
		{"192.168.1.5", true},
		{"192.168.1.6", false},
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"11.0.0.1", false},
		{"::ffff:10.0.0.1", true}, // v4-mapped form of an allowed v4
		{"garbage", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, al.Allowed(tt.addr), "addr %q", tt.addr)
	}
}

func TestAllowedIPv6(t *testing.T) {
	al, err := ParseAllowList([]string{"2001:db8::/32", "::1"})
	require.NoError(t, err)

	assert.True(t, al.Allowed("2001:db8::1"))
	assert.True(t, al.Allowed("::1"))
	assert.False(t, al.Allowed("2001:db9::1"))
}

func TestClientAddrNoProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:52011"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")

	// Without trust, forwarded headers are spoofable and ignored.
	assert.Equal(t, "203.0.113.7", ClientAddr(r, false, nil))
}

func TestClientAddrTrustedProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.2:9999"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")

	assert.Equal(t, "198.51.100.1", ClientAddr(r, true, nil))
}

func TestClientAddrRealIPFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.2:9999"
	r.Header.Set("X-Real-IP", "198.51.100.9")

	assert.Equal(t, "198.51.100.9", ClientAddr(r, true, nil))
}

func TestClientAddrMalformedForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.2:9999"
	r.Header.Set("X-Forwarded-For", "<script>alert(1)</script>")

	assert.Equal(t, "10.0.0.2", ClientAddr(r, true, nil))
}

func TestClientAddrIPv6Bracketed(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "[2001:db8::1]:8080"

	assert.Equal(t, "2001:db8::1", ClientAddr(r, false, nil))
}
