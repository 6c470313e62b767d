// ABOUTME: Per-request tenant credential extraction from InsightFinder headers.
// ABOUTME: Tenant credentials are never cached; each request carries its own.

package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
)

// Tenant credential headers. The X-IF-* forms are canonical; the bare
// forms are accepted for older clients.
const (
	HeaderLicenseKey = "X-IF-License-Key"
	HeaderUserName   = "X-IF-User-Name"
	HeaderAPIURL     = "X-IF-API-URL"

	LegacyHeaderLicenseKey = "X-License-Key"
	LegacyHeaderUserName   = "X-User-Name"
)

// ErrMissingTenantHeader reports a tool invocation attempted without a
// complete tenant credential.
var ErrMissingTenantHeader = errors.New("missing tenant header")

// TenantFromHeaders reads the tenant credential for one request. It
// returns (nil, nil) when no tenant headers are present at all so that
// callers can distinguish "no tenant" from "partial tenant".
func TenantFromHeaders(h http.Header) (*insightfinder.Credential, error) {
	licenseKey := h.Get(HeaderLicenseKey)
	if licenseKey == "" {
		licenseKey = h.Get(LegacyHeaderLicenseKey)
	}
	userName := h.Get(HeaderUserName)
	if userName == "" {
		userName = h.Get(LegacyHeaderUserName)
	}

	if licenseKey == "" && userName == "" {
		return nil, nil
	}
	if licenseKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingTenantHeader, HeaderLicenseKey)
	}
	if userName == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingTenantHeader, HeaderUserName)
	}

	return &insightfinder.Credential{
		LicenseKey: licenseKey,
		UserName:   userName,
		APIURL:     h.Get(HeaderAPIURL),
	}, nil
}

// RequireTenant returns the request tenant or an error naming the first
// missing header. Used on paths that actually execute tools.
func RequireTenant(h http.Header) (*insightfinder.Credential, error) {
	cred, err := TenantFromHeaders(h)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingTenantHeader, HeaderLicenseKey)
	}
	return cred, nil
}
