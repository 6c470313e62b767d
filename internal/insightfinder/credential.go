// ABOUTME: Per-request tenant credential for the InsightFinder API.
// ABOUTME: Built from request headers, never from process environment.

package insightfinder

// Credential identifies one upstream InsightFinder account for a single
// request. Two concurrent requests may carry different credentials and
// must not interfere; the credential is constructed per request and
// discarded when the response is sent.
type Credential struct {
	LicenseKey string
	UserName   string
	// APIURL overrides the server's default upstream endpoint when set.
	APIURL string
}

// Valid reports whether both required fields are present.
func (c *Credential) Valid() bool {
	return c != nil && c.LicenseKey != "" && c.UserName != ""
}
