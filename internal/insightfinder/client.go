// ABOUTME: HTTP client for the InsightFinder platform APIs.
// ABOUTME: Signs each call with the request's tenant credential.

package insightfinder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CallTimeout bounds a single upstream API call, independent of the
// server's HTTP idle timeout.
const CallTimeout = 30 * time.Second

// ErrUpstream indicates the platform returned a non-2xx status.
var ErrUpstream = errors.New("insightfinder api error")

// Client calls the InsightFinder query APIs. It is safe for concurrent
// use; per-tenant state travels in the Credential argument, never in
// the client itself.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client with the given default endpoint. A request
// credential carrying its own APIURL overrides the default per call.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: CallTimeout},
		logger:     logger,
	}
}

// TimelineEntry is one anomaly or incident timeline row as returned by
// the platform's JWT query endpoints.
type TimelineEntry struct {
	Timestamp     int64           `json:"timestamp"`
	ComponentName string          `json:"componentName"`
	InstanceName  string          `json:"instanceName"`
	ProjectName   string          `json:"projectName"`
	PatternName   string          `json:"patternName"`
	IsIncident    bool            `json:"isIncident"`
	AnomalyScore  float64         `json:"anomalyScore"`
	RawData       string          `json:"rawData,omitempty"`
	RootCause     json.RawMessage `json:"metricRootCause,omitempty"`
}

// TimelineQuery names a time-bounded query against one system.
type TimelineQuery struct {
	SystemName  string
	StartTimeMs int64
	EndTimeMs   int64
	// EventType selects the timeline flavor: incident, metricAnomaly,
	// logAnomaly, deployment, or trace.
	EventType string
}

// Timelines fetches event timelines for the query, authenticated as the
// given tenant.
func (c *Client) Timelines(ctx context.Context, cred *Credential, q TimelineQuery) ([]TimelineEntry, error) {
	params := url.Values{}
	params.Set("systemName", q.SystemName)
	params.Set("customerName", cred.UserName)
	params.Set("eventType", q.EventType)
	if q.StartTimeMs > 0 {
		params.Set("startTime", strconv.FormatInt(q.StartTimeMs, 10))
	}
	if q.EndTimeMs > 0 {
		params.Set("endTime", strconv.FormatInt(q.EndTimeMs, 10))
	}

	var entries []TimelineEntry
	if err := c.get(ctx, cred, "/api/v2/rootcausetimelinesJWT", params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SystemInfo describes one system visible to the tenant.
type SystemInfo struct {
	SystemName   string `json:"systemName"`
	Environment  string `json:"environmentName"`
	ProjectCount int    `json:"projectCount"`
}

// Systems lists the systems the tenant may query.
func (c *Client) Systems(ctx context.Context, cred *Credential) ([]SystemInfo, error) {
	params := url.Values{}
	params.Set("customerName", cred.UserName)

	var systems []SystemInfo
	if err := c.get(ctx, cred, "/api/v2/systemlistJWT", params, &systems); err != nil {
		return nil, err
	}
	return systems, nil
}

// get performs one GET against the platform, decoding the JSON response
// into out. The license key authenticates the call as a bearer token;
// the platform additionally expects it as a query parameter.
func (c *Client) get(ctx context.Context, cred *Credential, path string, params url.Values, out any) error {
	base := c.baseURL
	if cred.APIURL != "" {
		base = strings.TrimRight(cred.APIURL, "/")
	}
	params.Set("licenseKey", cred.LicenseKey)

	reqURL := base + path + "?" + params.Encode()
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.LicenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Body detail goes to the debug log only; callers see the status.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Debug("upstream request failed",
			"path", path,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return fmt.Errorf("%w: %s returned status %d", ErrUpstream, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
