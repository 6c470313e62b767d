// ABOUTME: Tests for the layered timeline tools against a fake upstream.
// ABOUTME: Covers argument validation, shaping, filters, and raw data caps.

package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/mcp"
	"github.com/insightfinder/mcp-server/internal/validate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUpstream serves canned timeline entries and records the query it
// received.
type fakeUpstream struct {
	entries    []insightfinder.TimelineEntry
	lastQuery  map[string]string
	statusCode int
}

func (f *fakeUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.lastQuery = map[string]string{}
		for k, v := range r.URL.Query() {
			f.lastQuery[k] = v[0]
		}
		if f.statusCode != 0 {
			w.WriteHeader(f.statusCode)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "rootcausetimelines"):
			_ = json.NewEncoder(w).Encode(f.entries)
		case strings.Contains(r.URL.Path, "systemlist"):
			_ = json.NewEncoder(w).Encode([]insightfinder.SystemInfo{
				{SystemName: "prod-east", ProjectCount: 4},
				{SystemName: "billing", ProjectCount: 2},
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func setup(t *testing.T, upstream *fakeUpstream) *mcp.Registry {
	t.Helper()
	srv := httptest.NewServer(upstream.handler())
	t.Cleanup(srv.Close)

	client := insightfinder.NewClient(srv.URL, discardLogger())
	registry := mcp.NewRegistry()
	require.NoError(t, RegisterAll(registry, client, discardLogger()))
	return registry
}

func call(t *testing.T, registry *mcp.Registry, name, args string) (map[string]any, error) {
	t.Helper()
	tool, ok := registry.Get(name)
	require.True(t, ok, "tool %s not registered", name)

	tenant := &insightfinder.Credential{LicenseKey: "lk", UserName: "alice"}
	result, err := tool.Handler(context.Background(), json.RawMessage(args), tenant, func(mcp.Progress) {})
	if err != nil {
		return nil, err
	}
	out, ok := result.(map[string]any)
	require.True(t, ok, "result type %T", result)
	return out, nil
}

func sampleEntries() []insightfinder.TimelineEntry {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).UnixMilli()
	return []insightfinder.TimelineEntry{
		{Timestamp: base, ComponentName: "api", InstanceName: "api-1", ProjectName: "web", PatternName: "high latency", IsIncident: true, AnomalyScore: 9.5, RawData: "latency=2100ms"},
		{Timestamp: base + 60_000, ComponentName: "api", InstanceName: "api-2", ProjectName: "web", PatternName: "high latency", IsIncident: false, AnomalyScore: 3.1},
		{Timestamp: base + 120_000, ComponentName: "db", InstanceName: "db-1", ProjectName: "web", PatternName: "disk pressure", IsIncident: true, AnomalyScore: 7.8, RootCause: json.RawMessage(`{"metric":"disk_used"}`)},
	}
}

func TestCatalogComplete(t *testing.T) {
	registry := setup(t, &fakeUpstream{})

	// Three tools per category plus the two standalone ones.
	assert.Equal(t, len(categories)*3+2, registry.Len())

	for _, cat := range categories {
		for _, name := range []string{
			"get_" + cat.plural + "_overview",
			"get_" + cat.plural + "_list",
			"get_" + cat.singular + "_details",
		} {
			_, ok := registry.Get(name)
			assert.True(t, ok, "missing tool %s", name)
		}
	}
}

func TestArgsValidation(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"missing system", `{}`},
		{"bad json", `{"system_name":`},
		{"negative time", `{"system_name":"s","start_time_ms":-5}`},
		{"inverted range", `{"system_name":"s","start_time_ms":200,"end_time_ms":100}`},
	}

	registry := setup(t, &fakeUpstream{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, registry, "get_incidents_overview", tt.args)
			assert.ErrorIs(t, err, mcp.ErrInvalidArgs)
		})
	}
}

func TestArgsDefaults(t *testing.T) {
	args, err := parseTimelineArgs(json.RawMessage(`{"system_name":"prod"}`))
	require.NoError(t, err)

	assert.Equal(t, defaultListLimit, args.Limit)
	assert.InDelta(t, time.Now().UnixMilli(), args.EndTimeMs, float64(5*time.Second.Milliseconds()))
	assert.Equal(t, args.EndTimeMs-defaultLookback.Milliseconds(), args.StartTimeMs)

	capped, err := parseTimelineArgs(json.RawMessage(`{"system_name":"prod","limit":9999}`))
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, capped.Limit)
}

func TestOverviewCounts(t *testing.T) {
	upstream := &fakeUpstream{entries: sampleEntries()}
	registry := setup(t, upstream)

	out, err := call(t, registry, "get_incidents_overview", `{"system_name":"prod-east"}`)
	require.NoError(t, err)

	assert.Equal(t, "success", out["status"])
	summary := out["summary"].(map[string]any)
	assert.Equal(t, 3, summary["total_events"])
	assert.Equal(t, 2, summary["true_incidents"])
	assert.Equal(t, 2, summary["unique_components"])
	assert.Equal(t, 3, summary["unique_instances"])
	assert.Equal(t, 2, summary["unique_patterns"])
	assert.Equal(t, true, summary["has_incidents"])

	// The upstream saw the tenant and system routing.
	assert.Equal(t, "prod-east", upstream.lastQuery["systemName"])
	assert.Equal(t, "alice", upstream.lastQuery["customerName"])
	assert.Equal(t, "lk", upstream.lastQuery["licenseKey"])
	assert.Equal(t, "incident", upstream.lastQuery["eventType"])
}

func TestListSortedNewestFirstAndLimited(t *testing.T) {
	upstream := &fakeUpstream{entries: sampleEntries()}
	registry := setup(t, upstream)

	out, err := call(t, registry, "get_incidents_list", `{"system_name":"prod-east","limit":2}`)
	require.NoError(t, err)

	events := out["events"].([]listEntry)
	require.Len(t, events, 2)
	assert.Equal(t, "disk pressure", events[0].PatternName)
	assert.Greater(t, events[0].TimestampMs, events[1].TimestampMs)
	assert.Equal(t, true, out["truncated"])
}

func TestListComponentFilter(t *testing.T) {
	upstream := &fakeUpstream{entries: sampleEntries()}
	registry := setup(t, upstream)

	out, err := call(t, registry, "get_incidents_list", `{"system_name":"prod-east","component_name":"db"}`)
	require.NoError(t, err)

	events := out["events"].([]listEntry)
	require.Len(t, events, 1)
	assert.Equal(t, "db", events[0].ComponentName)
}

func TestDetailsIncludeRawAndRootCause(t *testing.T) {
	upstream := &fakeUpstream{entries: sampleEntries()}
	registry := setup(t, upstream)

	out, err := call(t, registry, "get_incident_details", `{"system_name":"prod-east"}`)
	require.NoError(t, err)

	events := out["events"].([]detailEntry)
	require.Len(t, events, 3)

	byPattern := map[string]detailEntry{}
	for _, e := range events {
		byPattern[e.PatternName] = e
	}
	assert.Equal(t, "latency=2100ms", byPattern["high latency"].RawData)
	assert.JSONEq(t, `{"metric":"disk_used"}`, string(byPattern["disk pressure"].RootCause))
}

func TestDetailsCapsOversizedRawData(t *testing.T) {
	entries := sampleEntries()
	entries[0].RawData = strings.Repeat("x", validate.MaxRawPayload+1)
	registry := setup(t, &fakeUpstream{entries: entries})

	out, err := call(t, registry, "get_incident_details", `{"system_name":"prod-east"}`)
	require.NoError(t, err)

	events := out["events"].([]detailEntry)
	for _, e := range events {
		assert.LessOrEqual(t, len(e.RawData), validate.MaxRawPayload)
	}
	found := false
	for _, e := range events {
		if strings.Contains(e.RawData, "raw data omitted") {
			found = true
		}
	}
	assert.True(t, found, "oversized raw data should be replaced with a marker")
}

func TestDetailsEmitProgress(t *testing.T) {
	registry := setup(t, &fakeUpstream{entries: sampleEntries()})
	tool, ok := registry.Get("get_incident_details")
	require.True(t, ok)
	assert.True(t, tool.Streaming)

	var stages []string
	tenant := &insightfinder.Credential{LicenseKey: "lk", UserName: "alice"}
	_, err := tool.Handler(context.Background(), json.RawMessage(`{"system_name":"prod-east"}`), tenant, func(p mcp.Progress) {
		stages = append(stages, p.Stage)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"querying", "shaping"}, stages)
}

func TestUpstreamErrorSurfacesAsErrUpstream(t *testing.T) {
	registry := setup(t, &fakeUpstream{statusCode: http.StatusBadGateway})

	_, err := call(t, registry, "get_incidents_overview", `{"system_name":"prod-east"}`)
	assert.ErrorIs(t, err, insightfinder.ErrUpstream)
}

func TestListAllSystems(t *testing.T) {
	registry := setup(t, &fakeUpstream{})

	out, err := call(t, registry, "list_all_systems", `{}`)
	require.NoError(t, err)

	assert.Equal(t, 2, out["count"])
	systems := out["systems"].([]insightfinder.SystemInfo)
	assert.Equal(t, "billing", systems[0].SystemName, "systems sorted by name")
}

func TestGetServerTime(t *testing.T) {
	registry := setup(t, &fakeUpstream{})

	out, err := call(t, registry, "get_server_time", `{}`)
	require.NoError(t, err)

	unixMs, ok := out["unix_ms"].(int64)
	require.True(t, ok, "unix_ms type %T", out["unix_ms"])
	assert.InDelta(t, time.Now().UnixMilli(), unixMs, float64(5*time.Second.Milliseconds()))

	ts, err2 := time.Parse(time.RFC3339, out["timestamp"].(string))
	require.NoError(t, err2)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}

func TestEachCategoryQueriesItsEventType(t *testing.T) {
	upstream := &fakeUpstream{entries: nil}
	registry := setup(t, upstream)

	for _, cat := range categories {
		_, err := call(t, registry, "get_"+cat.plural+"_overview", `{"system_name":"s"}`)
		require.NoError(t, err, cat.plural)
		assert.Equal(t, cat.eventType, upstream.lastQuery["eventType"], cat.plural)
	}
}

func TestFormatMs(t *testing.T) {
	assert.Equal(t, "", formatMs(0))
	ms := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "2026-08-30T12:00:00Z", formatMs(ms))
}

func TestTimeRangeFormatting(t *testing.T) {
	args := timelineArgs{StartTimeMs: 1000, EndTimeMs: 2000}
	tr := timeRange(args)
	assert.NotEmpty(t, tr["start"])
	assert.NotEmpty(t, tr["end"])
	// Sanity on ordering of the two bounds.
	s, _ := time.Parse(time.RFC3339, tr["start"])
	e, _ := time.Parse(time.RFC3339, tr["end"])
	assert.True(t, e.After(s))
}
