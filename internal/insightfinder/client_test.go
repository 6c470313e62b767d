// ABOUTME: Tests for the InsightFinder API client: query shaping,
// ABOUTME: per-tenant URL override, and upstream error handling.

package insightfinder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTimelinesQueryShape(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k, v := range r.URL.Query() {
			gotQuery[k] = v[0]
		}
		_ = json.NewEncoder(w).Encode([]TimelineEntry{{Timestamp: 42, ComponentName: "api"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	cred := &Credential{LicenseKey: "lk-secret", UserName: "alice"}
	entries, err := client.Timelines(context.Background(), cred, TimelineQuery{
		SystemName:  "prod",
		StartTimeMs: 1000,
		EndTimeMs:   2000,
		EventType:   "incident",
	})
	if err != nil {
		t.Fatalf("Timelines: %v", err)
	}
	if len(entries) != 1 || entries[0].Timestamp != 42 {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	if gotPath != "/api/v2/rootcausetimelinesJWT" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer lk-secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	want := map[string]string{
		"systemName":   "prod",
		"customerName": "alice",
		"licenseKey":   "lk-secret",
		"eventType":    "incident",
		"startTime":    "1000",
		"endTime":      "2000",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query[%s] = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestCredentialAPIURLOverridesDefault(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		_ = json.NewEncoder(w).Encode([]SystemInfo{})
	}))
	defer srv.Close()

	// Default base points nowhere routable; the credential redirects.
	client := NewClient("http://127.0.0.1:1", testLogger())
	cred := &Credential{LicenseKey: "lk", UserName: "bob", APIURL: srv.URL + "/"}
	if _, err := client.Systems(context.Background(), cred); err != nil {
		t.Fatalf("Systems: %v", err)
	}
	if !hit {
		t.Error("override URL was never hit")
	}
}

func TestUpstreamErrorDoesNotLeakBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"license key lk-secret rejected"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	cred := &Credential{LicenseKey: "lk-secret", UserName: "alice"}
	_, err := client.Timelines(context.Background(), cred, TimelineQuery{SystemName: "prod", EventType: "incident"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if strings.Contains(err.Error(), "lk-secret") {
		t.Errorf("error leaks upstream body: %v", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestCredentialValid(t *testing.T) {
	tests := []struct {
		name string
		cred *Credential
		want bool
	}{
		{"nil", nil, false},
		{"empty", &Credential{}, false},
		{"missing user", &Credential{LicenseKey: "lk"}, false},
		{"missing key", &Credential{UserName: "alice"}, false},
		{"complete", &Credential{LicenseKey: "lk", UserName: "alice"}, true},
		{"url optional", &Credential{LicenseKey: "lk", UserName: "alice", APIURL: "https://x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
