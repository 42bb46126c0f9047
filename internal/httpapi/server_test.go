package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/antoniostano/trunkline/internal/bridge"
	"github.com/antoniostano/trunkline/internal/config"
	"github.com/antoniostano/trunkline/internal/observability"
	"github.com/antoniostano/trunkline/internal/transcript"
)

func newTestServer(t *testing.T, cfg config.Config) (*Server, transcript.Store) {
	t.Helper()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	store := transcript.NewInMemoryStore()
	b := bridge.New(bridge.Config{}, nil, metrics, nil)
	return New(cfg, b, store, metrics), store
}

func TestHandleIncomingCallReturnsStreamInstructions(t *testing.T) {
	s, _ := newTestServer(t, config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/calls/incoming", nil)
	req.Host = "calls.example.com"
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "wss://calls.example.com/v1/calls/stream") {
		t.Fatalf("body missing stream URL: %s", body)
	}
}

func TestHandleIncomingCallPrefersConfiguredPublicHost(t *testing.T) {
	s, _ := newTestServer(t, config.Config{PublicHost: "voice.prod.example.com"})

	req := httptest.NewRequest(http.MethodPost, "/v1/calls/incoming", nil)
	req.Host = "internal-lb:8080"
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "wss://voice.prod.example.com/v1/calls/stream") {
		t.Fatalf("body should use the configured public host: %s", rec.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t, config.Config{ModelAPIKey: "sk-test"})

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestHandleTranscript(t *testing.T) {
	s, store := newTestServer(t, config.Config{})
	if err := store.SaveLine(context.Background(), transcript.Line{CallID: "call-1", Role: "caller", Content: "hello"}); err != nil {
		t.Fatalf("SaveLine() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/call-1/transcript", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"hello"`) {
		t.Fatalf("body missing transcript line: %s", rec.Body.String())
	}
}

func TestHandleActiveCall(t *testing.T) {
	s, _ := newTestServer(t, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/active", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"call_id"`) || !strings.Contains(body, `"legs"`) {
		t.Fatalf("unexpected snapshot body: %s", body)
	}
}
