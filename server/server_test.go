package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parleyvoice/parley/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Port:             0,
		PublicURL:        "https://example.ngrok.io",
		TraceDir:         t.TempDir(),
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "token",
		TwilioFromNumber: "+15551234567",
		DeepgramAPIKey:   "dg",
		GroqAPIKey:       "gq",
		ElevenLabsAPIKey: "el",
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := New(testConfig(t))

	recorder := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %q", body["status"])
	}
}

func TestTwiMLEndpointRendersStreamMarkup(t *testing.T) {
	s := New(testConfig(t))

	recorder := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/twiml", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/xml" {
		t.Fatalf("expected xml content type, got %q", got)
	}
	if !strings.Contains(recorder.Body.String(), `wss://example.ngrok.io/ws`) {
		t.Fatalf("expected stream url derived from public url, got %s", recorder.Body.String())
	}
}

func TestLatestTraceEndpoint(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg)

	recorder := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/trace/latest", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no traces, got %d", recorder.Code)
	}

	artifact := []byte(`{"call_id":"CA123","turns":[]}`)
	if err := os.WriteFile(filepath.Join(cfg.TraceDir, "CA123.json"), artifact, 0o644); err != nil {
		t.Fatalf("expected trace file written, got %v", err)
	}

	recorder = httptest.NewRecorder()
	s.http.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/trace/latest", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "CA123") {
		t.Fatalf("expected stored trace returned, got %s", recorder.Body.String())
	}
}

func TestOutboundCallRejectsNonE164Number(t *testing.T) {
	s := New(testConfig(t))

	recorder := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/call/5551234567", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-E.164 number, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "E.164") {
		t.Fatalf("expected format hint in error, got %s", recorder.Body.String())
	}
}

func TestMediaStreamEndpointRequiresWebsocket(t *testing.T) {
	s := New(testConfig(t))

	recorder := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for plain GET on websocket endpoint, got %d", recorder.Code)
	}
}
