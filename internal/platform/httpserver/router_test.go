package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(cfg ...RouterConfig) chi.Router {
	r := chi.NewRouter()
	SetupRouter(r, cfg...)
	return r
}

func serve(r http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	cases := []struct {
		name   string
		cfg    RouterConfig
		path   string
		status int
		body   string
	}{
		{"healthz", RouterConfig{}, "/healthz", http.StatusOK, "ok"},
		{"readyz without check", RouterConfig{}, "/readyz", http.StatusOK, "ready"},
		{"readyz check passes", RouterConfig{ReadyFunc: func() error { return nil }}, "/readyz", http.StatusOK, "ready"},
		{"readyz check fails", RouterConfig{ReadyFunc: func() error { return errors.New("store down") }}, "/readyz", http.StatusServiceUnavailable, "not ready: store down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(newTestRouter(tc.cfg), tc.path, nil)
			if rr.Code != tc.status || rr.Body.String() != tc.body {
				t.Fatalf("got %d %q, want %d %q", rr.Code, rr.Body.String(), tc.status, tc.body)
			}
		})
	}
}

func TestRecovererAnswers500WithEnvelope(t *testing.T) {
	r := newTestRouter()
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("resolver exploded") })

	rr := serve(r, "/boom", map[string]string{"X-Request-Id": "rid-1"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rid-1") {
		t.Fatalf("expected request id in error body, got %q", rr.Body.String())
	}
}

func TestParseCORSOrigins(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", []string{"*"}},
		{" , ", []string{"*"}},
		{"https://danmu.example.com", []string{"https://danmu.example.com"}},
		{"https://danmu.example.com , https://player.example.com", []string{"https://danmu.example.com", "https://player.example.com"}},
	}
	for _, tc := range cases {
		got := parseCORSOrigins(tc.raw)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Errorf("parseCORSOrigins(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	ping := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

	open := newTestRouter()
	open.Get("/ping", ping)
	if serve(open, "/ping", map[string]string{"Origin": "https://any.example.org"}).Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("wildcard router must answer any origin")
	}

	locked := newTestRouter(RouterConfig{CORSOrigins: "https://danmu.example.com"})
	locked.Get("/ping", ping)
	if got := serve(locked, "/ping", map[string]string{"Origin": "https://danmu.example.com"}).Header().Get("Access-Control-Allow-Origin"); got != "https://danmu.example.com" {
		t.Fatalf("allowed origin got %q", got)
	}
	if got := serve(locked, "/ping", map[string]string{"Origin": "https://elsewhere.example.org"}).Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin got %q", got)
	}
}

func TestRequestID(t *testing.T) {
	r := newTestRouter()
	var seen string
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := serve(r, "/id", nil)
	if seen == "" || rr.Header().Get("X-Request-Id") != seen {
		t.Fatalf("minted id: ctx=%q header=%q", seen, rr.Header().Get("X-Request-Id"))
	}

	rr = serve(r, "/id", map[string]string{"X-Request-Id": "abc-123"})
	if seen != "abc-123" || rr.Header().Get("X-Request-Id") != "abc-123" {
		t.Fatalf("inbound id not kept: ctx=%q header=%q", seen, rr.Header().Get("X-Request-Id"))
	}

	rr = serve(r, "/id", map[string]string{"X-Request-Id": "bad id\twith tab"})
	if got := rr.Header().Get("X-Request-Id"); got == "" || got == "bad id\twith tab" {
		t.Fatalf("expected a freshly minted id, got %q", got)
	}
}
