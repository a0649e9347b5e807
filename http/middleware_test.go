package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"busdelay/logging"
	"busdelay/monitoring"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerMiddlewareRequestID(t *testing.T) {
	var seen string
	h := LoggerMiddleware(zap.NewNop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen != "upstream-42" || w.Header().Get(RequestIDHeader) != "upstream-42" {
		t.Errorf("expected upstream id to be kept, handler saw %q, header %q", seen, w.Header().Get(RequestIDHeader))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "upstream-42" {
		t.Errorf("expected a generated request id, got %q", seen)
	}
	if w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header %q does not match context id %q", w.Header().Get(RequestIDHeader), seen)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestPanicsAreLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	metrics := monitoring.NewMetricsCollector()
	h := middlewareChain(DefaultServerConfig(), zap.New(core), metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	requests := logs.FilterMessage("request").All()
	if len(requests) != 1 {
		t.Fatalf("expected one request log, got %d", len(requests))
	}
	if status := requests[0].ContextMap()["status"]; status != int64(http.StatusInternalServerError) {
		t.Errorf("expected logged status 500, got %v", status)
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if want := `busdelay_http_requests_total{code="500",route="unmatched"} 1`; !strings.Contains(string(body), want) {
		t.Errorf("expected %q in exposition:\n%s", want, body)
	}
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	h := CORSMiddleware([]string{"https://ops.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://ops.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || called {
		t.Fatalf("expected preflight 204 without reaching handler, got %d called=%v", w.Code, called)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example" {
		t.Errorf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow origin for unknown origin, got %q", got)
	}
}

func TestSecurityHeadersSkipCSPForSwagger(t *testing.T) {
	h := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected CSP on API routes")
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Header().Get("Content-Security-Policy") != "" {
		t.Error("expected no CSP on swagger UI")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
}

func TestSwaggerDocServed(t *testing.T) {
	w := do(newTestHandler(loadingService(t), Deps{}), http.MethodGet, "/swagger/doc.json", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	doc := decodeBody[map[string]any](t, w)
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/predict"]; !ok {
		t.Errorf("swagger doc does not describe /predict: %v", doc["paths"])
	}
}
