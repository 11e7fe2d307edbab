package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qazna.org/authcore/internal/auth"
	"qazna.org/authcore/internal/config"
	"qazna.org/authcore/internal/obs"
	"qazna.org/authcore/internal/ratelimit"
)

func TestRequestIDReusesValidInbound(t *testing.T) {
	var seen string
	handler := RequestID("X-Request-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = obs.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "client-abc-123" || rr.Header().Get("X-Request-ID") != "client-abc-123" {
		t.Fatalf("inbound id not reused: ctx=%q header=%q", seen, rr.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "has space")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen == "has space" || len(seen) != 26 || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated ULID, got ctx=%q header=%q", seen, rr.Header().Get("X-Request-ID"))
	}
}

func TestAccessLogEmitsStructuredEntry(t *testing.T) {
	logs := &syncBuffer{}
	logger := obs.NewLogger(obs.LogOptions{JSON: true, Writer: logs})

	handler := RequestID("X-Request-ID")(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	line := strings.TrimSpace(logs.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"time", "level", "msg", "request_id", "method", "path", "status", "duration_ms"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in log entry %v", key, entry)
		}
	}
	if entry["msg"] != "request complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", entry["status"])
	}
	if entry["request_id"] != rr.Header().Get("X-Request-ID") {
		t.Fatalf("log request_id %v does not match response header", entry["request_id"])
	}
}

func TestRecoverReturnsEnvelope(t *testing.T) {
	logs := &syncBuffer{}
	logger := obs.NewLogger(obs.LogOptions{JSON: true, Writer: logs})
	handler := RequestID("X-Request-ID")(Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != codeInternalError || env.Error.Message != msgInternalError {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Error.RequestID == nil || *env.Error.RequestID != rr.Header().Get("X-Request-ID") {
		t.Fatalf("request id missing from envelope")
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("panic value leaked to client")
	}
	if !strings.Contains(logs.String(), "boom") {
		t.Fatalf("panic value not logged")
	}
}

func TestPanicLogsSingleSummaryLine(t *testing.T) {
	logs := &syncBuffer{}
	logger := obs.NewLogger(obs.LogOptions{JSON: true, Writer: logs})
	handler := RequestID("X-Request-ID")(AccessLog(logger)(Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}

	var summaries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log is not valid JSON: %v", err)
		}
		if _, ok := entry["duration_ms"]; ok {
			summaries = append(summaries, entry)
		}
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one summary line, got %d: %s", len(summaries), logs.String())
	}
	entry := summaries[0]
	if entry["msg"] != "request failed" || entry["level"] != "ERROR" {
		t.Fatalf("unexpected summary %v", entry)
	}
	if entry["status"] != float64(http.StatusInternalServerError) || entry["panic"] != "boom" {
		t.Fatalf("summary missing failure detail: %v", entry)
	}
	if entry["request_id"] != rr.Header().Get("X-Request-ID") {
		t.Fatalf("summary request_id %v does not match response", entry["request_id"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rr.Header().Get(k); got != want {
			t.Fatalf("%s=%q, want %q", k, got, want)
		}
	}
	if !strings.Contains(rr.Header().Get("Content-Security-Policy"), "default-src 'none'") {
		t.Fatalf("unexpected CSP %q", rr.Header().Get("Content-Security-Policy"))
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("origin not allowed: %v", rr.Header())
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("credentials not allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected origin allowed")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("clientIP=%q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("clientIP with XFF=%q", got)
	}
}

func TestShouldRateLimit(t *testing.T) {
	cases := map[string]bool{
		"/health":              false,
		"/api/v1/health/live":  false,
		"/api/v1/health/ready": false,
		"/api/v1/users/me":     true,
		"/api/v1/auth/login":   true,
		"/auth/login":          false,
		"/metrics":             false,
	}
	for path, want := range cases {
		if got := shouldRateLimit(path); got != want {
			t.Fatalf("shouldRateLimit(%q)=%v, want %v", path, got, want)
		}
	}
}

type failingLimiter struct{}

func (failingLimiter) Hit(context.Context, string, int, time.Duration) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("backend down")
}

func TestRateLimitFailsOpenWithoutHeaders(t *testing.T) {
	codec, err := auth.NewTokenCodec("secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	a := &API{
		cfg:   config.Config{RateLimitPrefix: "rl:", RateLimitKeyStrategy: config.KeyStrategyIP},
		codec: codec,
		gate:  ratelimit.NewGate(failingLimiter{}, 1, time.Minute, nil, nil),
	}
	var served int
	handler := a.rateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { served++ }))
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
		if rr.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatalf("fail-open response carried rate-limit headers")
		}
	}
	if served != 3 {
		t.Fatalf("served=%d, want 3", served)
	}
}

type recordingLimiter struct{ keys []string }

func (l *recordingLimiter) Hit(_ context.Context, key string, limit int, _ time.Duration) (ratelimit.Result, error) {
	l.keys = append(l.keys, key)
	return ratelimit.Result{Allowed: true, Limit: limit, Remaining: limit - 1, Reset: 60}, nil
}

func TestRateLimitKeys(t *testing.T) {
	codec, err := auth.NewTokenCodec("secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	token, err := codec.Issue("user-123", time.Minute, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	rec := &recordingLimiter{}
	a := &API{
		cfg:   config.Config{RateLimitPrefix: "rl:", RateLimitKeyStrategy: config.KeyStrategyUserOrIP},
		codec: codec,
		gate:  ratelimit.NewGate(rec, 5, time.Minute, nil, nil),
	}
	handler := a.rateLimit(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.RemoteAddr = "10.0.0.9:1000"
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.RemoteAddr = "10.0.0.9:1000"
	req.Header.Set("Authorization", "Bearer forged")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	a.cfg.RateLimitKeyStrategy = config.KeyStrategyIP
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.RemoteAddr = "10.0.0.9:1000"
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{
		"rl:user_or_ip:user-123:global",
		"rl:user_or_ip:10.0.0.9:global",
		"rl:ip:10.0.0.9:global",
	}
	if strings.Join(rec.keys, ",") != strings.Join(want, ",") {
		t.Fatalf("keys=%v, want %v", rec.keys, want)
	}
}

func TestMaxBodyBytesRejectsLargeLogins(t *testing.T) {
	c := newTestAPI(t, map[string]string{"MAX_BODY_BYTES": "64"})
	body := "username=a%40example.com&password=" + strings.Repeat("x", 128)
	req, _ := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	expectError(t, c.do(req, nil), http.StatusRequestEntityTooLarge, codeHTTPError)
}
