package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/refdata/refdata/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	h := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(func(c echo.Context) error { return nil })(c)

	if c.Get("request_id") != "my-custom-id" {
		t.Errorf("expected my-custom-id, got %v", c.Get("request_id"))
	}
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LogsStatusOfHTTPErrors(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/countries/x", nil), httptest.NewRecorder())
	c.Set("request_id", "rid-1")

	_ = Logger(zerolog.New(&buf))(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "country x: not found")
	})(c)

	out := buf.String()
	if !strings.Contains(out, `"status":404`) || !strings.Contains(out, `"request_id":"rid-1"`) {
		t.Errorf("unexpected log line: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected 4xx to log at warn, got: %s", out)
	}
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("nil map")
	})(c)

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("expected panic to be logged, got %s", buf.String())
	}
}

func TestRecovery_LogsRequestContext(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/quote", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "alice", []string{auth.RoleAdmin}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/pricing/quote")
	c.Set("tenant_id", "acme")
	c.Set("request_id", "rid-7")

	_ = Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic(errors.New("boom"))
	})(c)

	out := buf.String()
	for _, want := range []string{`"tenant":"acme"`, `"user":"alice"`, `"method":"POST"`, `"route":"/api/v1/pricing/quote"`, `"request_id":"rid-7"`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	_ = Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic(http.ErrAbortHandler)
	})(c)
	t.Error("expected the abort panic to propagate")
}

func TestRateLimit_RejectsBurstOverflow(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		err := h(e.NewContext(req, rec))
		if he, ok := err.(*echo.HTTPError); ok {
			codes = append(codes, he.Code)
			if rec.Header().Get("Retry-After") == "" {
				t.Error("expected Retry-After header")
			}
			continue
		}
		codes = append(codes, rec.Code)
	}

	want := []int{200, 200, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, codes)
		}
	}
}

func TestRateLimit_SeparateClients(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip
		if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
			t.Errorf("client %s should not be throttled: %v", ip, err)
		}
	}
}

func TestLimiterStore_EvictsIdleClients(t *testing.T) {
	now := time.Now()
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	s.now = func() time.Time { return now }

	s.get("a")
	now = now.Add(2 * time.Minute)
	s.get("b")

	if _, ok := s.clients["a"]; ok {
		t.Error("expected idle client to be evicted")
	}
	if len(s.clients) != 1 {
		t.Errorf("expected 1 client, got %d", len(s.clients))
	}
}

func TestRequestTimeout_ReportsDeadline(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := RequestTimeout(10 * time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})(c)

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}
}

func TestRequestTimeout_FastHandler(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("unexpected result %v / %d", err, rec.Code)
	}
}

func TestBodyLimit_RejectsLargeContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 2048)))
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit("1K")(func(c echo.Context) error {
		t.Error("handler must not run")
		return nil
	})(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int64{
		"":      1 << 20,
		"512":   512,
		"4K":    4 << 10,
		"2MB":   2 << 20,
		"1g":    1 << 30,
		"bogus": 1 << 20,
	}
	for in, want := range tests {
		if got := parseLimit(in); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	_ = SecurityHeaders()(func(c echo.Context) error { return nil })(c)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("expected %s header", h)
		}
	}
}

func TestAudit_RecordsWrites(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/banks/1234", nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "alice")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"referential_editor"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req.WithContext(ctx), rec)

	var got []AuditEntry
	rc := AuditRecorderFunc(func(_ context.Context, entry AuditEntry) error {
		got = append(got, entry)
		return nil
	})
	_ = Audit(zerolog.Nop(), rc)(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(c)

	if len(got) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(got))
	}
	entry := got[0]
	if entry.Resource != "banks" || entry.ResourceID != "1234" || entry.Action != "delete" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.UserID != "alice" || entry.StatusCode != http.StatusNoContent {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestAudit_SkipsReads(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/banks", nil), httptest.NewRecorder())

	called := false
	rc := AuditRecorderFunc(func(context.Context, AuditEntry) error { called = true; return nil })
	_ = Audit(zerolog.Nop(), rc)(func(c echo.Context) error { return nil })(c)

	if called {
		t.Error("reads must not be audited")
	}
}

func TestMethodToAction(t *testing.T) {
	if got := methodToAction(http.MethodPost, "pricing"); got != "quote" {
		t.Errorf("expected quote, got %s", got)
	}
	if got := methodToAction(http.MethodPatch, "tiers"); got != "update" {
		t.Errorf("expected update, got %s", got)
	}
}
