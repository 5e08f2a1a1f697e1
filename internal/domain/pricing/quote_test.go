package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/internal/platform/cache"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/events"
)

type stubLoader struct {
	mu    sync.Mutex
	snap  *Snapshot
	err   error
	calls int
}

func (l *stubLoader) Load(context.Context, uuid.UUID, uuid.UUID) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.snap, l.err
}

type recorder struct {
	quotes []string
	hits   []bool
}

func (r *recorder) ObserveQuote(outcome string) { r.quotes = append(r.quotes, outcome) }

func (r *recorder) ObserveCache(_ string, hit bool) { r.hits = append(r.hits, hit) }

func TestQuoteService_DefaultsToNow(t *testing.T) {
	w := newWorld()
	svc := NewQuoteService(&stubLoader{snap: w.snap})
	svc.now = func() time.Time { return day("2024-07-14") }

	req := w.request("100")
	req.At = time.Time{}
	q, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, day("2024-07-14"), q.ResolvedAt)
}

func TestQuoteService_CachesSnapshotPerGeneration(t *testing.T) {
	w := newWorld()
	loader := &stubLoader{snap: w.snap}
	store := cache.NewMemory()
	obs := &recorder{}
	svc := NewQuoteService(loader, WithSnapshotCache(store, time.Minute), WithObserver(obs))
	ctx := db.WithTenant(context.Background(), "acme")

	for i := 0; i < 3; i++ {
		_, err := svc.Quote(ctx, w.request("100"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, []bool{false, true, true}, obs.hits)
	assert.Equal(t, []string{"ok", "ok", "ok"}, obs.quotes)

	listen := svc.ChangeListener()

	listen(ctx, events.Change{Entity: "partner", Tenant: "acme"})
	_, err := svc.Quote(ctx, w.request("100"))
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls, "non pricing change keeps the snapshot")

	listen(ctx, events.Change{Entity: "tier", Tenant: "other"})
	_, err = svc.Quote(ctx, w.request("100"))
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls, "another tenant's change keeps the snapshot")

	listen(ctx, events.Change{Entity: "tier", Tenant: "acme"})
	_, err = svc.Quote(ctx, w.request("100"))
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)

	require.NoError(t, svc.Invalidate(ctx, "acme"))
	_, err = svc.Quote(ctx, w.request("100"))
	require.NoError(t, err)
	assert.Equal(t, 3, loader.calls)
}

func TestQuoteService_InvalidateIgnoresTenantCase(t *testing.T) {
	w := newWorld()
	loader := &stubLoader{snap: w.snap}
	svc := NewQuoteService(loader, WithSnapshotCache(cache.NewMemory(), time.Minute))
	lower := db.WithTenant(context.Background(), "acme")

	_, err := svc.Quote(lower, w.request("100"))
	require.NoError(t, err)

	// a write made under X-Tenant-ID: ACME reaches the same snapshots
	svc.ChangeListener()(db.WithTenant(context.Background(), "ACME"), events.Change{Entity: "tier", Tenant: "ACME"})
	_, err = svc.Quote(lower, w.request("100"))
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)

	require.NoError(t, svc.Invalidate(context.Background(), "Acme"))
	_, err = svc.Quote(db.WithTenant(context.Background(), "ACME"), w.request("100"))
	require.NoError(t, err)
	assert.Equal(t, 3, loader.calls)
}

func TestQuoteService_InvalidateWithoutCache(t *testing.T) {
	svc := NewQuoteService(&stubLoader{})
	assert.NoError(t, svc.Invalidate(context.Background(), "acme"))
}

func TestQuoteService_Outcomes(t *testing.T) {
	w := newWorld()
	w.snap.Contracts = nil
	obs := &recorder{}
	svc := NewQuoteService(&stubLoader{snap: w.snap}, WithObserver(obs))

	_, err := svc.Quote(context.Background(), w.request("100"))
	assert.ErrorIs(t, err, ErrNoContract)

	_, err = svc.Quote(context.Background(), w.request("0"))
	assert.Error(t, err)

	failing := NewQuoteService(&stubLoader{err: errors.New("connection reset")}, WithObserver(obs))
	_, err = failing.Quote(context.Background(), w.request("100"))
	assert.Error(t, err)

	assert.Equal(t, []string{"no_contract", "invalid", "error"}, obs.quotes)
}

func newQuoteEcho(quotes *QuoteService, roles ...string) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "tester", roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(NewService(newMemRepos().Repos, Deps{}), quotes).RegisterRoutes(api)
	return e
}

func postQuote(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/quote", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Quote(t *testing.T) {
	w := newWorld()
	e := newQuoteEcho(NewQuoteService(&stubLoader{snap: w.snap}), auth.RoleReader)

	body := `{"partner_id":"` + w.partner.String() + `","corridor_id":"` + w.snap.Corridor.ID.String() +
		`","amount":"1000","at":"2024-06-01T00:00:00Z"}`
	rec := postQuote(e, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var q Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.True(t, q.Fee.Equal(dec("17")))
	assert.True(t, q.TotalCharge.Equal(dec("1020.4")))
	assert.Equal(t, "EUR", q.Currency)
}

func TestHandler_QuoteErrors(t *testing.T) {
	w := newWorld()
	e := newQuoteEcho(NewQuoteService(&stubLoader{snap: w.snap}), auth.RoleReader)
	corridor := w.snap.Corridor.ID.String()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"amount":`, http.StatusBadRequest},
		{"missing partner", `{"corridor_id":"` + corridor + `","amount":10}`, http.StatusBadRequest},
		{"zero amount", `{"partner_id":"` + w.partner.String() + `","corridor_id":"` + corridor + `","amount":0}`, http.StatusBadRequest},
		{"no contract", `{"partner_id":"` + uuid.NewString() + `","corridor_id":"` + corridor + `","amount":10}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postQuote(e, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_QuoteRequiresRole(t *testing.T) {
	w := newWorld()
	e := newQuoteEcho(NewQuoteService(&stubLoader{snap: w.snap}))
	rec := postQuote(e, `{}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
