package pricing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/cache"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/events"
)

// Observer receives quote and snapshot cache outcomes.
type Observer interface {
	ObserveQuote(outcome string)
	ObserveCache(name string, hit bool)
}

// snapshotEntities are the entities whose changes make cached snapshots
// stale.
var snapshotEntities = map[string]bool{
	"corridor":     true,
	"contract":     true,
	"pricing rule": true,
	"tier":         true,
	"tax rule":     true,
	"currency":     true,
}

type QuoteService struct {
	loader   SnapshotLoader
	cache    cache.Cache
	ttl      time.Duration
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

type QuoteOption func(*QuoteService)

// WithSnapshotCache keeps loaded snapshots in c for ttl. Entries are keyed
// by a per-tenant generation that ChangeListener bumps.
func WithSnapshotCache(c cache.Cache, ttl time.Duration) QuoteOption {
	return func(s *QuoteService) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithObserver(o Observer) QuoteOption {
	return func(s *QuoteService) { s.observer = o }
}

func WithLogger(l zerolog.Logger) QuoteOption {
	return func(s *QuoteService) { s.logger = l }
}

func NewQuoteService(loader SnapshotLoader, opts ...QuoteOption) *QuoteService {
	s := &QuoteService{
		loader: loader,
		logger: zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Quote prices req. A zero req.At means now.
func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.At.IsZero() {
		req.At = s.now()
	}
	req.At = req.At.UTC()

	q, err := s.quote(ctx, req)
	s.observe(outcome(err))
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuoteService) quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if !req.Amount.IsPositive() {
		return nil, apierr.Invalid("amount must be greater than zero")
	}
	snap, err := s.snapshot(ctx, req)
	if err != nil {
		return nil, err
	}
	return Resolve(snap, req)
}

func (s *QuoteService) snapshot(ctx context.Context, req QuoteRequest) (*Snapshot, error) {
	load := func(ctx context.Context) (*Snapshot, error) {
		return s.loader.Load(ctx, req.PartnerID, req.CorridorID)
	}
	if s.cache == nil {
		return load(ctx)
	}

	tenant := db.TenantFromContext(ctx)
	gen, err := cache.Generation(ctx, s.cache, generationKey(tenant))
	if err != nil {
		s.logger.Warn().Err(err).Str("tenant", tenant).Msg("read pricing generation")
		return load(ctx)
	}
	key := cache.Key(tenant, "pricing", strconv.FormatInt(gen, 10), req.PartnerID.String(), req.CorridorID.String())
	snap, hit, err := cache.GetOrLoad(ctx, s.cache, key, s.ttl, load)
	if err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.ObserveCache("pricing_snapshot", hit)
	}
	return snap, nil
}

// ChangeListener invalidates the tenant's cached snapshots when a pricing
// input changes.
func (s *QuoteService) ChangeListener() events.Listener {
	return func(ctx context.Context, c events.Change) {
		if !snapshotEntities[c.Entity] {
			return
		}
		if err := s.Invalidate(ctx, c.Tenant); err != nil {
			s.logger.Error().Err(err).
				Str("tenant", c.Tenant).
				Str("entity", c.Entity).
				Msg("bump pricing generation")
		}
	}
}

// Invalidate drops every cached snapshot of tenant. Writers that bypass
// the event bus, such as the seeder, call it once they have committed.
func (s *QuoteService) Invalidate(ctx context.Context, tenant string) error {
	if s.cache == nil {
		return nil
	}
	_, err := cache.Bump(ctx, s.cache, generationKey(tenant))
	return err
}

func (s *QuoteService) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveQuote(result)
	}
}

func generationKey(tenant string) string {
	return cache.Key(db.NormalizeTenantID(tenant), "pricing", "generation")
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoContract):
		return "no_contract"
	case errors.Is(err, ErrNoTier):
		return "no_tier"
	case errors.Is(err, ErrCorridorInactive):
		return "corridor_inactive"
	case errors.Is(err, apierr.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
