package crud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/internal/platform/cache"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/events"
	"github.com/refdata/refdata/internal/platform/patch"
	"github.com/refdata/refdata/internal/platform/record"
	"github.com/refdata/refdata/internal/platform/validate"
	"github.com/refdata/refdata/pkg/pagination"
)

// Rules holds the entity specific hooks run on every write.
type Rules[T record.Entity] struct {
	// Normalize canonicalises a payload before it is validated.
	Normalize func(e T)
	// Validate checks field combinations the struct tags cannot express.
	Validate func(e T) error
	// References checks that every foreign key points at a live row.
	References func(ctx context.Context, e T) error
	// Changing vets an update against the stored row. It runs after the
	// payload passed check.
	Changing func(ctx context.Context, current, next T) error
	// Deleting vets a soft delete once no table references the row.
	Deleting func(ctx context.Context, current T) error
}

type options struct {
	events events.Notifier
	cache  cache.Cache
	ttl    time.Duration
}

type Option func(*options)

// WithNotifier announces every committed write to n.
func WithNotifier(n events.Notifier) Option {
	return func(o *options) { o.events = n }
}

// WithCache serves get-by-id from c.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		o.ttl = ttl
	}
}

type Service[T record.Entity] struct {
	table *Table[T]
	repo  Repository[T]
	rules Rules[T]
	opts  options
}

func NewService[T record.Entity](t *Table[T], repo Repository[T], rules Rules[T], opts ...Option) *Service[T] {
	s := &Service[T]{table: t, repo: repo, rules: rules}
	for _, o := range opts {
		o(&s.opts)
	}
	return s
}

func (s *Service[T]) Entity() string { return s.table.Entity }

// New returns an empty payload for decoding requests.
func (s *Service[T]) New() T { return s.table.New() }

func (s *Service[T]) Create(ctx context.Context, e T) error {
	e.Base().PrepareCreate(auth.UserIDFromContext(ctx))
	if err := s.check(ctx, e); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return err
	}
	s.notify(ctx, e, events.Created)
	return nil
}

func (s *Service[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	if s.opts.cache == nil {
		return s.repo.GetByID(ctx, id)
	}
	v, _, err := cache.GetOrLoad(ctx, s.opts.cache, s.cacheKey(ctx, id), s.opts.ttl, func(ctx context.Context) (T, error) {
		return s.repo.GetByID(ctx, id)
	})
	return v, err
}

// GetByCode finds the live row carrying code. Tables whose codes are unique
// only within a scope need the scope in filters.
func (s *Service[T]) GetByCode(ctx context.Context, code string, filters map[string]string) (T, error) {
	var zero T
	f := make(map[string]string, len(filters)+1)
	for k, v := range filters {
		f[k] = v
	}
	f["code"] = record.NormalizeCode(code)

	items, total, err := s.repo.Search(ctx, f, pagination.Params{Limit: 2})
	if err != nil {
		return zero, err
	}
	switch {
	case total == 0 || len(items) == 0:
		return zero, apierr.NotFound(s.table.Entity, f["code"])
	case total > 1:
		return zero, apierr.Invalid("%s code %s is ambiguous, add a scope filter", s.table.Entity, f["code"])
	}
	return items[0], nil
}

func (s *Service[T]) Search(ctx context.Context, filters map[string]string, p pagination.Params) ([]T, int, error) {
	return s.repo.Search(ctx, filters, p)
}

func (s *Service[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// Update replaces the row id with e. A non-zero e.VersionID must match the
// stored version.
func (s *Service[T]) Update(ctx context.Context, id uuid.UUID, e T) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.update(ctx, current, e)
}

// Patch applies a merge patch or JSON patch document to the row id.
func (s *Service[T]) Patch(ctx context.Context, id uuid.UUID, contentType string, body []byte) (T, error) {
	var zero T
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return zero, err
	}
	next := s.table.New()
	if err := patch.ApplyInto(current, next, contentType, body); err != nil {
		return zero, err
	}
	if err := s.update(ctx, current, next); err != nil {
		return zero, err
	}
	return next, nil
}

func (s *Service[T]) update(ctx context.Context, current, e T) error {
	cur, m := current.Base(), e.Base()
	if m.VersionID != 0 && m.VersionID != cur.VersionID {
		return fmt.Errorf("%s %s: expected version %d, stored %d: %w",
			s.table.Entity, cur.ID, m.VersionID, cur.VersionID, apierr.ErrConflict)
	}
	m.PrepareUpdate(cur, auth.UserIDFromContext(ctx))
	if err := s.check(ctx, e); err != nil {
		return err
	}
	if s.rules.Changing != nil {
		if err := s.rules.Changing(ctx, current, e); err != nil {
			return err
		}
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return err
	}
	s.invalidate(ctx, m.ID)
	s.notify(ctx, e, events.Updated)
	return nil
}

// Delete soft-deletes the row id. version 0 skips the optimistic check.
func (s *Service[T]) Delete(ctx context.Context, id uuid.UUID, version int) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	cur := current.Base()
	if version != 0 && version != cur.VersionID {
		return fmt.Errorf("%s %s: expected version %d, stored %d: %w",
			s.table.Entity, id, version, cur.VersionID, apierr.ErrConflict)
	}

	used, err := s.repo.Referenced(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%s %s: %w", s.table.Entity, cur.Code, apierr.ErrInUse)
	}
	if s.rules.Deleting != nil {
		if err := s.rules.Deleting(ctx, current); err != nil {
			return err
		}
	}

	actor := auth.UserIDFromContext(ctx)
	if err := s.repo.Delete(ctx, id, cur.VersionID, actor); err != nil {
		return err
	}
	cur.VersionID++
	cur.Enabled = false
	cur.UpdatedBy = actor
	s.invalidate(ctx, id)
	s.notify(ctx, current, events.Deleted)
	return nil
}

// check runs validation, uniqueness and reference checks in that order so
// that a request fails with the most basic problem first.
func (s *Service[T]) check(ctx context.Context, e T) error {
	if s.rules.Normalize != nil {
		s.rules.Normalize(e)
	}
	if err := validate.Struct(e); err != nil {
		return err
	}
	if s.rules.Validate != nil {
		if err := s.rules.Validate(e); err != nil {
			return err
		}
	}
	key, err := s.repo.Taken(ctx, e)
	if err != nil {
		return err
	}
	if key != "" {
		return apierr.Duplicate(s.table.Entity, fmt.Sprintf("%s (%s)", e.Base().Code, key))
	}
	if s.rules.References != nil {
		return s.rules.References(ctx, e)
	}
	return nil
}

func (s *Service[T]) cacheKey(ctx context.Context, id uuid.UUID) string {
	return cache.Key(db.TenantFromContext(ctx), s.table.Name, id.String())
}

func (s *Service[T]) invalidate(ctx context.Context, id uuid.UUID) {
	if s.opts.cache != nil {
		_ = s.opts.cache.Delete(ctx, s.cacheKey(ctx, id))
	}
}

func (s *Service[T]) notify(ctx context.Context, e T, action events.Action) {
	if s.opts.events == nil {
		return
	}
	m := e.Base()
	s.opts.events.Notify(ctx, events.Change{
		Entity:    s.table.Entity,
		EntityID:  m.ID,
		Code:      m.Code,
		Action:    action,
		VersionID: m.VersionID,
		Actor:     auth.UserIDFromContext(ctx),
	})
}

// RequireRef fails with ErrReference unless id is a live row of lookup.
// A nil id means the reference is optional and unset.
func RequireRef(ctx context.Context, field string, id *uuid.UUID, lookup Lookup) error {
	if id == nil {
		return nil
	}
	if *id == uuid.Nil {
		return apierr.Invalid("%s must not be the nil uuid", field)
	}
	ok, err := lookup.Exists(ctx, *id)
	if err != nil {
		return fmt.Errorf("check %s: %w", field, err)
	}
	if !ok {
		return apierr.MissingReference(field, *id)
	}
	return nil
}
