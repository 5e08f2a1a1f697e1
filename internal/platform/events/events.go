// Package events carries change notifications for referential entities to
// in-process listeners and to an external broker.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Action string

const (
	Created Action = "created"
	Updated Action = "updated"
	Deleted Action = "deleted"
)

// Change describes one committed write.
type Change struct {
	ID         uuid.UUID `json:"id"`
	Entity     string    `json:"entity"`
	EntityID   uuid.UUID `json:"entity_id"`
	Code       string    `json:"code"`
	Action     Action    `json:"action"`
	VersionID  int       `json:"version_id"`
	Actor      string    `json:"actor,omitempty"`
	Tenant     string    `json:"tenant,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher ships changes outside the process.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
	Close() error
}

// Notifier is what services depend on to announce their writes.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

// Listener reacts to a change in-process, e.g. to invalidate caches.
type Listener func(ctx context.Context, c Change)

// Bus delivers each change to its listeners, then to the publisher.
// Publishing failures are logged and never fail the originating write.
type Bus struct {
	pub       Publisher
	logger    zerolog.Logger
	tenant    func(ctx context.Context) string
	mu        sync.RWMutex
	listeners []Listener
}

func NewBus(pub Publisher, logger zerolog.Logger, tenant func(ctx context.Context) string) *Bus {
	return &Bus{pub: pub, logger: logger, tenant: tenant}
}

func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

func (b *Bus) Notify(ctx context.Context, c Change) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now().UTC()
	}
	if c.Tenant == "" && b.tenant != nil {
		c.Tenant = b.tenant(ctx)
	}

	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, c)
	}

	if b.pub == nil {
		return
	}
	if err := b.pub.Publish(ctx, c); err != nil {
		b.logger.Error().Err(err).
			Str("entity", c.Entity).
			Str("entity_id", c.EntityID.String()).
			Str("action", string(c.Action)).
			Msg("publish change event")
	}
}

// LogPublisher writes changes to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, c Change) error {
	p.logger.Info().
		Str("event_id", c.ID.String()).
		Str("entity", c.Entity).
		Str("entity_id", c.EntityID.String()).
		Str("code", c.Code).
		Str("action", string(c.Action)).
		Int("version_id", c.VersionID).
		Str("actor", c.Actor).
		Str("tenant", c.Tenant).
		Msg("referential change")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
