package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/refdata/refdata/internal/config"
	"github.com/refdata/refdata/internal/domain/geography"
	"github.com/refdata/refdata/internal/domain/network"
	"github.com/refdata/refdata/internal/domain/parameter"
	"github.com/refdata/refdata/internal/domain/pricing"
	"github.com/refdata/refdata/internal/platform/cache"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/events"
	"github.com/refdata/refdata/internal/seed"
	"github.com/refdata/refdata/migrations"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:          cfg.DBMaxConns,
		MinConns:          cfg.DBMinConns,
		MaxConnLifetime:   time.Hour,
		HealthCheckPeriod: 30 * time.Second,
	})
}

// migrationFiles prefers an on-disk migrations directory so operators can
// ship SQL without rebuilding; the embedded set is the fallback.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.Files
}

// modules holds the referential services sharing one pool.
type modules struct {
	parameters *parameter.Service
	geography  *geography.Service
	network    *network.Service
	pricing    *pricing.Service
}

// newModules wires the module services. Cross-module references are
// checked against the repositories, which keeps the construction order
// free of cycles.
func newModules(pool *pgxpool.Pool, opts ...crud.Option) *modules {
	paramRepos := parameter.NewRepos(pool)
	geoRepos := geography.NewRepos(pool)
	netRepos := network.NewRepos(pool)

	m := &modules{}
	m.parameters = parameter.NewService(paramRepos, geoRepos.Countries, opts...)
	m.geography = geography.NewService(geoRepos, paramRepos.Currencies, opts...)
	m.network = network.NewService(netRepos, network.Deps{
		Countries:  geoRepos.Countries,
		Cities:     geoRepos.Cities,
		Currencies: paramRepos.Currencies,
		Sectors:    m.geography,
		Params:     m.parameters,
	}, opts...)
	m.pricing = pricing.NewService(pricing.NewRepos(pool), pricing.Deps{
		Countries:  geoRepos.Countries,
		Currencies: paramRepos.Currencies,
		Partners:   netRepos.Partners,
		Params:     m.parameters,
	}, opts...)
	return m
}

func (m *modules) seedServices() seed.Services {
	return seed.Services{
		Parameters: m.parameters,
		Geography:  m.geography,
		Network:    m.network,
		Pricing:    m.pricing,
	}
}

// infra is the cache and change bus shared by the services.
type infra struct {
	cache   cache.Cache
	bus     *events.Bus
	closers []func() error
}

// newInfra picks Redis and Kafka when they are configured and falls back
// to the in-memory cache and the log publisher otherwise. The memory
// cache is swept until ctx is cancelled.
func newInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infra, error) {
	in := &infra{}

	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		in.cache = r
		in.closers = append(in.closers, r.Close)
		logger.Info().Msg("using redis cache")
	} else {
		m := cache.NewMemory()
		m.StartCleanup(ctx, time.Minute)
		in.cache = m
	}

	var pub events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing changes to kafka")
	} else {
		pub = events.NewLogPublisher(logger)
	}
	in.closers = append(in.closers, pub.Close)
	in.bus = events.NewBus(pub, logger, db.TenantFromContext)
	return in, nil
}

func (in *infra) Close(logger zerolog.Logger) {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("close")
		}
	}
}
