package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/revenue-engine/internal/analytics"
	"github.com/angelmondragon/revenue-engine/internal/currency"
	"github.com/angelmondragon/revenue-engine/internal/providers"
	"github.com/angelmondragon/revenue-engine/internal/providers/paddle"
	"github.com/angelmondragon/revenue-engine/internal/providers/stripe"
	"github.com/angelmondragon/revenue-engine/internal/revenue/store"
	"github.com/angelmondragon/revenue-engine/internal/settings"
	revsync "github.com/angelmondragon/revenue-engine/internal/sync"
	"github.com/angelmondragon/revenue-engine/pkg/bigquery"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/db"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/metrics"
	"github.com/angelmondragon/revenue-engine/pkg/migrate"
	"github.com/angelmondragon/revenue-engine/pkg/redis"
	"github.com/angelmondragon/revenue-engine/pkg/security"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Params carries the process-level dependencies. DB and HTTPClient are
// optional; when nil they are built from Config.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	Registerer prometheus.Registerer
	DB         *db.Client
	HTTPClient *http.Client
}

// Engine is the assembled revenue engine shared by the worker and the CLI.
type Engine struct {
	Settings     *settings.Service
	Orchestrator *revsync.Orchestrator
	Analytics    *analytics.Service
	Registry     *providers.Registry

	db      *db.Client
	redis   *redis.Client
	bq      *bigquery.Client
	closers []func() error
}

// New wires every component. On error anything already opened is closed.
func New(ctx context.Context, p Params) (_ *Engine, err error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	cfg, logg := p.Config, p.Logger

	e := &Engine{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, e.Close())
		}
	}()

	e.db = p.DB
	if e.db == nil {
		e.db, err = db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		e.closers = append(e.closers, e.db.Close)
		if err = migrate.MaybeRunDev(ctx, cfg, logg, e.db); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	if cfg.Redis.Enabled() {
		e.redis, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		e.closers = append(e.closers, e.redis.Close)
	} else {
		logg.Warn(ctx, "redis not configured; rate cache and sync lock are process-local")
	}

	cipher, err := security.NewAEADCipher(cfg.Credentials.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}

	sink, reader, err := e.openStore(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	converter, err := e.newConverter(cfg, logg, p.Registerer, p.HTTPClient)
	if err != nil {
		return nil, err
	}

	ingestor, err := providers.NewIngestor(sink, converter, providers.WithBatchSize(cfg.BigQuery.InsertBatchSize))
	if err != nil {
		return nil, fmt.Errorf("ingestor: %w", err)
	}
	stripeAdapter, err := stripe.New(cfg.Stripe, ingestor, logg, p.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("stripe adapter: %w", err)
	}
	paddleAdapter, err := paddle.New(cfg.Paddle, ingestor, logg, p.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("paddle adapter: %w", err)
	}
	e.Registry = providers.NewRegistry(stripeAdapter, paddleAdapter)

	e.Settings, err = settings.NewService(settings.NewRepository(e.db.DB()), cipher, e.Registry, logg)
	if err != nil {
		return nil, fmt.Errorf("settings service: %w", err)
	}

	opts := []revsync.Option{
		revsync.WithLogger(logg),
		revsync.WithMetrics(metrics.NewSyncMetrics(p.Registerer)),
	}
	if e.redis != nil {
		opts = append(opts, revsync.WithLocker(e.redis))
	}
	e.Orchestrator, err = revsync.New(revsync.Config{
		Overlap: cfg.Sync.OverlapWindow,
		LockTTL: cfg.Sync.LockTTL,
	}, e.Settings, e.Registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("sync orchestrator: %w", err)
	}

	var lookup analytics.AttributionLookup = analytics.NoAttribution{}
	if e.bq != nil && cfg.BigQuery.SessionsTable != "" {
		lookup, err = analytics.NewSessionLookup(e.bq, cfg.BigQuery.SessionsTable)
		if err != nil {
			return nil, fmt.Errorf("sessions lookup: %w", err)
		}
	}
	e.Analytics, err = analytics.NewService(reader, lookup, logg)
	if err != nil {
		return nil, fmt.Errorf("analytics service: %w", err)
	}

	return e, nil
}

func (e *Engine) openStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (store.Sink, store.Reader, error) {
	if !cfg.Store.UsesBigQuery() {
		logg.Warn(ctx, "using in-memory transaction store")
		mem := store.NewMemory()
		return mem, mem, nil
	}

	var err error
	e.bq, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("bigquery: %w", err)
	}
	e.closers = append(e.closers, e.bq.Close)

	writer, err := store.NewBigQueryWriter(e.bq, store.WriterConfig{Table: cfg.BigQuery.TransactionsTable})
	if err != nil {
		return nil, nil, fmt.Errorf("transactions writer: %w", err)
	}
	reader, err := store.NewBigQueryReader(e.bq, cfg.BigQuery.TransactionsTable)
	if err != nil {
		return nil, nil, fmt.Errorf("transactions reader: %w", err)
	}
	return writer, reader, nil
}

func (e *Engine) newConverter(cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer, client *http.Client) (*currency.Converter, error) {
	source, err := currency.NewHTTPSource(cfg.Currency.RatesURL, cfg.Currency.FetchTimeout, client)
	if err != nil {
		return nil, fmt.Errorf("rates source: %w", err)
	}
	opts := []currency.Option{
		currency.WithTTL(cfg.Currency.TTL),
		currency.WithRetryBackoff(cfg.Currency.RetryBackoff),
		currency.WithLogger(logg),
		currency.WithMetrics(metrics.NewRatesMetrics(reg)),
	}
	if e.redis != nil {
		opts = append(opts, currency.WithCache(currency.NewRedisCache(e.redis, cfg.Currency.Pivot)))
	}
	return currency.NewConverter(source, opts...), nil
}

// RateCounter returns the shared request counter, or nil when Redis is off.
func (e *Engine) RateCounter() redis.Counter {
	if e.redis == nil {
		return nil
	}
	return e.redis
}

// Ping checks the backing services that were opened.
func (e *Engine) Ping(ctx context.Context) error {
	var err error
	if e.db != nil {
		err = multierr.Append(err, e.db.Ping(ctx))
	}
	if e.redis != nil {
		err = multierr.Append(err, e.redis.Ping(ctx))
	}
	if e.bq != nil {
		err = multierr.Append(err, e.bq.Ping(ctx))
	}
	return err
}

// Close releases resources in reverse order of opening.
func (e *Engine) Close() error {
	var err error
	for i := len(e.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, e.closers[i]())
	}
	e.closers = nil
	return err
}
