package currency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL          = 24 * time.Hour
	defaultRetryBackoff = time.Minute
)

var (
	// ErrRatesUnavailable means no rate table could be obtained at all.
	ErrRatesUnavailable = errors.New("exchange rates unavailable")
	// ErrRateNotFound means the table has no quote for one of the currencies.
	ErrRateNotFound = errors.New("exchange rate not found")
)

// Converter converts amounts between ISO 4217 currencies using a cached rate
// table. The table is the only state shared across tenants.
type Converter struct {
	source       Source
	cache        Cache
	ttl          time.Duration
	retryBackoff time.Duration
	logg         *logger.Logger
	metrics      *metrics.RatesMetrics
	now          func() time.Time

	refreshes singleflight.Group

	mu         sync.RWMutex
	table      *RateTable
	retryAfter time.Time
	lastErr    error
}

// Option customizes a Converter.
type Option func(*Converter)

// WithCache adds a shared second-level cache.
func WithCache(cache Cache) Option {
	return func(c *Converter) { c.cache = cache }
}

// WithTTL overrides the 24h table lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Converter) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRetryBackoff sets how long a failed refresh suppresses further fetches.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(c *Converter) {
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithLogger sets the logger used for degraded-conversion warnings.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Converter) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// WithMetrics records refreshes and fallbacks.
func WithMetrics(m *metrics.RatesMetrics) Option {
	return func(c *Converter) { c.metrics = m }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) {
		if now != nil {
			c.now = now
		}
	}
}

// NewConverter builds a converter backed by source.
func NewConverter(source Source, opts ...Option) *Converter {
	c := &Converter{
		source:       source,
		ttl:          defaultTTL,
		retryBackoff: defaultRetryBackoff,
		logg:         logger.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert never fails: when no usable rate exists it logs a warning and
// returns amount unchanged.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal {
	converted, err := c.ConvertStrict(ctx, amount, from, to)
	if err == nil {
		return converted
	}

	c.metrics.IncFallback("identity")
	warnCtx := c.logg.WithFields(ctx, map[string]any{
		"from":   NormalizeCode(from),
		"to":     NormalizeCode(to),
		"reason": err.Error(),
	})
	c.logg.Warn(warnCtx, "currency conversion degraded to 1:1")
	return amount
}

// ConvertStrict is Convert without the identity fallback. It returns
// ErrRatesUnavailable or ErrRateNotFound instead.
func (c *Converter) ConvertStrict(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = NormalizeCode(from), NormalizeCode(to)
	if from == to {
		return amount, nil
	}

	table, err := c.rates(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	converted, ok := table.convert(amount, from, to)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s->%s", ErrRateNotFound, from, to)
	}
	return converted, nil
}

// rates returns a fresh table, refreshing synchronously on miss or expiry.
// A stale table is preferred to none when the refresh fails. After a failed
// refresh no fetch is attempted until the retry backoff has passed.
func (c *Converter) rates(ctx context.Context) (*RateTable, error) {
	now := c.now()

	c.mu.RLock()
	current, retryAfter, lastErr := c.table, c.retryAfter, c.lastErr
	c.mu.RUnlock()
	if !current.Expired(now, c.ttl) {
		return current, nil
	}
	if now.Before(retryAfter) {
		return c.degraded(current, lastErr)
	}

	v, err, _ := c.refreshes.Do("rates", func() (any, error) {
		fresh, stale, err := c.refresh(ctx, now)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.retryAfter = now.Add(c.retryBackoff)
			c.lastErr = err
			if c.table == nil {
				c.table = stale
			}
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "rates refresh failed")
			return nil, err
		}
		c.table = fresh
		c.retryAfter = time.Time{}
		c.lastErr = nil
		return fresh, nil
	})
	if err == nil {
		return v.(*RateTable), nil
	}

	c.mu.RLock()
	current = c.table
	c.mu.RUnlock()
	return c.degraded(current, err)
}

// degraded serves an expired table when there is one.
func (c *Converter) degraded(current *RateTable, err error) (*RateTable, error) {
	if current != nil {
		c.metrics.IncFallback("stale")
		return current, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrRatesUnavailable, err)
}

// refresh consults the shared cache, then the remote source. An expired
// cached table is handed back as stale for use when the remote fetch fails.
func (c *Converter) refresh(ctx context.Context, now time.Time) (fresh, stale *RateTable, err error) {
	if c.cache != nil {
		cached, cacheErr := c.cache.Load(ctx)
		switch {
		case cacheErr != nil:
			c.metrics.IncRefresh("cache", "error")
			c.logg.Warn(c.logg.WithField(ctx, "error", cacheErr.Error()), "rates cache read failed")
		case cached != nil && !cached.Expired(now, c.ttl):
			c.metrics.IncRefresh("cache", "ok")
			return cached, nil, nil
		default:
			stale = cached
		}
	}

	if c.source == nil {
		return nil, stale, errors.New("no rates source configured")
	}
	fresh, err = c.source.Fetch(ctx)
	if err != nil {
		c.metrics.IncRefresh("remote", "error")
		return nil, stale, err
	}
	c.metrics.IncRefresh("remote", "ok")

	if c.cache != nil {
		if storeErr := c.cache.Store(ctx, fresh, c.ttl); storeErr != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", storeErr.Error()), "rates cache write failed")
		}
	}
	return fresh, nil, nil
}
