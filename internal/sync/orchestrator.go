package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/revenue-engine/internal/providers"
	"github.com/angelmondragon/revenue-engine/internal/settings"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/metrics"
	"github.com/angelmondragon/revenue-engine/pkg/redis"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	defaultOverlap = 60 * time.Second
	defaultLockTTL = 30 * time.Minute

	bookkeepingTimeout = 10 * time.Second
)

// CredentialStore is the slice of the settings service a pass needs.
type CredentialStore interface {
	Load(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*settings.Credential, error)
	MarkRunning(ctx context.Context, cred *settings.Credential) error
	AdvanceWatermark(ctx context.Context, cred *settings.Credential, watermark time.Time, count int) error
	RecordFailure(ctx context.Context, cred *settings.Credential, cause error, count int) error
}

type AdapterResolver interface {
	Get(provider enums.RevenueProvider) (providers.Adapter, error)
}

// Config tunes the orchestrator. Zero values take the defaults.
type Config struct {
	Overlap time.Duration
	LockTTL time.Duration
}

// Result describes a completed pass.
type Result struct {
	TenantID  string
	Provider  enums.RevenueProvider
	Written   int
	Since     *time.Time
	Watermark time.Time
	Duration  time.Duration
	// Shared is set when the caller joined a pass already running in this process.
	Shared bool
}

type Option func(*Orchestrator)

// WithLocker serializes passes across processes.
func WithLocker(locker redis.Locker) Option {
	return func(o *Orchestrator) { o.locker = locker }
}

func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logg = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs one incremental pass per call:
// Idle -> CredentialLoaded -> Syncing -> Completed | Failed.
type Orchestrator struct {
	credentials CredentialStore
	adapters    AdapterResolver
	locker      redis.Locker
	metrics     *metrics.SyncMetrics
	logg        *logger.Logger
	now         func() time.Time
	overlap     time.Duration
	lockTTL     time.Duration

	group singleflight.Group
}

func New(cfg Config, credentials CredentialStore, adapters AdapterResolver, opts ...Option) (*Orchestrator, error) {
	if credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if adapters == nil {
		return nil, errors.New("adapter resolver is required")
	}
	o := &Orchestrator{
		credentials: credentials,
		adapters:    adapters,
		logg:        logger.Nop(),
		now:         time.Now,
		overlap:     cfg.Overlap,
		lockTTL:     cfg.LockTTL,
	}
	if o.overlap <= 0 {
		o.overlap = defaultOverlap
	}
	if o.lockTTL <= 0 {
		o.lockTTL = defaultLockTTL
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Sync runs a pass for the tenant and provider. Concurrent callers in this
// process share the running pass.
func (o *Orchestrator) Sync(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*Result, error) {
	key := tenantID + "/" + provider.String()
	v, err, shared := o.group.Do(key, func() (any, error) {
		return o.run(ctx, tenantID, provider)
	})
	res, _ := v.(*Result)
	if res != nil && shared {
		copied := *res
		copied.Shared = true
		res = &copied
	}
	return res, err
}

// EffectiveSince moves the watermark back by the overlap window so events
// landing late at the provider are picked up again.
func EffectiveSince(watermark *time.Time, overlap time.Duration) *time.Time {
	if watermark == nil {
		return nil
	}
	since := watermark.Add(-overlap)
	return &since
}

func (o *Orchestrator) run(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*Result, error) {
	started := o.now()
	ctx = o.logg.WithSync(ctx, tenantID, provider.String())
	state := StateIdle

	fail := func(cred *settings.Credential, written int, cause error) (*Result, error) {
		o.metrics.IncFailure(provider.String(), failureReason(cause))
		o.metrics.AddRecords(provider.String(), written)
		o.metrics.ObserveDuration(provider.String(), o.now().Sub(started))
		if cred != nil {
			bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
			defer cancel()
			if err := o.credentials.RecordFailure(bookCtx, cred, cause, written); err != nil {
				o.logg.Error(ctx, "failed to record sync failure", err)
			}
		}
		o.logg.Error(o.logg.WithFields(ctx, map[string]any{"state": state.String(), "written": written}), "revenue sync failed", cause)
		return nil, &Error{TenantID: tenantID, Provider: provider.String(), State: state, Written: written, Err: cause}
	}

	cred, err := o.credentials.Load(ctx, tenantID, provider)
	if err != nil {
		return fail(nil, 0, err)
	}
	state = StateCredentialLoaded

	adapter, err := o.adapters.Get(provider)
	if err != nil {
		return fail(nil, 0, err)
	}

	release, err := o.acquire(ctx, tenantID, provider)
	if err != nil {
		return fail(nil, 0, err)
	}
	defer release()

	since := EffectiveSince(cred.Watermark, o.overlap)
	state = StateSyncing
	now := o.now()
	if err := o.credentials.MarkRunning(ctx, cred); err != nil {
		o.logg.Warn(o.logg.WithField(ctx, "error", err.Error()), "failed to mark sync running")
	}
	o.logg.Info(o.logg.WithFields(ctx, map[string]any{"state": state.String(), "since": since}), "revenue sync started")

	written, syncErr := adapter.SyncTransactions(ctx, providers.SyncRequest{
		TenantID:          tenantID,
		Secret:            cred.Secret,
		ReportingCurrency: cred.ReportingCurrency,
		Since:             since,
	})
	if syncErr != nil {
		state = StateFailed
		return fail(cred, written, syncErr)
	}

	if err := o.credentials.AdvanceWatermark(ctx, cred, now, written); err != nil {
		state = StateFailed
		if errors.Is(err, settings.ErrStalePass) {
			// The row now describes another configuration; its status is not ours to touch.
			return fail(nil, written, err)
		}
		return fail(cred, written, fmt.Errorf("advance watermark: %w", err))
	}
	state = StateCompleted

	duration := o.now().Sub(started)
	o.metrics.IncSuccess(provider.String())
	o.metrics.AddRecords(provider.String(), written)
	o.metrics.ObserveDuration(provider.String(), duration)
	o.logg.Info(o.logg.WithFields(ctx, map[string]any{
		"state":     state.String(),
		"written":   written,
		"watermark": now.UTC(),
	}), "revenue sync completed")

	return &Result{
		TenantID:  tenantID,
		Provider:  provider,
		Written:   written,
		Since:     since,
		Watermark: now,
		Duration:  duration,
	}, nil
}

// acquire takes the cross-process lock when a locker is configured.
func (o *Orchestrator) acquire(ctx context.Context, tenantID string, provider enums.RevenueProvider) (func(), error) {
	if o.locker == nil {
		return func() {}, nil
	}
	key := o.locker.SyncLockKey(tenantID, provider.String())
	token := uuid.NewString()
	ok, err := o.locker.AcquireLock(ctx, key, token, o.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire sync lock")
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()
		if err := o.locker.ReleaseLock(releaseCtx, key, token); err != nil {
			o.logg.Warn(o.logg.WithField(ctx, "error", err.Error()), "failed to release sync lock")
		}
	}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	default:
		return strings.ToLower(string(pkgerrors.CodeOf(err)))
	}
}
