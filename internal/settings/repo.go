package settings

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/revenue-engine/pkg/db"
	"github.com/angelmondragon/revenue-engine/pkg/db/models"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sync status values stored in last_sync_status.
const (
	SyncStatusIdle      = "idle"
	SyncStatusRunning   = "running"
	SyncStatusSucceeded = "succeeded"
	SyncStatusFailed    = "failed"
)

const uniqueTenantProvider = "ux_revenue_settings_tenant_provider"

// Repository handles revenue_settings persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB binds the connection to ctx.
func (r *Repository) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return r.db
	}
	return r.db.WithContext(ctx)
}

// InTx runs fn against a repository bound to a single transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx repository) error) error {
	return r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// Find loads the setting for a tenant and provider. Missing rows return
// gorm.ErrRecordNotFound.
func (r *Repository) Find(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*models.RevenueSetting, error) {
	var setting models.RevenueSetting
	if err := r.DB(ctx).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

// ListByTenant returns every provider setting of the tenant ordered by provider.
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.RevenueSetting, error) {
	var rows []models.RevenueSetting
	if err := r.DB(ctx).
		Where("tenant_id = ?", tenantID).
		Order("provider ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert creates the setting or replaces the credential of an existing one.
// Replacing a credential resets the watermark and sync bookkeeping.
func (r *Repository) Upsert(ctx context.Context, setting *models.RevenueSetting) error {
	if setting == nil {
		return errors.New("setting is required")
	}
	if setting.ID == uuid.Nil {
		setting.ID = uuid.New()
	}
	if setting.LastSyncStatus == "" {
		setting.LastSyncStatus = SyncStatusIdle
	}
	setting.LastSyncWatermark = nil
	setting.LastSyncError = nil
	setting.LastSyncCount = 0
	setting.LastSyncFinishedAt = nil

	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "provider"}},
		DoUpdates: clause.Assignments(map[string]any{
			"encrypted_secret":      setting.EncryptedSecret,
			"reporting_currency":    setting.ReportingCurrency,
			"last_sync_watermark":   nil,
			"last_sync_status":      SyncStatusIdle,
			"last_sync_error":       nil,
			"last_sync_count":       0,
			"last_sync_finished_at": nil,
			"updated_at":            time.Now().UTC(),
		}),
	}).Create(setting).Error
	if err != nil {
		if db.IsUniqueViolation(err, uniqueTenantProvider) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "revenue setting already exists")
		}
		return err
	}

	stored, err := r.Find(ctx, setting.TenantID, setting.Provider)
	if err != nil {
		return err
	}
	*setting = *stored
	return nil
}

// Delete removes the setting and reports whether a row existed.
func (r *Repository) Delete(ctx context.Context, tenantID string, provider enums.RevenueProvider) (bool, error) {
	res := r.DB(ctx).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		Delete(&models.RevenueSetting{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateCurrency switches every provider setting of the tenant to currency
// and clears their watermarks.
func (r *Repository) UpdateCurrency(ctx context.Context, tenantID, currency string) (int64, error) {
	res := r.DB(ctx).
		Model(&models.RevenueSetting{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]any{
			"reporting_currency":  currency,
			"last_sync_watermark": nil,
		})
	return res.RowsAffected, res.Error
}

// MarkRunning flags a pass as started without touching the watermark.
func (r *Repository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.RevenueSetting{}).
		Where("id = ?", id).
		Update("last_sync_status", SyncStatusRunning).Error
}

// SyncSnapshot is the state of a setting when a pass loaded it.
type SyncSnapshot struct {
	ID                uuid.UUID
	EncryptedSecret   string
	ReportingCurrency string
	Watermark         *time.Time
}

// RecordSuccess advances the watermark after a completed pass. The row is only
// updated while it still matches the snapshot; it reports whether it did.
func (r *Repository) RecordSuccess(ctx context.Context, snap SyncSnapshot, watermark time.Time, count int, finishedAt time.Time) (bool, error) {
	query := r.DB(ctx).
		Model(&models.RevenueSetting{}).
		Where("id = ? AND encrypted_secret = ? AND reporting_currency = ?", snap.ID, snap.EncryptedSecret, snap.ReportingCurrency)
	if snap.Watermark == nil {
		query = query.Where("last_sync_watermark IS NULL")
	} else {
		query = query.Where("last_sync_watermark = ?", snap.Watermark.UTC())
	}
	res := query.Updates(map[string]any{
		"last_sync_watermark":   watermark.UTC(),
		"last_sync_status":      SyncStatusSucceeded,
		"last_sync_error":       nil,
		"last_sync_count":       count,
		"last_sync_finished_at": finishedAt.UTC(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecordFailure stores the failure and leaves the watermark untouched.
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID, message string, count int, finishedAt time.Time) error {
	return r.DB(ctx).
		Model(&models.RevenueSetting{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_sync_status":      SyncStatusFailed,
			"last_sync_error":       message,
			"last_sync_count":       count,
			"last_sync_finished_at": finishedAt.UTC(),
		}).Error
}
