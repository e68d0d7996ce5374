package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/revenue-engine/pkg/enums"
)

// RevenueSetting stores a tenant's encrypted provider credential and sync bookkeeping.
type RevenueSetting struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	TenantID           string                `gorm:"column:tenant_id;not null;uniqueIndex:ux_revenue_settings_tenant_provider"`
	Provider           enums.RevenueProvider `gorm:"column:provider;not null;uniqueIndex:ux_revenue_settings_tenant_provider"`
	EncryptedSecret    string                `gorm:"column:encrypted_secret;not null"`
	ReportingCurrency  string                `gorm:"column:reporting_currency;not null;default:'USD'"`
	LastSyncWatermark  *time.Time            `gorm:"column:last_sync_watermark"`
	LastSyncStatus     string                `gorm:"column:last_sync_status;not null;default:'idle'"`
	LastSyncError      *string               `gorm:"column:last_sync_error"`
	LastSyncCount      int                   `gorm:"column:last_sync_count;not null;default:0"`
	LastSyncFinishedAt *time.Time            `gorm:"column:last_sync_finished_at"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (RevenueSetting) TableName() string {
	return "revenue_settings"
}
