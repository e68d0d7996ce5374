package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/revenue-engine/internal/providers"
	"github.com/angelmondragon/revenue-engine/pkg/db"
	"github.com/angelmondragon/revenue-engine/pkg/db/models"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/security"
	"github.com/angelmondragon/revenue-engine/pkg/validators"
	"github.com/google/uuid"
)

const defaultReportingCurrency = "USD"

type repository interface {
	Find(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*models.RevenueSetting, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.RevenueSetting, error)
	Upsert(ctx context.Context, setting *models.RevenueSetting) error
	Delete(ctx context.Context, tenantID string, provider enums.RevenueProvider) (bool, error)
	UpdateCurrency(ctx context.Context, tenantID, currency string) (int64, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	RecordSuccess(ctx context.Context, snap SyncSnapshot, watermark time.Time, count int, finishedAt time.Time) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, message string, count int, finishedAt time.Time) error
	InTx(ctx context.Context, fn func(tx repository) error) error
}

// AdapterResolver looks up the adapter used to validate credentials.
type AdapterResolver interface {
	Get(provider enums.RevenueProvider) (providers.Adapter, error)
}

// Credential is a decrypted setting ready for a sync pass.
type Credential struct {
	SettingID         uuid.UUID
	TenantID          string
	Provider          enums.RevenueProvider
	Secret            string
	ReportingCurrency string
	Watermark         *time.Time

	sealed string
}

// ConnectInput is the connect request.
type ConnectInput struct {
	TenantID          string `json:"tenant_id" validate:"required"`
	Provider          string `json:"provider" validate:"required,revenue_provider"`
	Secret            string `json:"secret" validate:"required"`
	ReportingCurrency string `json:"reporting_currency" validate:"omitempty,iso4217"`
}

type currencyInput struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Currency string `json:"currency" validate:"required,iso4217"`
}

// Service owns tenant revenue configuration: credentials, reporting currency
// and sync bookkeeping.
type Service struct {
	repo     repository
	cipher   security.CredentialCipher
	adapters AdapterResolver
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(repo repository, cipher security.CredentialCipher, adapters AdapterResolver, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("settings repository is required")
	}
	if cipher == nil {
		return nil, errors.New("credential cipher is required")
	}
	if adapters == nil {
		return nil, errors.New("adapter resolver is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, cipher: cipher, adapters: adapters, logg: logg, now: time.Now}, nil
}

// Connect validates the secret against the provider, encrypts it and stores
// it. A rejected secret is never persisted.
func (s *Service) Connect(ctx context.Context, in ConnectInput) (*models.RevenueSetting, error) {
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	in.Secret = strings.TrimSpace(in.Secret)
	in.ReportingCurrency = strings.ToUpper(strings.TrimSpace(in.ReportingCurrency))
	if err := validators.Struct(&in); err != nil {
		return nil, err
	}
	provider, err := enums.ParseRevenueProvider(in.Provider)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithSync(ctx, in.TenantID, provider.String())

	adapter, err := s.adapters.Get(provider)
	if err != nil {
		return nil, err
	}
	if !adapter.ValidateCredential(ctx, in.Secret) {
		s.logg.Warn(ctx, "provider rejected credential on connect")
		return nil, ErrInvalidCredential
	}

	encrypted, err := s.cipher.Encrypt(in.Secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}

	current, err := s.tenantCurrency(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	currency := in.ReportingCurrency
	if currency == "" {
		currency = current
	}

	setting := &models.RevenueSetting{
		TenantID:          in.TenantID,
		Provider:          provider,
		EncryptedSecret:   encrypted,
		ReportingCurrency: currency,
	}
	err = s.repo.InTx(ctx, func(tx repository) error {
		if err := tx.Upsert(ctx, setting); err != nil {
			return fmt.Errorf("store revenue setting: %w", err)
		}
		if currency == current {
			return nil
		}
		// keep every provider of the tenant on one reporting currency
		if _, err := tx.UpdateCurrency(ctx, in.TenantID, currency); err != nil {
			return fmt.Errorf("align reporting currency: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "reporting_currency", currency), "revenue provider connected")
	return setting, nil
}

// tenantCurrency reuses the currency of any existing provider setting so a
// tenant reports in one currency.
func (s *Service) tenantCurrency(ctx context.Context, tenantID string) (string, error) {
	existing, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("list revenue settings: %w", err)
	}
	for _, row := range existing {
		if row.ReportingCurrency != "" {
			return row.ReportingCurrency, nil
		}
	}
	return defaultReportingCurrency, nil
}

// Disconnect removes the credential and watermark. Disconnecting an
// unconfigured provider is a no-op.
func (s *Service) Disconnect(ctx context.Context, tenantID string, provider enums.RevenueProvider) error {
	deleted, err := s.repo.Delete(ctx, tenantID, provider)
	if err != nil {
		return fmt.Errorf("delete revenue setting: %w", err)
	}
	if deleted {
		s.logg.Info(s.logg.WithSync(ctx, tenantID, provider.String()), "revenue provider disconnected")
	}
	return nil
}

// ChangeCurrency switches the tenant's reporting currency and clears every
// watermark so the next passes re-ingest history in the new currency.
func (s *Service) ChangeCurrency(ctx context.Context, tenantID, currency string) (int, error) {
	in := currencyInput{TenantID: strings.TrimSpace(tenantID), Currency: strings.ToUpper(strings.TrimSpace(currency))}
	if err := validators.Struct(&in); err != nil {
		return 0, err
	}
	updated, err := s.repo.UpdateCurrency(ctx, in.TenantID, in.Currency)
	if err != nil {
		return 0, fmt.Errorf("update reporting currency: %w", err)
	}
	if updated == 0 {
		return 0, ErrNotConfigured
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithTenantID(ctx, in.TenantID), map[string]any{
		"reporting_currency": in.Currency,
		"settings_updated":   updated,
	}), "reporting currency changed; watermarks cleared")
	return int(updated), nil
}

// Load returns the decrypted credential. Missing or undecryptable settings
// yield ErrNotConfigured.
func (s *Service) Load(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*Credential, error) {
	setting, err := s.repo.Find(ctx, tenantID, provider)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("load revenue setting: %w", err)
	}

	secret, err := s.cipher.Decrypt(setting.EncryptedSecret)
	if err != nil {
		s.logg.Error(s.logg.WithSync(ctx, tenantID, provider.String()), "stored credential could not be decrypted", err)
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	return &Credential{
		SettingID:         setting.ID,
		TenantID:          setting.TenantID,
		Provider:          setting.Provider,
		Secret:            secret,
		ReportingCurrency: setting.ReportingCurrency,
		Watermark:         setting.LastSyncWatermark,
		sealed:            setting.EncryptedSecret,
	}, nil
}

// List returns the tenant's provider settings for status reporting.
func (s *Service) List(ctx context.Context, tenantID string) ([]models.RevenueSetting, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

func (s *Service) MarkRunning(ctx context.Context, cred *Credential) error {
	return s.repo.MarkRunning(ctx, cred.SettingID)
}

// AdvanceWatermark records a completed pass. It returns ErrStalePass when the
// credential, currency or watermark changed after Load.
func (s *Service) AdvanceWatermark(ctx context.Context, cred *Credential, watermark time.Time, count int) error {
	updated, err := s.repo.RecordSuccess(ctx, SyncSnapshot{
		ID:                cred.SettingID,
		EncryptedSecret:   cred.sealed,
		ReportingCurrency: cred.ReportingCurrency,
		Watermark:         cred.Watermark,
	}, watermark, count, s.now())
	if err != nil {
		return err
	}
	if !updated {
		return ErrStalePass
	}
	return nil
}

// RecordFailure records a failed pass; the watermark is left untouched.
func (s *Service) RecordFailure(ctx context.Context, cred *Credential, cause error, count int) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.repo.RecordFailure(ctx, cred.SettingID, message, count, s.now())
}
