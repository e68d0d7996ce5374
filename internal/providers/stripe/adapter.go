package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/revenue-engine/internal/providers"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

const (
	paymentIntentsPath = "/v1/payment_intents"
	refundsPath        = "/v1/refunds"
	invoicesPath       = "/v1/invoices"

	// invoiceLookback widens the invoice listing so an intent created after
	// the watermark still finds an invoice finalized before it.
	invoiceLookback = 45 * 24 * time.Hour
)

// Adapter syncs Stripe payment intents and refunds.
type Adapter struct {
	backends *stripego.Backends
	ingestor *providers.Ingestor
	logg     *logger.Logger
}

var _ providers.Adapter = (*Adapter)(nil)

// New builds the Stripe adapter. httpClient may be nil.
func New(cfg config.StripeConfig, ingestor *providers.Ingestor, logg *logger.Logger, httpClient *http.Client) (*Adapter, error) {
	if ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	backendCfg := &stripego.BackendConfig{
		HTTPClient:        providers.NewHTTPClient(cfg.RequestTimeout, httpClient),
		LeveledLogger:     sdkLogger{logg: logg},
		MaxNetworkRetries: stripego.Int64(max(cfg.MaxNetworkRetries, 0)),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		backendCfg.URL = stripego.String(base)
	}
	return &Adapter{
		backends: stripego.NewBackendsWithConfig(backendCfg),
		ingestor: ingestor,
		logg:     logg,
	}, nil
}

func (a *Adapter) Provider() enums.RevenueProvider {
	return enums.RevenueProviderStripe
}

func (a *Adapter) client(secret string) *stripego.Client {
	return stripego.NewClient(strings.TrimSpace(secret), stripego.WithBackends(a.backends))
}

// ValidateCredential lists a single payment intent with the key.
func (a *Adapter) ValidateCredential(ctx context.Context, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	params := &stripego.PaymentIntentListParams{ListParams: stripego.ListParams{Limit: stripego.Int64(1), Single: true}}
	for _, err := range a.client(secret).V1PaymentIntents.List(ctx, params) {
		return err == nil
	}
	return true
}

// SyncTransactions indexes paid invoices by payment intent, then streams
// succeeded payment intents and succeeded refunds.
func (a *Adapter) SyncTransactions(ctx context.Context, req providers.SyncRequest) (int, error) {
	sc := a.client(req.Secret)
	pass := a.ingestor.Begin(enums.RevenueProviderStripe, req)

	invoices, err := paidInvoices(ctx, sc, req.Since)
	if err != nil {
		return pass.Finish(ctx, err)
	}
	if err := syncIntents(ctx, sc, req.Since, invoices, pass); err != nil {
		return pass.Finish(ctx, err)
	}
	if err := syncRefunds(ctx, sc, req.Since, invoices, pass); err != nil {
		return pass.Finish(ctx, err)
	}

	written, err := pass.Finish(ctx, nil)
	if err != nil {
		return written, err
	}
	a.logg.Info(a.logg.WithField(ctx, "written", written), "stripe sync pass drained")
	return written, nil
}

func listParams() stripego.ListParams {
	return stripego.ListParams{Limit: stripego.Int64(providers.PageSize)}
}

func createdSince(since *time.Time, widen time.Duration) *stripego.RangeQueryParams {
	if since == nil {
		return nil
	}
	return &stripego.RangeQueryParams{GreaterThanOrEqual: since.Add(-widen).Unix()}
}

// paidInvoices maps payment intent IDs to what their paid invoice says about
// them. Intents without an invoice are one-off sales.
func paidInvoices(ctx context.Context, sc *stripego.Client, since *time.Time) (map[string]invoiceFacts, error) {
	params := &stripego.InvoiceListParams{
		ListParams:   listParams(),
		Status:       stripego.String(string(stripego.InvoiceStatusPaid)),
		CreatedRange: createdSince(since, invoiceLookback),
	}
	params.AddExpand("data.payments")

	facts := map[string]invoiceFacts{}
	for inv, err := range sc.V1Invoices.List(ctx, params) {
		if err != nil {
			return nil, classify(invoicesPath, err)
		}
		f := factsOf(inv)
		for _, id := range intentIDs(inv) {
			facts[id] = f
		}
	}
	return facts, nil
}

func syncIntents(ctx context.Context, sc *stripego.Client, since *time.Time, invoices map[string]invoiceFacts, pass *providers.Pass) error {
	params := &stripego.PaymentIntentListParams{
		ListParams:   listParams(),
		CreatedRange: createdSince(since, 0),
	}
	params.AddExpand("data.latest_charge")

	for pi, err := range sc.V1PaymentIntents.List(ctx, params) {
		if err != nil {
			return classify(paymentIntentsPath, err)
		}
		if pi.Status != stripego.PaymentIntentStatusSucceeded {
			continue
		}
		if err := pass.Write(ctx, saleDraft(pi, invoices[pi.ID])); err != nil {
			return err
		}
	}
	return nil
}

func syncRefunds(ctx context.Context, sc *stripego.Client, since *time.Time, invoices map[string]invoiceFacts, pass *providers.Pass) error {
	params := &stripego.RefundListParams{
		ListParams:   listParams(),
		CreatedRange: createdSince(since, 0),
	}
	params.AddExpand("data.charge")

	for re, err := range sc.V1Refunds.List(ctx, params) {
		if err != nil {
			return classify(refundsPath, err)
		}
		if re.Status != stripego.RefundStatusSucceeded {
			continue
		}
		var inv invoiceFacts
		if re.PaymentIntent != nil {
			inv = invoices[re.PaymentIntent.ID]
		}
		if err := pass.Write(ctx, refundDraft(re, inv)); err != nil {
			return err
		}
	}
	return nil
}

// classify maps stripe-go failures onto the provider error types the sync
// bookkeeping understands.
func classify(path string, err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		return &providers.APIError{
			Provider: string(enums.RevenueProviderStripe),
			Path:     path,
			Status:   stripeErr.HTTPStatusCode,
			Message:  stripeErr.Msg,
		}
	}
	if providers.TimedOut(err) {
		return &providers.TimeoutError{Provider: string(enums.RevenueProviderStripe), Path: path, Err: err}
	}
	return fmt.Errorf("stripe %s: %w", path, err)
}

// sdkLogger routes stripe-go's request logging through the service logger.
// Failures are already returned to the caller, so they stay at warn.
type sdkLogger struct {
	logg *logger.Logger
}

var _ stripego.ContextLeveledLoggerInterface = sdkLogger{}

func (l sdkLogger) Debugf(ctx context.Context, format string, v ...any) {
	l.logg.Debug(ctx, fmt.Sprintf(format, v...))
}

func (l sdkLogger) Infof(ctx context.Context, format string, v ...any) {
	l.logg.Debug(ctx, fmt.Sprintf(format, v...))
}

func (l sdkLogger) Warnf(ctx context.Context, format string, v ...any) {
	l.logg.Warn(ctx, fmt.Sprintf(format, v...))
}

func (l sdkLogger) Errorf(ctx context.Context, format string, v ...any) {
	l.logg.Warn(ctx, fmt.Sprintf(format, v...))
}
