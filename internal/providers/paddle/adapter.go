package paddle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	paddlesdk "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
	"github.com/samber/lo"

	"github.com/angelmondragon/revenue-engine/internal/providers"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

const (
	eventTypesPath   = "/event-types"
	transactionsPath = "/transactions"
	adjustmentsPath  = "/adjustments"

	// Paddle caps per_page at 30 for transactions and 50 for adjustments.
	transactionsPerPage = 30
	adjustmentsPerPage  = 50
)

var revenueStatuses = []string{
	string(paddlesdk.TransactionStatusPaid),
	string(paddlesdk.TransactionStatusCompleted),
}

// Adapter syncs Paddle Billing transactions and approved refund adjustments.
type Adapter struct {
	baseURL  string
	http     *http.Client
	ingestor *providers.Ingestor
	logg     *logger.Logger
}

var _ providers.Adapter = (*Adapter)(nil)

func New(cfg config.PaddleConfig, ingestor *providers.Ingestor, logg *logger.Logger, httpClient *http.Client) (*Adapter, error) {
	if ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = paddlesdk.ProductionBaseURL
	}
	return &Adapter{
		baseURL:  baseURL,
		http:     providers.NewHTTPClient(cfg.RequestTimeout, httpClient),
		ingestor: ingestor,
		logg:     logg,
	}, nil
}

func (a *Adapter) Provider() enums.RevenueProvider {
	return enums.RevenueProviderPaddle
}

func (a *Adapter) ValidateCredential(ctx context.Context, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	s, err := a.open(secret)
	if err != nil {
		return false
	}
	_, err = s.sdk.ListEventTypes(ctx, &paddlesdk.ListEventTypesRequest{})
	return err == nil
}

// SyncTransactions ingests paid and completed transactions updated since the
// watermark, then approved refund adjustments. Refunds inherit attribution
// from the originating transaction, looked up when the pass did not list it.
func (a *Adapter) SyncTransactions(ctx context.Context, req providers.SyncRequest) (int, error) {
	pass := a.ingestor.Begin(enums.RevenueProviderPaddle, req)
	s, err := a.open(req.Secret)
	if err != nil {
		return pass.Finish(ctx, err)
	}

	origins := make(map[string]providers.Attribution)
	if err := s.syncTransactions(ctx, req.Since, pass, origins); err != nil {
		return pass.Finish(ctx, err)
	}
	refunds, err := s.approvedRefunds(ctx, req.Since)
	if err != nil {
		return pass.Finish(ctx, err)
	}
	if err := s.lookupOrigins(ctx, refunds, origins); err != nil {
		return pass.Finish(ctx, err)
	}
	for _, adj := range refunds {
		draft, err := refundDraft(adj, origins[adj.TransactionID])
		if err != nil {
			return pass.Finish(ctx, err)
		}
		if err := pass.Write(ctx, draft); err != nil {
			return pass.Finish(ctx, err)
		}
	}

	written, err := pass.Finish(ctx, nil)
	if err != nil {
		return written, err
	}
	a.logg.Info(a.logg.WithField(ctx, "written", written), "paddle sync pass drained")
	return written, nil
}

// session is an SDK client bound to one tenant key.
type session struct {
	sdk    *paddlesdk.SDK
	status *statusRecorder
}

func (a *Adapter) open(secret string) (*session, error) {
	rec := &statusRecorder{client: a.http}
	sdk, err := paddlesdk.New(strings.TrimSpace(secret), paddlesdk.WithBaseURL(a.baseURL), paddlesdk.WithClient(rec))
	if err != nil {
		return nil, fmt.Errorf("paddle client: %w", err)
	}
	return &session{sdk: sdk, status: rec}, nil
}

// syncTransactions walks transactions newest update first and stops at the
// first one older than the watermark.
func (s *session) syncTransactions(ctx context.Context, since *time.Time, pass *providers.Pass, origins map[string]providers.Attribution) error {
	list := func() (*paddlesdk.Collection[*paddlesdk.Transaction], error) {
		return s.sdk.ListTransactions(ctx, &paddlesdk.ListTransactionsRequest{
			Status:  revenueStatuses,
			OrderBy: paddlesdk.PtrTo("updated_at[DESC]"),
			PerPage: paddlesdk.PtrTo(transactionsPerPage),
		})
	}
	return each(ctx, s, transactionsPath, list, func(txn *paddlesdk.Transaction) (bool, error) {
		updated, err := parseTime(txn.UpdatedAt)
		if err != nil {
			return false, fmt.Errorf("paddle transaction %s: updated_at: %w", txn.ID, err)
		}
		if !updated.IsZero() && !providers.Since(since, updated) {
			return false, nil
		}
		draft, err := saleDraft(txn)
		if err != nil {
			return false, err
		}
		origins[txn.ID] = draft.Attribution
		return true, pass.Write(ctx, draft)
	})
}

// approvedRefunds lists refund adjustments. The endpoint has no update-time
// filter, so the watermark is applied here.
func (s *session) approvedRefunds(ctx context.Context, since *time.Time) ([]*paddlesdk.Adjustment, error) {
	list := func() (*paddlesdk.Collection[*paddlesdk.Adjustment], error) {
		return s.sdk.ListAdjustments(ctx, &paddlesdk.ListAdjustmentsRequest{
			Action:  paddlesdk.PtrTo(string(paddlesdk.AdjustmentActionRefund)),
			Status:  []string{string(paddlesdk.AdjustmentStatusApproved)},
			PerPage: paddlesdk.PtrTo(adjustmentsPerPage),
		})
	}
	var refunds []*paddlesdk.Adjustment
	err := each(ctx, s, adjustmentsPath, list, func(adj *paddlesdk.Adjustment) (bool, error) {
		if adj.Action != paddlesdk.AdjustmentActionRefund || adj.Status != paddlesdk.AdjustmentStatusApproved {
			return true, nil
		}
		updated, err := parseTime(adj.UpdatedAt)
		if err != nil {
			return false, fmt.Errorf("paddle adjustment %s: updated_at: %w", adj.ID, err)
		}
		if providers.Since(since, updated) {
			refunds = append(refunds, adj)
		}
		return true, nil
	})
	return refunds, err
}

// lookupOrigins fetches the attribution of refunded transactions the pass did
// not list, one id-filtered page per batch.
func (s *session) lookupOrigins(ctx context.Context, refunds []*paddlesdk.Adjustment, origins map[string]providers.Attribution) error {
	missing := lo.Uniq(lo.FilterMap(refunds, func(adj *paddlesdk.Adjustment, _ int) (string, bool) {
		_, ok := origins[adj.TransactionID]
		return adj.TransactionID, adj.TransactionID != "" && !ok
	}))
	for _, ids := range lo.Chunk(missing, transactionsPerPage) {
		list := func() (*paddlesdk.Collection[*paddlesdk.Transaction], error) {
			return s.sdk.ListTransactions(ctx, &paddlesdk.ListTransactionsRequest{
				ID:      ids,
				PerPage: paddlesdk.PtrTo(transactionsPerPage),
			})
		}
		err := each(ctx, s, transactionsPath, list, func(txn *paddlesdk.Transaction) (bool, error) {
			origins[txn.ID] = attributionOf(txn, transactionMetadata(txn))
			return true, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// each walks a collection across pages. Errors from visit come back as they
// are; SDK errors are classified.
func each[T any](ctx context.Context, s *session, path string, list func() (*paddlesdk.Collection[T], error), visit func(T) (bool, error)) error {
	coll, err := list()
	if err != nil {
		return s.classify(path, err)
	}
	var visitErr error
	err = coll.Iter(ctx, func(v T) (bool, error) {
		more, err := visit(v)
		if err != nil {
			visitErr = err
			return false, nil
		}
		return more, nil
	})
	if visitErr != nil {
		return visitErr
	}
	if err != nil {
		return s.classify(path, err)
	}
	return nil
}

// classify maps SDK failures onto the provider error types. Paddle's error
// body carries no status, so the recorded one is used.
func (s *session) classify(path string, err error) error {
	var apiErr *paddleerr.Error
	if errors.As(err, &apiErr) {
		return &providers.APIError{
			Provider: string(enums.RevenueProviderPaddle),
			Path:     path,
			Status:   lo.CoalesceOrEmpty(apiErr.Status, s.status.last()),
			Message:  lo.CoalesceOrEmpty(apiErr.Detail, apiErr.Code),
		}
	}
	if providers.TimedOut(err) {
		return &providers.TimeoutError{Provider: string(enums.RevenueProviderPaddle), Path: path, Err: err}
	}
	if status := s.status.last(); status >= http.StatusBadRequest {
		return &providers.APIError{Provider: string(enums.RevenueProviderPaddle), Path: path, Status: status, Message: err.Error()}
	}
	return fmt.Errorf("paddle %s: %w", path, err)
}

// statusRecorder remembers the status of the last response it saw.
type statusRecorder struct {
	client *http.Client
	status atomic.Int32
}

func (r *statusRecorder) Do(req *http.Request) (*http.Response, error) {
	res, err := r.client.Do(req)
	if err != nil {
		r.status.Store(0)
		return res, err
	}
	r.status.Store(int32(res.StatusCode))
	return res, nil
}

func (r *statusRecorder) last() int {
	return int(r.status.Load())
}
