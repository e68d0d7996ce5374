package syncworker

import (
	"context"
	"errors"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	revsync "github.com/angelmondragon/revenue-engine/internal/sync"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/validators"
)

// Request is the sync job payload published by schedulers and the CLI.
type Request struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Provider string `json:"provider" validate:"required,revenue_provider"`
}

// Syncer runs one pass for a tenant and provider.
type Syncer interface {
	Sync(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*revsync.Result, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Service consumes sync requests from Pub/Sub. Malformed or terminal requests
// are acked; retryable failures are nacked for redelivery.
type Service struct {
	subscription receiver
	syncer       Syncer
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, syncer Syncer, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("sync requests subscription is required")
	}
	return newService(subscription, syncer, logg)
}

func newService(subscription receiver, syncer Syncer, logg *logger.Logger) (*Service, error) {
	if syncer == nil {
		return nil, errors.New("syncer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, syncer: syncer, logg: logg}, nil
}

type processResult struct {
	nack bool
}

// Run consumes sync requests until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	req, err := decodeRequest(msg.Data)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid sync request")
		return processResult{}
	}
	provider := enums.RevenueProvider(req.Provider)
	logCtx = s.logg.WithSync(logCtx, req.TenantID, req.Provider)

	res, err := s.syncer.Sync(logCtx, req.TenantID, provider)
	if err != nil {
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"code":    string(pkgerrors.CodeOf(err)),
			"written": revsync.WrittenBefore(err),
		})
		if ctx.Err() != nil || pkgerrors.IsRetryable(err) {
			s.logg.Warn(logCtx, "sync request will be retried")
			return processResult{nack: true}
		}
		s.logg.Error(logCtx, "sync request dropped", err)
		return processResult{}
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"written":  res.Written,
		"shared":   res.Shared,
		"duration": res.Duration.Round(time.Millisecond).String(),
	}), "sync request handled")
	return processResult{}
}

func decodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := validators.DecodeJSON(data, &req); err != nil {
		return nil, err
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if req.TenantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant_id is blank")
	}
	return &req, nil
}
