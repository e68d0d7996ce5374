package revenue

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/revenue-engine/api/responses"
	revsync "github.com/angelmondragon/revenue-engine/internal/sync"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

// Syncer runs one sync pass for a tenant and provider.
type Syncer interface {
	Sync(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*revsync.Result, error)
}

type SyncView struct {
	Provider   string     `json:"provider"`
	Written    int        `json:"written"`
	Since      *time.Time `json:"since,omitempty"`
	Watermark  time.Time  `json:"watermark"`
	DurationMS int64      `json:"duration_ms"`
	Shared     bool       `json:"shared"`
}

// TriggerSync runs a pass inline. Concurrent triggers for the same pair share
// one pass in-process or fail with SYNC_IN_PROGRESS across processes.
func TriggerSync(syncer Syncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		provider, err := providerParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := syncer.Sync(r.Context(), tenantID, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, SyncView{
			Provider:   res.Provider.String(),
			Written:    res.Written,
			Since:      res.Since,
			Watermark:  res.Watermark,
			DurationMS: res.Duration.Milliseconds(),
			Shared:     res.Shared,
		})
	}
}
