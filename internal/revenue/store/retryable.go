package store

import (
	"errors"
	"net/http"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/samber/lo"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	retryableHTTP = []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
	retryableGRPC = []codes.Code{
		codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable,
	}
)

// isRetryableBigQueryError reports whether an insert is worth repeating. A
// multi-error is retryable only when every member is.
func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return len(multi) > 0 && lo.EveryBy(multi, isRetryableBigQueryError)
	}
	var rows cbigquery.PutMultiError
	if errors.As(err, &rows) {
		return len(rows) > 0 && lo.EveryBy(rows, func(row cbigquery.RowInsertionError) bool {
			return isRetryableBigQueryError(row.Errors)
		})
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return lo.Contains(retryableHTTP, apiErr.Code)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return lo.Contains(retryableGRPC, st.Code())
	}
	return false
}
