package providers

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
)

// ErrProviderTimeout is matched by every *TimeoutError.
var ErrProviderTimeout = errors.New("provider request timed out")

// TimeoutError reports an outbound call that exceeded its deadline.
type TimeoutError struct {
	Provider string
	Path     string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Path, ErrProviderTimeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrProviderTimeout }

func (e *TimeoutError) ErrorCode() pkgerrors.Code { return pkgerrors.CodeProviderTimeout }

// APIError reports a non-2xx response from a provider.
type APIError struct {
	Provider string
	Path     string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("%s %s: status %d", e.Provider, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Path, e.Status, msg)
}

func (e *APIError) ErrorCode() pkgerrors.Code { return pkgerrors.CodeProviderError }

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrProviderTimeout)
}

// StatusOf returns the HTTP status of an *APIError in err's chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
