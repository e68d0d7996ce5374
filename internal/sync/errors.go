package sync

import (
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
)

type codedError struct {
	code    pkgerrors.Code
	message string
}

func (e *codedError) Error() string             { return e.message }
func (e *codedError) ErrorCode() pkgerrors.Code { return e.code }

// ErrSyncInProgress is returned when another process holds the pass lock for
// the same tenant and provider.
var ErrSyncInProgress error = &codedError{code: pkgerrors.CodeSyncInProgress, message: "sync already in progress"}

// Error is a failed pass. Written counts the transactions stored before the
// failure; they are not rolled back.
type Error struct {
	TenantID string
	Provider string
	State    State
	Written  int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sync %s/%s failed in %s after %d written: %v", e.TenantID, e.Provider, e.State, e.Written, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WrittenBefore returns how many transactions a failed pass stored.
func WrittenBefore(err error) int {
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr.Written
	}
	return 0
}
