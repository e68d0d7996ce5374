package settings

import (
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
)

type codedError struct {
	code    pkgerrors.Code
	message string
}

func (e *codedError) Error() string             { return e.message }
func (e *codedError) ErrorCode() pkgerrors.Code { return e.code }

var (
	// ErrNotConfigured means no usable credential exists for the tenant and
	// provider. Undecryptable credentials surface as this error too.
	ErrNotConfigured error = &codedError{code: pkgerrors.CodeNotConfigured, message: "revenue provider not configured"}
	// ErrInvalidCredential means the provider rejected the secret on connect.
	ErrInvalidCredential error = &codedError{code: pkgerrors.CodeInvalidCredential, message: "provider rejected the credential"}
	// ErrStalePass means the setting changed while the pass ran, so its
	// watermark no longer applies.
	ErrStalePass error = &codedError{code: pkgerrors.CodeSyncStale, message: "revenue setting changed during the sync"}
)
