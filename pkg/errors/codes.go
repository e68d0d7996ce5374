package errors

import "net/http"

// Code is the stable, client-facing identifier of an error class.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeNotConfigured     Code = "NOT_CONFIGURED"
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeRateLimit         Code = "RATE_LIMITED"
	CodeSyncInProgress    Code = "SYNC_IN_PROGRESS"
	CodeSyncStale         Code = "SYNC_STALE"
	CodeProviderTimeout   Code = "PROVIDER_TIMEOUT"
	CodeProviderError     Code = "PROVIDER_ERROR"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces over HTTP and to retrying callers.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Columns: status, retryable, public message, details allowed.
var metadataByCode = map[Code]Metadata{
	CodeValidation:        {http.StatusBadRequest, false, "validation failed", true},
	CodeUnauthorized:      {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:         {http.StatusForbidden, false, "access denied", false},
	CodeNotFound:          {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:          {http.StatusConflict, false, "conflict detected", false},
	CodeNotConfigured:     {http.StatusBadRequest, false, "revenue provider not configured", true},
	CodeInvalidCredential: {http.StatusBadRequest, false, "provider rejected the credential", false},
	CodeRateLimit:         {http.StatusTooManyRequests, true, "too many requests", false},
	CodeSyncInProgress:    {http.StatusConflict, true, "a sync is already running", false},
	CodeSyncStale:         {http.StatusConflict, true, "provider settings changed during the sync", false},
	CodeProviderTimeout:   {http.StatusGatewayTimeout, true, "payment provider timed out", false},
	CodeProviderError:     {http.StatusBadGateway, true, "payment provider returned an error", true},
	CodeInternal:          {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:        {http.StatusServiceUnavailable, true, "dependency unavailable", true},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

func (c Code) HTTPStatus() int {
	return MetadataFor(c).HTTPStatus
}
