package responses

// DataEnvelope wraps every successful payload.
type DataEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the public face of a pkg/errors value.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
