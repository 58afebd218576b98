package proto

// ErrorCode is a machine-readable error identifier returned to transport clients.
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeAlreadyFinal      ErrorCode = "ALREADY_FINAL"
	CodeAlreadyFirst      ErrorCode = "ALREADY_FIRST"
	CodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeDegraded          ErrorCode = "DEPENDENCY_DEGRADED"
	CodeInternal          ErrorCode = "INTERNAL"
)

// EnvelopeError is the error half of the transport envelope.
type EnvelopeError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Envelope is the uniform success/error wrapper for every transport response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *EnvelopeError `json:"error,omitempty"`
}

// OK wraps a payload in a success envelope.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail wraps an error code and message in a failure envelope.
func Fail(code ErrorCode, message string) Envelope {
	return Envelope{Success: false, Error: &EnvelopeError{Code: code, Message: message}}
}
