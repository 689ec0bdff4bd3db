package gemini

// Unified error codes for the upstream generative-language API, aligned with
// HTTP status and retryability.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "GEMINI_INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "GEMINI_UNAUTHORIZED"
	ErrForbidden      ErrorCode = "GEMINI_FORBIDDEN"
	ErrRateLimited    ErrorCode = "GEMINI_RATE_LIMITED"
	ErrQuotaExceeded  ErrorCode = "GEMINI_QUOTA_EXCEEDED"
	ErrUpstreamError  ErrorCode = "GEMINI_UPSTREAM_ERROR"
	ErrParseError     ErrorCode = "GEMINI_PARSE_ERROR"
	ErrResponseShape  ErrorCode = "GEMINI_RESPONSE_SHAPE"
)

// Error carries the upstream failure classification. Detail holds the raw
// response body for diagnostics; it is never parsed further.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Detail     string    `json:"detail,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// CodeOf extracts the error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsResponseShape reports whether err means the upstream document was
// well-formed JSON but missing the expected nested fields. Callers map this
// case to an empty result instead of failing.
func IsResponseShape(err error) bool {
	return CodeOf(err) == ErrResponseShape
}
