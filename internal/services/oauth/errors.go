package oauth

import "fmt"

// RFC 6749 §5.2 error codes.
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeAccessDenied            = "access_denied"
)

// Error is an OAuth protocol error carrying the RFC 6749 error code and a
// human-readable description.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError builds an OAuth protocol error.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func invalidRequest(description string) *Error {
	return NewError(ErrCodeInvalidRequest, description)
}

func invalidClient(description string) *Error {
	return NewError(ErrCodeInvalidClient, description)
}

func invalidGrant(description string) *Error {
	return NewError(ErrCodeInvalidGrant, description)
}

func invalidScope(description string) *Error {
	return NewError(ErrCodeInvalidScope, description)
}
