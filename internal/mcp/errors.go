// Package mcp implements the JSON-RPC 2.0 protocol dispatcher for the
// gateway's tools and resources.
package mcp

import (
	"net/http"

	"github.com/aiveilix/aiveilix/internal/models"
)

// ErrorKind is the closed set of dispatcher failure modes. Transports map
// kinds to wire codes and HTTP statuses exhaustively; handlers never panic
// to signal errors.
type ErrorKind int

const (
	KindParse ErrorKind = iota
	KindInvalidRequest
	KindMethodNotFound
	KindDomain
	KindAuthRequired
	KindTimeout
	KindInternal
)

// Domain error codes carried in error.data.code.
const (
	CodeBucketNotFound   = "bucket_not_found"
	CodeAccessDenied     = "access_denied"
	CodeMissingScope     = "missing_required_scope"
	CodeMissingParameter = "missing_parameter"
	CodeInvalidParameter = "invalid_parameter"
	CodeUnknownTool      = "unknown_tool"
	CodeInvalidURI       = "invalid_uri"
	CodeNotFound         = "not_found"
	CodeQueryError       = "query_error"
	CodeChatError        = "chat_error"
	CodeBucketListError  = "bucket_list_error"
	CodeFileListError    = "file_list_error"
	CodeBucketInfoError  = "bucket_info_error"
	CodeFileContentError = "file_content_error"
	CodeAuthRequired     = "auth_required"
	CodeTimeout          = "timeout"
)

// Error is the dispatcher's internal error type.
type Error struct {
	Kind       ErrorKind
	Message    string
	DomainCode string // set for KindDomain
}

func (e *Error) Error() string {
	return e.Message
}

func parseError(message string) *Error {
	return &Error{Kind: KindParse, Message: message}
}

func invalidRequest(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message}
}

func methodNotFound(method string) *Error {
	return &Error{Kind: KindMethodNotFound, Message: "Method not found: " + method}
}

func domainError(code, message string) *Error {
	return &Error{Kind: KindDomain, Message: message, DomainCode: code}
}

func authRequired() *Error {
	return &Error{Kind: KindAuthRequired, Message: "Authentication required"}
}

// AuthRequiredError is the transport-facing constructor for credential
// failures detected before dispatch.
func AuthRequiredError() *Error {
	return authRequired()
}

func timeoutError(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

func internalError(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}

// RPCError maps the error onto the wire shape.
func (e *Error) RPCError() *models.RPCError {
	switch e.Kind {
	case KindParse:
		return &models.RPCError{Code: models.RPCParseError, Message: e.Message}
	case KindInvalidRequest:
		return &models.RPCError{Code: models.RPCInvalidRequest, Message: e.Message}
	case KindMethodNotFound:
		return &models.RPCError{Code: models.RPCMethodNotFound, Message: e.Message}
	case KindDomain:
		return &models.RPCError{
			Code:    models.RPCDomainError,
			Message: e.Message,
			Data:    &models.RPCErrorData{Code: e.DomainCode},
		}
	case KindAuthRequired:
		return &models.RPCError{
			Code:    models.RPCDomainError,
			Message: e.Message,
			Data:    &models.RPCErrorData{Code: CodeAuthRequired},
		}
	case KindTimeout:
		return &models.RPCError{
			Code:    models.RPCInternalError,
			Message: e.Message,
			Data:    &models.RPCErrorData{Code: CodeTimeout},
		}
	default:
		return &models.RPCError{Code: models.RPCInternalError, Message: e.Message}
	}
}

// HTTPStatus returns the HTTP status the unary transport uses for this
// error. JSON-RPC errors normally ride on 200; auth and timeout are the
// exceptions.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusOK
	}
}

// ResponseHTTPStatus maps a finished response envelope onto the HTTP
// status for the unary transport.
func ResponseHTTPStatus(resp *models.RPCResponse) int {
	if resp == nil || resp.Error == nil || resp.Error.Data == nil {
		return http.StatusOK
	}
	switch resp.Error.Data.Code {
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusOK
	}
}
