package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an RPC failure. Each kind maps to one HTTP status and one JSON-RPC code.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindNotFound           Kind = "NOT_FOUND"
	KindMethodNotSupported Kind = "METHOD_NOT_SUPPORTED"
	KindTimeout            Kind = "TIMEOUT"
	KindConflict           Kind = "CONFLICT"
	KindPayloadTooLarge    Kind = "PAYLOAD_TOO_LARGE"
	KindClientClosed       Kind = "CLIENT_CLOSED_REQUEST"
	KindUpstream           Kind = "UPSTREAM_FAILURE"
	KindInternal           Kind = "INTERNAL"
)

var kindStatus = map[Kind]struct {
	status int
	code   int
}{
	KindValidation:         {http.StatusBadRequest, -32600},
	KindUnauthorized:       {http.StatusUnauthorized, -32001},
	KindForbidden:          {http.StatusForbidden, -32003},
	KindNotFound:           {http.StatusNotFound, -32004},
	KindMethodNotSupported: {http.StatusMethodNotAllowed, -32005},
	KindTimeout:            {http.StatusRequestTimeout, -32008},
	KindConflict:           {http.StatusConflict, -32009},
	KindPayloadTooLarge:    {http.StatusRequestEntityTooLarge, -32013},
	KindClientClosed:       {499, -32099},
	KindUpstream:           {http.StatusBadGateway, -32603},
	KindInternal:           {http.StatusInternalServerError, -32603},
}

// HTTPStatus returns the status code for k; unknown kinds map to 500.
func (k Kind) HTTPStatus() int {
	if s, ok := kindStatus[k]; ok {
		return s.status
	}
	return http.StatusInternalServerError
}

// JSONRPCCode returns the JSON-RPC 2.0 style numeric code for k.
func (k Kind) JSONRPCCode() int {
	if s, ok := kindStatus[k]; ok {
		return s.code
	}
	return -32603
}

// FieldError describes one invalid input field. Field is the dotted path of JSON names.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the error type understood by the transport. Message is sent to the client;
// Cause is only logged.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError returns an error of the given kind. An empty message defaults to the kind name.
func NewError(kind Kind, message string) *Error {
	if message == "" {
		message = string(kind)
	}
	return &Error{Kind: kind, Message: message}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// WrapError returns an error of the given kind that keeps cause for logging.
func WrapError(kind Kind, message string, cause error) *Error {
	e := NewError(kind, message)
	e.Cause = cause
	return e
}

// ValidationFailed reports every invalid field at once.
func ValidationFailed(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "input validation failed", Fields: fields}
}

// AsError converts any error into an *Error. Errors that are not already RPC errors are
// reported as INTERNAL with a generic message, except context expiry.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(KindTimeout, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return WrapError(KindClientClosed, "request cancelled", err)
	}
	return WrapError(KindInternal, "internal server error", err)
}

// ErrorKind returns the kind of err, or "" when err is nil.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	return AsError(err).Kind
}
