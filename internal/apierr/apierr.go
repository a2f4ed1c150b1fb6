// Package apierr defines the error taxonomy shared by the router, session,
// auth, and HTTP layers, and its mapping onto HTTP status codes.
package apierr

import "fmt"

// Error is a taxonomy error: a stable code, its HTTP status, and a
// human-readable message. Two *Error values compare equal under errors.Is
// when their Code matches, regardless of Message, so callers can do
// errors.Is(err, apierr.ErrToolNotFound) after wrapping with a specific message.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is implements the errors.Is comparison contract by Code rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap produces a new *Error carrying sentinel's Code and Status with a
// specific message.
func Wrap(sentinel *Error, format string, args ...any) *Error {
	return &Error{Code: sentinel.Code, Status: sentinel.Status, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for the taxonomy in spec §7.
var (
	ErrUnauthenticated    = &Error{Code: "MISSING_AUTH_HEADER", Status: 401, Message: "authentication required"}
	ErrForbidden          = &Error{Code: "FORBIDDEN", Status: 403, Message: "forbidden"}
	ErrTenantUnknownDesc  = &Error{Code: "TENANT_UNKNOWN", Status: 404, Message: "unknown tenant"}
	ErrTenantUnknownAPI   = &Error{Code: "TENANT_UNKNOWN", Status: 403, Message: "unknown tenant"}
	ErrToolNotFound       = &Error{Code: "TOOL_NOT_FOUND", Status: 404, Message: "tool not found"}
	ErrToolExecutionError = &Error{Code: "TOOL_EXECUTION_ERROR", Status: 500, Message: "tool execution failed"}
	ErrTimeout            = &Error{Code: "TIMEOUT", Status: 504, Message: "invocation timed out"}
	ErrWorkerDisconnected = &Error{Code: "WORKER_DISCONNECTED", Status: 502, Message: "worker disconnected"}
	ErrWorkerReplaced     = &Error{Code: "WORKER_REPLACED", Status: 502, Message: "worker session replaced"}
	ErrClientCancelled    = &Error{Code: "CLIENT_CANCELLED", Status: 499, Message: "client cancelled request"}
	ErrInvalidPayload     = &Error{Code: "INVALID_PAYLOAD", Status: 400, Message: "invalid payload"}
	ErrServerShutdown     = &Error{Code: "SERVER_SHUTDOWN", Status: 503, Message: "server shutting down"}
	ErrInternal           = &Error{Code: "INTERNAL", Status: 500, Message: "internal error"}
)
