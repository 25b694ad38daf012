package service

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrTransport        = errors.New("transport error")
	ErrProtocol         = errors.New("protocol error")
	ErrServer           = errors.New("server error")
	ErrAuth             = errors.New("auth error")
	ErrAlreadyCompleted = errors.New("already completed")
)

// Error is a failure reported by a Service or by the sync layer.
// Error() returns the message meant for display.
type Error struct {
	Kind    error  // one of the Err* kinds above
	Op      string // create, toggle, delete, list
	Status  int    // HTTP status when the failure came from a response
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError reports input rejected by the server.
func ValidationError(op, msg string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Status: 400, Message: msg}
}

// ConflictError reports a target already in the requested state.
func ConflictError(op, msg string) *Error {
	return &Error{Kind: ErrConflict, Op: op, Status: 409, Message: msg}
}

// NotFoundError reports a stale or unknown id.
func NotFoundError(op, msg string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Status: 404, Message: msg}
}

// TransportError wraps a network failure.
func TransportError(op string, err error) *Error {
	return &Error{Kind: ErrTransport, Op: op, Message: fmt.Sprintf("%s: request failed: %v", op, err), Err: err}
}

// ProtocolError reports a response that could not be understood.
func ProtocolError(op string, status int, detail string) *Error {
	return &Error{Kind: ErrProtocol, Op: op, Status: status, Message: fmt.Sprintf("%s: malformed response (status %d): %s", op, status, detail)}
}

// ServerError reports any other non-success response carrying a message.
func ServerError(op string, status int, msg string) *Error {
	return &Error{Kind: ErrServer, Op: op, Status: status, Message: msg}
}

// AuthError reports rejected or missing credentials (401/403).
func AuthError(op string, status int, msg string) *Error {
	return &Error{Kind: ErrAuth, Op: op, Status: status, Message: msg}
}

// AlreadyCompletedError is raised locally before a toggle reaches the network.
func AlreadyCompletedError(id string) *Error {
	return &Error{Kind: ErrAlreadyCompleted, Op: "toggle", Message: "Todo is already completed", Err: fmt.Errorf("item %s", id)}
}

// KindOf returns the kind of err, or nil if err is not an *Error.
func KindOf(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return nil
}
