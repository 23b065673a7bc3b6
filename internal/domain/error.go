package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeConnection ErrorCode = "CONNECTION"
	CodeProtocol   ErrorCode = "PROTOCOL"
	CodeOperation  ErrorCode = "OPERATION"
	CodePartial    ErrorCode = "PARTIAL"
	CodeDiscovery  ErrorCode = "DISCOVERY"
	CodeInternal   ErrorCode = "INTERNAL"
)

var (
	ErrServerNotFound     = errors.New("server not found")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrAlreadyConnected   = errors.New("server already connected")
	ErrCoordinatorClosed  = errors.New("coordinator is closed")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrRuntimeUnavailable = errors.New("local runtime unavailable")
	ErrNoActiveThread     = errors.New("no active thread")
)

// Error carries the failure taxonomy across the state boundary. Code
// classifies the failure, Op names the operation that produced it.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewError(code ErrorCode, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: message, Cause: cause}
}

// ConnectionError wraps an open/handshake failure.
func ConnectionError(op string, cause error) *Error {
	return &Error{Code: CodeConnection, Op: op, Cause: cause}
}

// ProtocolError wraps an error response to a specific request.
func ProtocolError(op, message string, cause error) *Error {
	return &Error{Code: CodeProtocol, Op: op, Message: message, Cause: cause}
}

// OperationError wraps a thread or turn scoped failure, isolated from
// other threads.
func OperationError(op string, cause error) *Error {
	return &Error{Code: CodeOperation, Op: op, Cause: cause}
}
