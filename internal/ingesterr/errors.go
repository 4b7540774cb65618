// Package ingesterr defines the ingest pipeline's error taxonomy: the small,
// stable set of error kinds the coordinator's submit path can return to a
// caller, each carrying a machine-readable code and a recoverability flag.
package ingesterr

import "fmt"

// Code is a stable string identifying an error kind, suitable as a metrics
// attribute or a structured-log field.
type Code string

const (
	CodeJSON           Code = "json_error"
	CodeInvalidMessage Code = "invalid_message"
	CodeQueueFull      Code = "queue_full"
	CodeTimeout        Code = "timeout"
	CodeTransport      Code = "transport_error"
	CodeConfig         Code = "config_error"
)

// Error is the concrete error type returned by the ingest pipeline's public
// surface. Recoverable reports whether a caller or supervisor may retry the
// operation without corrupting pipeline state.
type Error struct {
	Code        Code
	Message     string
	Recoverable bool
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// JSON builds a JsonError: the byte frame was not valid JSON.
func JSON(cause error) *Error {
	return &Error{Code: CodeJSON, Message: "malformed JSON frame", Recoverable: true, Cause: cause}
}

// InvalidMessage builds an InvalidMessage error: a required field was
// missing or malformed.
func InvalidMessage(reason string) *Error {
	return &Error{Code: CodeInvalidMessage, Message: reason, Recoverable: true}
}

// QueueFull builds a QueueFull error for callers that want it surfaced
// directly (the coordinator itself converts this into a silent drop per its
// propagation policy; this constructor exists for direct callers of the
// queue layer and for tests).
func QueueFull(priority string) *Error {
	return &Error{Code: CodeQueueFull, Message: fmt.Sprintf("%s queue at capacity", priority), Recoverable: true}
}

// Timeout builds a Timeout error. Reserved: nothing in this pipeline
// currently imposes a handler deadline, but the taxonomy carries the slot so
// a future transport can report it without widening the error surface.
func Timeout() *Error {
	return &Error{Code: CodeTimeout, Message: "handler deadline exceeded", Recoverable: true}
}

// Transport builds a TransportError. Reserved: surfaced by an external
// transport adapter, never constructed by this package's own code.
func Transport(cause error) *Error {
	return &Error{Code: CodeTransport, Message: "transport failure", Recoverable: true, Cause: cause}
}

// Config builds a ConfigError: a lifecycle misuse such as a double start.
func Config(reason string) *Error {
	return &Error{Code: CodeConfig, Message: reason, Recoverable: false}
}
