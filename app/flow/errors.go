package flow

import (
	"errors"
	"fmt"
)

// Error codes surfaced in the err_code log field.
const (
	CodeValidation = "VALIDATION"
	CodeState      = "STATE"
	CodeStorage    = "STORAGE"
	CodeTransport  = "TRANSPORT"
)

// ValidationError describes rejected user input. Abort marks the fields whose failure
// ends the flow instead of re-prompting.
type ValidationError struct {
	Field  string
	Reason string
	Abort  bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Code implements the router's error code contract.
func (e *ValidationError) Code() string { return CodeValidation }

// StateError reports a session that cannot continue: missing fields at commit or a
// selection that no longer resolves.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string { return fmt.Sprintf("flow state %s: %v", e.Op, e.Err) }

// Unwrap returns the cause.
func (e *StateError) Unwrap() error { return e.Err }

// Code implements the router's error code contract.
func (e *StateError) Code() string { return CodeState }

// StorageError wraps a failed table read or write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

// Unwrap returns the cause.
func (e *StorageError) Unwrap() error { return e.Err }

// Code implements the router's error code contract.
func (e *StorageError) Code() string { return CodeStorage }

// TransportError wraps a failed outbound message. It is logged and never ends a flow.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }

// Unwrap returns the cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Code implements the router's error code contract.
func (e *TransportError) Code() string { return CodeTransport }

var errPanic = errors.New("panic in flow step")

// Reported tells whether err comes from the engine, which has already answered the user.
func Reported(err error) bool {
	var (
		ve *ValidationError
		se *StateError
		st *StorageError
		te *TransportError
	)
	return errors.As(err, &ve) || errors.As(err, &se) || errors.As(err, &st) || errors.As(err, &te)
}

func codeOf(err error) string {
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return "UNKNOWN_ERROR"
}
