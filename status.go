package embedjs

import (
	"errors"
	"fmt"
)

// Status classifies the outcome of a bridge operation.
type Status int

const (
	OK Status = iota
	// InvalidArgument: wrong handle shape or tag for the operation.
	InvalidArgument
	// TypeMismatch: the value's type does not match the requested target.
	TypeMismatch
	// ResourceExhaustion: allocation failure or a stack/recursion limit.
	ResourceExhaustion
	// ModuleNotFound: resolution exhausted every candidate path.
	ModuleNotFound
	// PendingException: a script exception is active and must be drained.
	PendingException
	// GenericFailure: any other invariant violation.
	GenericFailure
	// EscapeCalledTwice: an escapable scope already escaped a value.
	EscapeCalledTwice
)

var statusNames = map[Status]string{
	OK:                 "ok",
	InvalidArgument:    "invalid argument",
	TypeMismatch:       "type mismatch",
	ResourceExhaustion: "resource exhaustion",
	ModuleNotFound:     "module not found",
	PendingException:   "pending exception",
	GenericFailure:     "generic failure",
	EscapeCalledTwice:  "escape called twice",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Error is returned by every bridge operation that does not succeed.
type Error struct {
	Status Status
	Op     string
	Msg    string
	// ID names the module for ModuleNotFound.
	ID string
}

func (e *Error) Error() string {
	msg := e.Status.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

// Is matches the bare sentinels below by status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.ID == "" && t.Status == e.Status
}

var (
	ErrInvalidArgument    = &Error{Status: InvalidArgument}
	ErrTypeMismatch       = &Error{Status: TypeMismatch}
	ErrResourceExhaustion = &Error{Status: ResourceExhaustion}
	ErrModuleNotFound     = &Error{Status: ModuleNotFound}
	ErrPendingException   = &Error{Status: PendingException}
	ErrGenericFailure     = &Error{Status: GenericFailure}
	ErrEscapeCalledTwice  = &Error{Status: EscapeCalledTwice}
)

// StatusOf returns the status carried by err: OK for nil, GenericFailure
// for errors that did not come from the bridge.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return GenericFailure
}

func newError(op string, s Status, format string, args ...any) *Error {
	return &Error{Status: s, Op: op, Msg: fmt.Sprintf(format, args...)}
}
