// Package errs defines the error taxonomy shared by the acquisition
// runtime and all driver and format plug-ins.
//
// Every failure surfaced across a package boundary carries a Code. Callers
// match on codes with errors.Is against the package sentinels, or extract
// the code with CodeOf. Bug-coded errors indicate a violated internal
// invariant (ownership misuse, double bind, use of a destroyed parent);
// the runtime aborts the current operation on Bug but never panics
// across the API boundary.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies an error.
type Code int

const (
	// OK indicates no error.
	OK Code = 0

	// Unspecified is a generic failure with no more precise code.
	Unspecified Code = -1

	// Malloc indicates resource exhaustion.
	Malloc Code = -2

	// Arg indicates a bad argument or an out-of-range value.
	Arg Code = -3

	// Bug indicates a violated internal invariant.
	Bug Code = -4

	// SampleRate indicates an invalid sample rate.
	SampleRate Code = -5

	// NotSupported indicates an operation or key not implemented for
	// the target object.
	NotSupported Code = -6

	// DeviceClosed indicates an operation that requires an open device.
	DeviceClosed Code = -7

	// Timeout indicates an operation that did not complete in time.
	Timeout Code = -8

	// ChannelGroupRequired indicates a config operation that needs a
	// channel group it did not receive.
	ChannelGroupRequired Code = -9

	// ChannelGroupUnexpected indicates a config operation that received
	// a channel group it cannot use.
	ChannelGroupUnexpected Code = -10

	// IO indicates an underlying transport failure.
	IO Code = -11

	// DataInvalid indicates malformed or unparseable data.
	DataInvalid Code = -12
)

// String returns a short human-readable description of the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "no error"
	case Unspecified:
		return "generic error"
	case Malloc:
		return "resource allocation failed"
	case Arg:
		return "invalid argument"
	case Bug:
		return "internal bug"
	case SampleRate:
		return "invalid sample rate"
	case NotSupported:
		return "not supported"
	case DeviceClosed:
		return "device closed but must be open"
	case Timeout:
		return "timeout"
	case ChannelGroupRequired:
		return "channel group required"
	case ChannelGroupUnexpected:
		return "channel group not expected"
	case IO:
		return "input/output error"
	case DataInvalid:
		return "data is invalid"
	default:
		return "unknown error"
	}
}

// Sentinel errors, one per code, for use with errors.Is. Each matches any
// error in the taxonomy carrying the same code.
var (
	ErrUnspecified            = &E{Code: Unspecified}
	ErrMalloc                 = &E{Code: Malloc}
	ErrArg                    = &E{Code: Arg}
	ErrBug                    = &E{Code: Bug}
	ErrSampleRate             = &E{Code: SampleRate}
	ErrNotSupported           = &E{Code: NotSupported}
	ErrDeviceClosed           = &E{Code: DeviceClosed}
	ErrTimeout                = &E{Code: Timeout}
	ErrChannelGroupRequired   = &E{Code: ChannelGroupRequired}
	ErrChannelGroupUnexpected = &E{Code: ChannelGroupUnexpected}
	ErrIO                     = &E{Code: IO}
	ErrDataInvalid            = &E{Code: DataInvalid}
)

// E is an error carrying a taxonomy code, the operation that failed, an
// optional message and an optional wrapped cause.
type E struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *E) Error() string {
	s := e.Code.String()
	if e.Msg != "" {
		s = e.Msg
	}
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the wrapped cause, if any.
func (e *E) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *E with the same code. This makes
// errors.Is(err, errs.ErrBug) match every Bug-coded error.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New returns an error with the given code, operation and message.
func New(code Code, op, msg string) error {
	return &E{Code: code, Op: op, Msg: msg}
}

// Newf returns an error with the given code, operation and formatted message.
func Newf(code Code, op, format string, args ...any) error {
	return &E{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and operation. Returns nil if err is nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{Code: code, Op: op, Err: err}
}

// Bugf returns a Bug-coded error for a violated internal invariant.
func Bugf(op, format string, args ...any) error {
	return Newf(Bug, op, format, args...)
}

// Argf returns an Arg-coded error for a bad argument.
func Argf(op, format string, args ...any) error {
	return Newf(Arg, op, format, args...)
}

// CodeOf returns the taxonomy code carried by err. A nil error is OK;
// an error outside the taxonomy is Unspecified.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return Unspecified
}
