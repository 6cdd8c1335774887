// Package errors provides classified error handling for mavrouter components.
// Errors are tagged transient, invalid or fatal so callers can decide between
// retrying, rejecting the request, or giving up on a resource.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors caused by the caller: bad input, unknown names
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors for the resource involved
	ErrorFatal
)

var classNames = map[ErrorClass]string{
	ErrorTransient: "transient",
	ErrorInvalid:   "invalid",
	ErrorFatal:     "fatal",
}

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	if name, ok := classNames[ec]; ok {
		return name
	}
	return "unknown"
}

// Link registry errors
var (
	ErrDuplicateName = errors.New("link name already registered")
	ErrUnknownLink   = errors.New("unknown link")
	ErrOpenFailed    = errors.New("transport open failed")
	ErrRoutingCycle  = errors.New("routing table would contain a cycle")
)

// Transport errors
var (
	ErrDeviceUnavailable = errors.New("serial device unavailable")
	ErrBindFailed        = errors.New("udp bind failed")
	ErrNotOpen           = errors.New("transport not open")
	ErrNoPeer            = errors.New("no udp peer known")
)

// Protocol and aggregation errors
var (
	ErrDecodeFailed  = errors.New("frame decode failed")
	ErrUnattributed  = errors.New("message cannot be attributed to an identity")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNotFound      = errors.New("not found")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Wrap adds context following the pattern "component.method: action failed: %w".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, err, component, method, action)
}

func wrapClassified(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// classOf returns the class of the outermost ClassifiedError in the chain.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}

	if errors.Is(err, ErrNoPeer) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsInvalid reports whether err was caused by the caller.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorInvalid
	}
	return errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrUnknownLink) ||
		errors.Is(err, ErrRoutingCycle) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrDecodeFailed) ||
		errors.Is(err, ErrUnattributed)
}

// IsFatal reports whether err means the resource involved cannot be used.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}

// Classify returns the error class for an error. Unknown errors are treated
// as transient so readers keep polling.
func Classify(err error) ErrorClass {
	switch {
	case IsInvalid(err):
		return ErrorInvalid
	case IsFatal(err):
		return ErrorFatal
	default:
		return ErrorTransient
	}
}

// Is, As and New mirror the standard library so callers only import one errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As mirrors errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

// New mirrors errors.New.
func New(text string) error { return errors.New(text) }
