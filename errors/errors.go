package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass says how a caller should react to an error.
type ErrorClass int

const (
	// ErrorTransient may clear up on its own; log it and retry or carry on.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid comes from bad input or configuration; retrying won't help.
	ErrorInvalid
	// ErrorFatal means the component cannot do useful work any more.
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinels shared by the bridge's components.
var (
	ErrAlreadyStarted = errors.New("component already started")

	ErrDeviceUnavailable = errors.New("serial device unavailable")
	ErrDeviceClosed      = errors.New("serial device closed")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageFull        = errors.New("storage full")

	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrMissingConfig also matches ErrInvalidConfig.
	ErrMissingConfig = fmt.Errorf("%w: missing required value", ErrInvalidConfig)
)

// sentinelClasses is consulted with errors.Is, in order.
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrDeviceUnavailable, ErrorTransient},
	{ErrDeviceClosed, ErrorTransient},
	{ErrConnectionLost, ErrorTransient},
	{ErrConnectionTimeout, ErrorTransient},
	{ErrStorageUnavailable, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{ErrInvalidConfig, ErrorFatal},
	{ErrStorageFull, ErrorFatal},
}

// messageHints classify plain errors from drivers that don't wrap a
// sentinel. Fatal hints are checked first.
var messageHints = []struct {
	class    ErrorClass
	patterns []string
}{
	{ErrorFatal, []string{"fatal", "panic", "invalid config", "missing config", "disk full"}},
	{ErrorTransient, []string{
		"timeout", "connection", "temporary", "unavailable", "busy",
		"no such file", "device not configured", "access is denied",
	}},
}

// ClassifiedError carries a class and the component context of an error.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf reports the class of err and whether anything recognised it.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range messageHints {
		for _, p := range hint.patterns {
			if strings.Contains(msg, p) {
				return hint.class, true
			}
		}
	}
	return ErrorTransient, false
}

func is(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}
	c, ok := classOf(err)
	return ok && c == class
}

// IsTransient reports whether err is known to be transient.
func IsTransient(err error) bool { return is(err, ErrorTransient) }

// IsInvalid reports whether err comes from bad input or configuration.
func IsInvalid(err error) bool { return is(err, ErrorInvalid) }

// IsFatal reports whether err should stop the component.
func IsFatal(err error) bool { return is(err, ErrorFatal) }

// Classify returns the class of err. Unrecognised errors are transient so
// callers may retry.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	c, _ := classOf(err)
	return c
}

// Wrap adds context in the form "component.method: action failed: err".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
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

// WrapTransient wraps err with context and marks it transient.
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it invalid.
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err with context and marks it fatal.
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}
