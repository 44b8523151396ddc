package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeConfiguration indicates bad open/constructor arguments
	ErrorTypeConfiguration ErrorType = "CONFIGURATION"
	// ErrorTypeInvalidArgument indicates an empty or malformed key/value
	ErrorTypeInvalidArgument ErrorType = "INVALID_ARGUMENT"
	// ErrorTypeCorruption indicates persisted framing does not match the record format
	ErrorTypeCorruption ErrorType = "CORRUPTION"
	// ErrorTypeIO indicates an underlying storage operation failed
	ErrorTypeIO ErrorType = "IO_ERROR"
	// ErrorTypeNotFound indicates the requested key was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"
	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// KVError represents a custom error with additional context
type KVError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   string
}

// Error implements the error interface
func (e *KVError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *KVError) Unwrap() error {
	return e.Err
}

// New creates a new KVError
func New(errType ErrorType, message string, err error) *KVError {
	// Capture the caller for diagnostics
	_, file, line, _ := runtime.Caller(1)
	stack := fmt.Sprintf("%s:%d", file, line)

	return &KVError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

// TypeOf returns the type of the outermost KVError in err's chain, or
// ErrorTypeInternal when err carries none.
func TypeOf(err error) ErrorType {
	var kvErr *KVError
	if stderrors.As(err, &kvErr) {
		return kvErr.Type
	}
	return ErrorTypeInternal
}

func is(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	var kvErr *KVError
	return stderrors.As(err, &kvErr) && kvErr.Type == errType
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return is(err, ErrorTypeConfiguration)
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return is(err, ErrorTypeInvalidArgument)
}

// IsCorruption checks if the error is a corruption error
func IsCorruption(err error) bool {
	return is(err, ErrorTypeCorruption)
}

// IsIO checks if the error is an I/O error
func IsIO(err error) bool {
	return is(err, ErrorTypeIO)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return is(err, ErrorTypeNotFound)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return is(err, ErrorTypeInternal)
}

// RecoverError recovers from a panic and converts it to a KVError
func RecoverError(r interface{}) error {
	if r == nil {
		return nil
	}

	var err error
	switch v := r.(type) {
	case error:
		err = v
	case string:
		err = fmt.Errorf("%s", v)
	default:
		err = fmt.Errorf("%v", v)
	}

	return New(ErrorTypeInternal, "recovered from panic", err)
}
