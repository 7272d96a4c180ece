// Package exception provides the error types used by the extraction pipeline.
// Every failure is a BatchError carrying one of the failure kinds below, so callers classify
// errors with errors.Is and the retry and skip policies read the retryable and skippable flags.
package exception

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Failure kind names. They are also the names under which the kinds are registered,
// so they can be referenced from retry and skip configuration.
const (
	EnumerationFailure = "EnumerationFailure"
	FetchFailure       = "FetchFailure"
	DecodeFailure      = "DecodeFailure"
	SinkFailure        = "SinkFailure"
	ConfigurationError = "ConfigurationError"
)

var (
	// ErrEnumeration marks listing or walk failures. Retried with backoff, then fatal.
	ErrEnumeration = errors.New(EnumerationFailure)
	// ErrFetch marks record transfer failures. The record is skipped and counted.
	ErrFetch = errors.New(FetchFailure)
	// ErrDecode marks malformed or unreadable records.
	ErrDecode = errors.New(DecodeFailure)
	// ErrSink marks write or upload failures of an output batch.
	ErrSink = errors.New(SinkFailure)
	// ErrConfiguration marks invalid options. Always fatal, reported before any I/O.
	ErrConfiguration = errors.New(ConfigurationError)
	// ErrArtifactExists is returned when publishing would overwrite an existing artifact.
	ErrArtifactExists = errors.New("artifact name collision")
)

// errorRegistry maps names usable in configuration to sentinel errors compared with errors.Is.
var errorRegistry = make(map[string]error)

var registryMutex sync.RWMutex

// RegisterErrorType registers an error prototype under name.
// It panics if name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name is registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the error type produced by every pipeline module.
type BatchError struct {
	// Module is the pipeline module where the error occurred (e.g. "source", "fetch", "decode", "sink", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped underlying error, if any.
	OriginalErr error
	// Kind is one of the ErrEnumeration, ErrFetch, ErrDecode, ErrSink, ErrConfiguration sentinels, or nil.
	Kind error

	isRetryable bool
	isSkippable bool

	// StackTrace is the stack at the time of creation, for debugging.
	StackTrace string
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewBatchError creates a BatchError without a failure kind.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf creates a BatchError using a format string.
// Optional trailing arguments are extracted from the end of a, in this order:
// [originalErr error], then [isRetryable bool], then [isSkippable bool].
// The remaining arguments are used for fmt.Sprintf.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	isRetryable := false
	isSkippable := false
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isRetryable = b
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isSkippable = b
			args = args[:len(args)-1]
		}
	}

	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewEnumerationFailure reports a listing or walk error. It is retryable; the enumeration
// retry budget decides when it becomes fatal.
func NewEnumerationFailure(message string, err error) *BatchError {
	be := NewBatchError("source", message, err, false, true)
	be.Kind = ErrEnumeration
	return be
}

// NewFetchFailure reports a transfer error for one record. It is skippable and retryable.
func NewFetchFailure(recordID string, err error) *BatchError {
	be := NewBatchError("fetch", fmt.Sprintf("failed to fetch record '%s'", recordID), err, true, true)
	be.Kind = ErrFetch
	return be
}

// NewDecodeFailure reports a malformed or unreadable record. It is skippable and never retried.
func NewDecodeFailure(recordID, reason string, err error) *BatchError {
	be := NewBatchError("decode", fmt.Sprintf("failed to decode record '%s': %s", recordID, reason), err, true, false)
	be.Kind = ErrDecode
	return be
}

// NewSinkFailure reports a write or upload error for an output batch.
func NewSinkFailure(message string, err error, isRetryable bool) *BatchError {
	be := NewBatchError("sink", message, err, false, isRetryable)
	be.Kind = ErrSink
	return be
}

// NewConfigurationError reports an invalid option. It is neither retryable nor skippable.
func NewConfigurationError(format string, a ...interface{}) *BatchError {
	be := NewBatchError("config", fmt.Sprintf(format, a...), nil, false, false)
	be.Kind = ErrConfiguration
	return be
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap exposes both the failure kind and the original error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.OriginalErr != nil {
		errs = append(errs, e.OriginalErr)
	}
	return errs
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// AsBatchError returns the first BatchError in err's chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsBatchError reports whether err's chain contains a BatchError.
func IsBatchError(err error) bool {
	_, ok := AsBatchError(err)
	return ok
}

// IsTemporary reports whether err is worth retrying. A BatchError's retryable flag wins;
// otherwise timeouts, refused connections and unexpected EOFs are treated as temporary.
// Cancellation is never temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if be, ok := AsBatchError(err); ok {
		return be.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || os.IsTimeout(err) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// IsFatal reports whether err can be neither retried nor skipped.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrArtifactExists) {
		return true
	}
	if be, ok := AsBatchError(err); ok {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid argument") ||
		strings.Contains(errStr, "permission denied")
}

// IsErrorOfType checks if err matches errorTypeName. It checks, in order, registered sentinel
// errors (errors.Is), a substring of each message in the chain, and the Go type name.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	targetError, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, targetError) {
		return true
	}

	var walk func(e error) bool
	walk = func(e error) bool {
		if e == nil {
			return false
		}
		if strings.Contains(e.Error(), errorTypeName) {
			return true
		}
		if errType := reflect.TypeOf(e); errType != nil {
			if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
				return true
			}
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if walk(inner) {
					return true
				}
			}
		case interface{ Unwrap() error }:
			return walk(u.Unwrap())
		}
		return false
	}
	return walk(err)
}

// KindName returns the registered name of err's failure kind, or "" if it has none.
func KindName(err error) string {
	for _, name := range []string{EnumerationFailure, FetchFailure, DecodeFailure, SinkFailure, ConfigurationError} {
		registryMutex.RLock()
		target := errorRegistry[name]
		registryMutex.RUnlock()
		if errors.Is(err, target) {
			return name
		}
	}
	return ""
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := AsBatchError(err); ok {
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType(EnumerationFailure, ErrEnumeration)
	RegisterErrorType(FetchFailure, ErrFetch)
	RegisterErrorType(DecodeFailure, ErrDecode)
	RegisterErrorType(SinkFailure, ErrSink)
	RegisterErrorType(ConfigurationError, ErrConfiguration)

	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("io.ErrUnexpectedEOF", io.ErrUnexpectedEOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("os.ErrNotExist", os.ErrNotExist)
}
