package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Layer errors
	ErrLayerInvalid ErrorCode = "LAYER_INVALID"
	ErrLayerRead    ErrorCode = "LAYER_READ"
	ErrLayerWrite   ErrorCode = "LAYER_WRITE"

	// Merge errors
	ErrParse              ErrorCode = "PARSE"
	ErrSerialize          ErrorCode = "SERIALIZE"
	ErrConflictUnresolved ErrorCode = "CONFLICT_UNRESOLVED"
	ErrValidation         ErrorCode = "VALIDATION"
	ErrNotConflicted      ErrorCode = "NOT_CONFLICTED"

	// Paused apply state errors
	ErrStateNotFound ErrorCode = "STATE_NOT_FOUND"
	ErrStateCorrupt  ErrorCode = "STATE_CORRUPT"
	ErrStateStale    ErrorCode = "STATE_STALE"
	ErrStateConflict ErrorCode = "STATE_CONFLICT"
	ErrApplyPaused   ErrorCode = "APPLY_PAUSED"
	ErrLocked        ErrorCode = "LOCKED"

	// FileSystem errors
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess   ErrorCode = "FILE_ACCESS"
	ErrFileWrite    ErrorCode = "FILE_WRITE"
	ErrDirCreate    ErrorCode = "DIR_CREATE"
)

// JinError represents a structured error with code and details
type JinError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *JinError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *JinError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *JinError) Is(target error) bool {
	var targetErr *JinError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new JinError with the given code and message
func New(code ErrorCode, message string) *JinError {
	return &JinError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new JinError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *JinError {
	return &JinError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a JinError
func Wrap(err error, code ErrorCode, message string) *JinError {
	if err == nil {
		return nil
	}
	return &JinError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *JinError {
	if err == nil {
		return nil
	}
	return &JinError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *JinError) WithDetail(key string, value interface{}) *JinError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var jinErr *JinError
	if errors.As(err, &jinErr) {
		return jinErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a JinError
func GetErrorCode(err error) ErrorCode {
	var jinErr *JinError
	if errors.As(err, &jinErr) {
		return jinErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a JinError
func GetErrorDetails(err error) map[string]interface{} {
	var jinErr *JinError
	if errors.As(err, &jinErr) {
		return jinErr.Details
	}
	return nil
}

// FileError ties a failure to the workspace path it happened on. Batch
// operations collect these instead of stopping at the first failure.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// BatchError aggregates per-file failures of a single invocation.
type BatchError struct {
	Op     string
	Errors []*FileError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Error())
	}
	return fmt.Sprintf("%s failed for %d file(s): %s", e.Op, len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes the individual file errors to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, fe := range e.Errors {
		errs[i] = fe
	}
	return errs
}
