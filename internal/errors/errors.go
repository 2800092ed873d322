package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"time"
)

// Error types for the hopper index
type ErrorType string

const (
	// Indexing errors
	ErrorTypeIndexing  ErrorType = "indexing"
	ErrorTypeEnumerate ErrorType = "enumerate"

	// Caller errors
	ErrorTypeInput   ErrorType = "input"
	ErrorTypeTimeout ErrorType = "timeout"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypePermission   ErrorType = "permission"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// ErrNoMatch reports that a lookup found nothing. It is an informational
// outcome for the user, never a failure of the index.
var ErrNoMatch = stderrors.New("could not find match")

// IndexingError represents a failed rebuild of one project root
type IndexingError struct {
	Type        ErrorType
	RootPath    string
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewIndexingError creates a new indexing error with context
func NewIndexingError(op string, err error) *IndexingError {
	return &IndexingError{
		Type:       ErrorTypeIndexing,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithRoot adds the project root to the error
func (e *IndexingError) WithRoot(root string) *IndexingError {
	e.RootPath = root
	return e
}

// WithRecoverable marks the error as recoverable
func (e *IndexingError) WithRecoverable(recoverable bool) *IndexingError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *IndexingError) Error() string {
	if e.RootPath != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.RootPath, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *IndexingError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if the rebuild can be retried
func (e *IndexingError) IsRecoverable() bool {
	return e.Recoverable
}

// InputError is a malformed request: wrong arguments, or a root that is not
// an existing directory. Callers see it immediately.
type InputError struct {
	Type      ErrorType
	Argument  string
	Value     string
	Reason    string
	Timestamp time.Time
}

// NewInputError creates a new input error
func NewInputError(argument, value, reason string) *InputError {
	return &InputError{
		Type:      ErrorTypeInput,
		Argument:  argument,
		Value:     value,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *InputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Argument, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Argument, e.Value, e.Reason)
}

// TimeoutError is returned by bounded waits when a project is still updating
// after the configured threshold. It is distinct from other failures so a UI
// can show "still working" instead of "broken".
type TimeoutError struct {
	Type      ErrorType
	RootPath  string
	Waited    time.Duration
	Timestamp time.Time
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(root string, waited time.Duration) *TimeoutError {
	return &TimeoutError{
		Type:      ErrorTypeTimeout,
		RootPath:  root,
		Waited:    waited,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for %s to finish updating", e.Waited.Round(time.Millisecond), e.RootPath)
}

// Timeout lets callers detect the condition through an interface check.
func (e *TimeoutError) Timeout() bool {
	return true
}

// IsTimeout reports whether err is, or wraps, a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return stderrors.As(err, &te)
}

// IsInput reports whether err is, or wraps, an InputError
func IsInput(err error) bool {
	var ie *InputError
	return stderrors.As(err, &ie)
}

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeFileNotFound
	if isPermissionError(err) {
		errorType = ErrorTypePermission
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission)
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}
