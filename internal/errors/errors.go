// Package errors provides the structured error type used across nutrisage.
// Every error carries a category, a code, a message and optional details so
// that operators can diagnose a failed run without re-reading the dataset.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory classifies errors by the stage that raised them.
type ErrorCategory string

const (
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategorySink       ErrorCategory = "SINK"
	ErrCategorySchema     ErrorCategory = "SCHEMA"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Config codes
	CodeEmptyDefinition  = "EMPTY_DEFINITION"
	CodeDuplicateColumn  = "DUPLICATE_COLUMN"
	CodeUnknownKind      = "UNKNOWN_KIND"
	CodeMissingTarget    = "MISSING_TARGET"
	CodeInvalidSetting   = "INVALID_SETTING"
	CodeDefinitionFormat = "DEFINITION_FORMAT"

	// Validation codes
	CodeColumnMismatch    = "COLUMN_MISMATCH"
	CodePartitionMismatch = "PARTITION_MISMATCH"
	CodeTypeMismatch      = "TYPE_MISMATCH"
	CodeEmptyDataset      = "EMPTY_DATASET"
	CodeNoSchema          = "NO_SCHEMA"

	// Sink codes
	CodeAppendFailed = "APPEND_FAILED"

	// Schema codes
	CodeMissingColumn = "MISSING_COLUMN"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeListFailed     = "LIST_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Detail keys used by validation and schema errors.
const (
	DetailMissing    = "missing"
	DetailExtra      = "extra"
	DetailTypeErrors = "type_errors"
	DetailColumns    = "columns"
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string. Details are appended in key order.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s:%s] %s", e.Category, e.Code, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, e.Details[k])
		}
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	e := New(category, code, message)
	e.Cause = cause
	return e
}

// WithDetails returns a copy of the error with additional details merged in.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// StringsDetail returns a string-list detail, or nil when absent.
func (e *Error) StringsDetail(key string) []string {
	v, _ := e.Details[key].([]string)
	return v
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// As extracts the first *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Upload and download failures are transient; sink and validation failures
// are reported to the operator as is.
func isRetryable(category ErrorCategory, code string) bool {
	if category != ErrCategoryStorage {
		return false
	}
	return code == CodeUploadFailed || code == CodeDownloadFailed
}

// Convenience constructors for the error taxonomy.

func NewConfigError(code, message string) *Error {
	return New(ErrCategoryConfig, code, message)
}

func WrapConfigError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryConfig, code, message, cause)
}

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewSinkWriteError(message string, cause error) *Error {
	return Wrap(ErrCategorySink, CodeAppendFailed, message, cause)
}

func NewSchemaError(message string, missing []string) *Error {
	return New(ErrCategorySchema, CodeMissingColumn, message).
		WithDetails(map[string]interface{}{DetailMissing: missing})
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool { return GetCategory(err) == ErrCategoryConfig }

// IsValidationError reports whether err is a dataset validation error.
func IsValidationError(err error) bool { return GetCategory(err) == ErrCategoryValidation }

// IsSinkWriteError reports whether err is a sink append failure.
func IsSinkWriteError(err error) bool { return GetCategory(err) == ErrCategorySink }

// IsSchemaError reports whether err is a tabular schema error.
func IsSchemaError(err error) bool { return GetCategory(err) == ErrCategorySchema }
