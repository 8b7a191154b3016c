package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Windowing errors
	ErrInvalidGeometry  = errors.New("invalid window geometry")
	ErrUndefinedColumn  = errors.New("undefined column")
	ErrColumnMismatch   = errors.New("column mismatch between tables")
	ErrInsufficientRows = errors.New("table shorter than window")
	ErrShapeMismatch    = errors.New("tensor shape mismatch")
	ErrInvalidTable     = errors.New("invalid table")

	// Training errors
	ErrTrainingFailed = errors.New("model training failed")
	ErrEmptyDataset   = errors.New("dataset produced no batches")
	ErrNonFiniteLoss  = errors.New("loss is not finite")

	// Checkpoint errors
	ErrCheckpointDirUnavailable = errors.New("checkpoint directory unavailable")
	ErrCheckpointWriteFailed    = errors.New("checkpoint write failed")
	ErrCheckpointNotFound       = errors.New("checkpoint not found")
	ErrCheckpointCorrupt        = errors.New("checkpoint corrupt")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageReadFailed       = errors.New("storage read failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrUnsupportedSource       = errors.New("unsupported table source")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeWindowing     ErrorType = "windowing"
	ErrorTypeTraining      ErrorType = "training"
	ErrorTypeCheckpoint    ErrorType = "checkpoint"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return WrapError(ErrInvalidConfiguration, ErrorTypeConfiguration, code, message)
}

// NewWindowError creates a windowing error carrying one of the windowing sentinels
func NewWindowError(cause error, code, message string) *AppError {
	return WrapError(cause, ErrorTypeWindowing, code, message)
}

// NewTrainingError creates a training error
func NewTrainingError(cause error, code, message string) *AppError {
	return WrapError(cause, ErrorTypeTraining, code, message)
}

// NewCheckpointError creates a checkpoint error
func NewCheckpointError(cause error, code, message string) *AppError {
	return WrapError(cause, ErrorTypeCheckpoint, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// UndefinedColumn reports a column name absent from a table's column index.
func UndefinedColumn(name string) *AppError {
	return NewWindowError(ErrUndefinedColumn, CodeUndefinedColumn,
		fmt.Sprintf("column %q is not defined", name)).WithContext("column", name)
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation, ErrorTypeWindowing:
		return 400
	case ErrorTypeCheckpoint:
		return 404
	case ErrorTypeConfiguration, ErrorTypeStorage:
		return 503
	default:
		return 500
	}
}

// StatusOf returns the HTTP status associated with err, 500 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return 500
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput = "INVALID_INPUT"
	CodeInvalidTable = "INVALID_TABLE"
	CodeOutOfRange   = "OUT_OF_RANGE"

	// Windowing error codes
	CodeInvalidGeometry  = "INVALID_GEOMETRY"
	CodeUndefinedColumn  = "UNDEFINED_COLUMN"
	CodeDuplicateColumn  = "DUPLICATE_COLUMN"
	CodeColumnMismatch   = "COLUMN_MISMATCH"
	CodeInsufficientRows = "INSUFFICIENT_ROWS"
	CodeShapeMismatch    = "SHAPE_MISMATCH"

	// Training error codes
	CodeTrainingFailed = "TRAINING_FAILED"
	CodeEmptyDataset   = "EMPTY_DATASET"
	CodeNonFiniteLoss  = "NON_FINITE_LOSS"

	// Checkpoint error codes
	CodeCheckpointDirUnavailable = "CHECKPOINT_DIR_UNAVAILABLE"
	CodeCheckpointWriteFailed    = "CHECKPOINT_WRITE_FAILED"
	CodeCheckpointNotFound       = "CHECKPOINT_NOT_FOUND"
	CodeCheckpointCorrupt        = "CHECKPOINT_CORRUPT"

	// Storage error codes
	CodeConnectionFailed  = "CONNECTION_FAILED"
	CodeReadFailed        = "READ_FAILED"
	CodeWriteFailed       = "WRITE_FAILED"
	CodeUnsupportedSource = "UNSUPPORTED_SOURCE"

	// Configuration error codes
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeConfigLoad    = "CONFIG_LOAD_FAILED"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
