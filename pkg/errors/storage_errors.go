package errors

import (
	"fmt"
)

// StorageOperation names the table-source or mirror step that failed.
type StorageOperation string

const (
	OpConnect StorageOperation = "connect"
	OpQuery   StorageOperation = "query"
	OpDecode  StorageOperation = "decode"
	OpUpload  StorageOperation = "upload"
)

// WrapStorageError wraps a backend failure, recording the backend and the operation in the error context.
func WrapStorageError(err error, backend string, op StorageOperation, message string) *AppError {
	var sentinel error
	code := CodeReadFailed
	switch op {
	case OpConnect:
		sentinel, code = ErrStorageConnectionFailed, CodeConnectionFailed
	case OpUpload:
		sentinel, code = ErrStorageWriteFailed, CodeWriteFailed
	default:
		sentinel = ErrStorageReadFailed
	}

	appErr := WrapError(fmt.Errorf("%w: %v", sentinel, err), ErrorTypeStorage, code, message)
	return appErr.
		WithContext("backend", backend).
		WithContext("operation", string(op))
}

// UnsupportedSource reports a source type the factory does not know.
func UnsupportedSource(sourceType string) *AppError {
	return WrapError(ErrUnsupportedSource, ErrorTypeConfiguration, CodeUnsupportedSource,
		fmt.Sprintf("unsupported table source %q", sourceType))
}
