package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndefinedColumnCarriesSentinel(t *testing.T) {
	err := UndefinedColumn("temp")

	assert.True(t, stderrors.Is(err, ErrUndefinedColumn))
	assert.Equal(t, ErrorTypeWindowing, err.Type)
	assert.Equal(t, CodeUndefinedColumn, err.Code)
	assert.Equal(t, "temp", err.Context["column"])
	assert.Contains(t, err.Error(), `"temp"`)
}

func TestAppErrorIsMatchesTypeAndCode(t *testing.T) {
	a := NewWindowError(ErrInsufficientRows, CodeInsufficientRows, "too short")
	b := NewWindowError(ErrInsufficientRows, CodeInsufficientRows, "other message")
	c := NewCheckpointError(ErrCheckpointNotFound, CodeCheckpointNotFound, "missing")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestWrappedThroughFmt(t *testing.T) {
	inner := NewCheckpointError(ErrCheckpointDirUnavailable, CodeCheckpointDirUnavailable, "no dir")
	outer := fmt.Errorf("fit: %w", inner)

	var appErr *AppError
	require.True(t, stderrors.As(outer, &appErr))
	assert.Equal(t, CodeCheckpointDirUnavailable, appErr.Code)
	assert.True(t, stderrors.Is(outer, ErrCheckpointDirUnavailable))
}

func TestErrorFormatting(t *testing.T) {
	err := NewValidationError(CodeInvalidInput, "bad input")
	assert.Equal(t, "INVALID_INPUT: bad input", err.Error())

	err.WithDetails("row 3")
	assert.Equal(t, "INVALID_INPUT: bad input - row 3", err.Error())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 400, StatusOf(UndefinedColumn("x")))
	assert.Equal(t, 404, StatusOf(NewCheckpointError(ErrCheckpointNotFound, CodeCheckpointNotFound, "x")))
	assert.Equal(t, 503, StatusOf(NewStorageError(CodeConnectionFailed, "x")))
	assert.Equal(t, 500, StatusOf(stderrors.New("plain")))
}

func TestWrapStorageError(t *testing.T) {
	err := WrapStorageError(stderrors.New("dial tcp: refused"), "postgres", OpConnect, "failed to connect")

	assert.True(t, stderrors.Is(err, ErrStorageConnectionFailed))
	assert.Equal(t, CodeConnectionFailed, err.Code)
	assert.Equal(t, "postgres", err.Context["backend"])
	assert.Equal(t, "connect", err.Context["operation"])

	err = WrapStorageError(stderrors.New("bad float"), "csv", OpDecode, "failed to parse")
	assert.True(t, stderrors.Is(err, ErrStorageReadFailed))
	assert.Equal(t, CodeReadFailed, err.Code)
}

func TestUnsupportedSource(t *testing.T) {
	err := UnsupportedSource("mongo")
	assert.True(t, stderrors.Is(err, ErrUnsupportedSource))
	assert.Equal(t, ErrorTypeConfiguration, err.Type)
}
