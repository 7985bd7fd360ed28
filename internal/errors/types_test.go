package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewRetrievalError("vector search failed").WithCause(cause)

	assert.Equal(t, "vector search failed: connection refused", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestGetAppError_WrapsUnknownErrors(t *testing.T) {
	plain := fmt.Errorf("something broke")

	appErr := GetAppError(plain)

	assert.Equal(t, ErrCodeInternalServer, appErr.Code)
	assert.Equal(t, 500, appErr.HTTPCode)
	assert.Equal(t, plain, appErr.Cause)
}

func TestGetAppError_PreservesWrappedAppError(t *testing.T) {
	inner := NewDocumentNotReadyError("ingesting")
	wrapped := fmt.Errorf("request failed: %w", inner)

	appErr := GetAppError(wrapped)

	assert.Equal(t, ErrCodeDocumentNotReady, appErr.Code)
	assert.Equal(t, 409, appErr.HTTPCode)
}

func TestIsCode(t *testing.T) {
	err := NewIngestionError("extraction failed")

	assert.True(t, IsCode(err, ErrCodeIngestionFailed))
	assert.False(t, IsCode(err, ErrCodeValidationFailed))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrCodeIngestionFailed))
	assert.False(t, IsCode(nil, ErrCodeIngestionFailed))
}

func TestErrorTaxonomyHTTPCodes(t *testing.T) {
	assert.Equal(t, 400, NewValidationError("x").HTTPCode)
	assert.Equal(t, 404, NewNotFoundError("document").HTTPCode)
	assert.Equal(t, 409, NewDocumentNotReadyError("failed").HTTPCode)
	assert.Equal(t, 422, NewIngestionError("x").HTTPCode)
	assert.Equal(t, 502, NewRetrievalError("x").HTTPCode)
	assert.Equal(t, 504, NewGenerationTimeoutError().HTTPCode)
	assert.Equal(t, 500, NewConsistencyGuardError("x").HTTPCode)

	// 重试语义
	assert.True(t, NewIngestionError("x").Retryable)
	assert.True(t, NewRetrievalError("x").Retryable)
	assert.False(t, NewValidationError("x").Retryable)
}
