package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDo_SucceedsAfterRetryableErrors(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: 0}

	result, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", &HTTPError{Status: 503}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRetryDo_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: 0}

	_, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", &HTTPError{Status: 400}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryDo_ExhaustsAttemptsAndWrapsLastError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, BaseDelay: 0}
	sentinel := errors.New("boom")

	_, err := RetryDo(context.Background(), cfg, func() (string, error) {
		return "", sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestHTTPError_RetryableClassification(t *testing.T) {
	assert.True(t, (&HTTPError{Status: 429}).Retryable())
	assert.True(t, (&HTTPError{Status: 503}).Retryable())
	assert.False(t, (&HTTPError{Status: 400}).Retryable())
	assert.False(t, (&HTTPError{Status: 404}).Retryable())
}
