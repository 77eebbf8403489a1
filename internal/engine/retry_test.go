package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvex/runbook/pkg/schema"
)

func TestIsRetryableError_Classification(t *testing.T) {
	retryable := []error{
		schema.NewError(schema.ErrCodeCommandFailed, "exit status 1"),
		schema.NewError(schema.ErrCodeToolFailed, "flaky backend"),
		schema.NewError(schema.ErrCodeTimeout, "deadline hit"),
		context.DeadlineExceeded,
		errors.New("dial tcp: connection refused"),
	}
	for _, err := range retryable {
		assert.True(t, IsRetryableError(err), err.Error())
	}

	deterministic := []error{
		schema.NewError(schema.ErrCodeMissingVariable, "no such variable"),
		schema.NewError(schema.ErrCodeUnsupportedType, "array value"),
		schema.NewError(schema.ErrCodeValidation, "bad workflow"),
		schema.NewError(schema.ErrCodeCondition, "not a boolean"),
		schema.NewError(schema.ErrCodeOutputParse, "no match"),
		schema.NewError(schema.ErrCodePromptAborted, "abandoned"),
		context.Canceled,
	}
	for _, err := range deterministic {
		assert.False(t, IsRetryableError(err), err.Error())
	}

	assert.False(t, IsRetryableError(nil))
}

func TestComputeBackoff_ExponentialCapped(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, ComputeBackoff(1))
	assert.Equal(t, time.Second, ComputeBackoff(2))
	assert.Equal(t, 2*time.Second, ComputeBackoff(3))
	assert.Equal(t, 30*time.Second, ComputeBackoff(10))
	assert.Equal(t, 30*time.Second, ComputeBackoff(100))
}

func TestWaitForBackoff_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForBackoff(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitForBackoff_ZeroDelay(t *testing.T) {
	require.NoError(t, WaitForBackoff(context.Background(), 0))
}
