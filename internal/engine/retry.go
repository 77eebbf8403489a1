package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/calvex/runbook/pkg/schema"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// IsRetryableError classifies whether a step failure should be retried.
// Retryable by default: process exits, timeouts, network errors.
// Non-retryable: unresolved placeholders, validation errors, cancellation.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Step timeout is retryable; run cancellation means we are shutting down.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var rbErr *schema.RunbookError
	if errors.As(err, &rbErr) {
		switch rbErr.Code {
		case schema.ErrCodeMissingVariable,
			schema.ErrCodeUnsupportedType,
			schema.ErrCodeValidation,
			schema.ErrCodeCondition,
			schema.ErrCodeToolNotFound,
			schema.ErrCodeWorkflowNotFound,
			schema.ErrCodeOutputParse,
			schema.ErrCodeCancelled,
			schema.ErrCodePromptAborted:
			// Deterministic failures: retrying reproduces the same result.
			return false
		}
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String heuristics for common retryable patterns.
	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return true
}

// ComputeBackoff calculates the delay before retry attempt n (1-based):
// exponential from the base delay, capped.
func ComputeBackoff(attempt int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// WaitForBackoff sleeps for the computed backoff duration or returns early
// if the context is cancelled.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
