package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindOf(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"validation", NewValidationError("wf", "cycle"), KindValidation},
		{"workflow timeout", NewWorkflowTimeoutError("wf", "deadline"), KindTimeout},
		{"cancelled", NewCancelledError("wf"), KindCancelled},
		{"node not found", NewNodeError(KindNotFound, "n1", "t", "missing", ErrNotFound), KindNotFound},
		{"node timeout", NewNodeTimeoutError("n1", "t", ErrTimeout), KindTimeout},
		{"wrapped node error", fmt.Errorf("outer: %w", NewNodeError(KindConfiguration, "n1", "t", "bad", nil)), KindConfiguration},
		{"plain error", errors.New("boom"), KindExecution},
		{"sentinel timeout", fmt.Errorf("op: %w", ErrTimeout), KindTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ErrorKindOf(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(NewValidationError("wf", "bad graph")))
	assert.False(t, IsRetryable(NewNodeError(KindConfiguration, "n1", "t", "bad input", nil)))
	assert.False(t, IsRetryable(NewCancelledError("wf")))

	assert.True(t, IsRetryable(errors.New("transient")))
	assert.True(t, IsRetryable(NewNodeTimeoutError("n1", "t", ErrTimeout)))
	assert.True(t, IsRetryable(NewNodeError(KindExecution, "n1", "t", "boom", nil)))
	assert.True(t, IsRetryable(NewNodeError(KindNotFound, "n1", "t", "missing", ErrNotFound)))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	nodeErr := NewNodeError(KindExecution, "n1", "node.type", "failed", inner)

	assert.True(t, errors.Is(nodeErr, inner))
	assert.Contains(t, nodeErr.Error(), "n1")
	assert.Contains(t, nodeErr.Error(), "node.type")

	wfErr := NewWorkflowTimeoutError("wf", "deadline exceeded")
	assert.True(t, errors.Is(wfErr, ErrTimeout))
}

func TestValidationErrorCapturesStack(t *testing.T) {
	err := NewValidationError("wf", "cycle detected")
	assert.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Stack, "errors_test")
}

func TestIsTimeoutAndCancelled(t *testing.T) {
	assert.True(t, IsTimeout(NewNodeTimeoutError("n", "t", nil)))
	assert.True(t, IsTimeout(fmt.Errorf("%w", ErrTimeout)))
	assert.False(t, IsTimeout(errors.New("other")))

	assert.True(t, IsCancelled(NewCancelledError("wf")))
	assert.False(t, IsCancelled(errors.New("other")))
}

func TestStackOf(t *testing.T) {
	assert.Empty(t, StackOf(errors.New("plain")))
	assert.NotEmpty(t, StackOf(NewNodeError(KindExecution, "n", "t", "boom", nil)))
}
