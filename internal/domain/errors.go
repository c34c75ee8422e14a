package domain

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timeout")
	ErrCancelled          = errors.New("execution cancelled")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExpired  = errors.New("credential expired")
	ErrTypeInactive       = errors.New("node type inactive")
	ErrStoreClosed        = errors.New("store closed")
	ErrEngineBusy         = errors.New("engine at capacity")
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindExecution     ErrorKind = "execution"
	KindTimeout       ErrorKind = "timeout"
	KindNotFound      ErrorKind = "not_found"
	KindCancelled     ErrorKind = "cancelled"
)

// WorkflowError is a run-level failure: validation before any node executes,
// the workflow deadline tripping at a stage boundary, or cancellation.
type WorkflowError struct {
	Kind       ErrorKind
	WorkflowID string
	Message    string
	Stack      string
	Err        error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow %s: %s: %v", e.WorkflowID, e.Message, e.Err)
	}
	return fmt.Sprintf("workflow %s: %s", e.WorkflowID, e.Message)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func NewValidationError(workflowID, message string) *WorkflowError {
	return &WorkflowError{
		Kind:       KindValidation,
		WorkflowID: workflowID,
		Message:    message,
		Stack:      CaptureStack(2),
	}
}

func NewWorkflowTimeoutError(workflowID string, message string) *WorkflowError {
	return &WorkflowError{
		Kind:       KindTimeout,
		WorkflowID: workflowID,
		Message:    message,
		Err:        ErrTimeout,
	}
}

func NewCancelledError(workflowID string) *WorkflowError {
	return &WorkflowError{
		Kind:       KindCancelled,
		WorkflowID: workflowID,
		Message:    "execution cancelled",
		Err:        ErrCancelled,
	}
}

// NodeError is a single-node failure surfaced to the stage barrier once
// retries are exhausted or the error kind is not retryable.
type NodeError struct {
	Kind     ErrorKind
	NodeID   string
	NodeType string
	Message  string
	Stack    string
	Err      error
}

func (e *NodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("node %s (%s): %s: %v", e.NodeID, e.NodeType, e.Message, e.Err)
	}
	return fmt.Sprintf("node %s (%s): %s", e.NodeID, e.NodeType, e.Message)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func NewNodeError(kind ErrorKind, nodeID, nodeType, message string, err error) *NodeError {
	return &NodeError{
		Kind:     kind,
		NodeID:   nodeID,
		NodeType: nodeType,
		Message:  message,
		Stack:    CaptureStack(2),
		Err:      err,
	}
}

func NewNodeTimeoutError(nodeID, nodeType string, err error) *NodeError {
	return &NodeError{
		Kind:     KindTimeout,
		NodeID:   nodeID,
		NodeType: nodeType,
		Message:  "node execution timed out",
		Err:      err,
	}
}

// ErrorKindOf extracts the taxonomy kind from an error chain, defaulting to
// the execution kind for untyped errors.
func ErrorKindOf(err error) ErrorKind {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Kind
	}

	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindExecution
}

// IsRetryable reports whether the retry policy may re-attempt after err.
// Validation and configuration failures are deterministic, retrying them
// cannot succeed.
func IsRetryable(err error) bool {
	switch ErrorKindOf(err) {
	case KindValidation, KindConfiguration, KindCancelled:
		return false
	}
	return true
}

func StackOf(err error) string {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Stack
	}

	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Stack
	}
	return ""
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || ErrorKindOf(err) == KindTimeout
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || ErrorKindOf(err) == KindCancelled
}

// CaptureStack records the calling goroutine's stack, skipping the given
// number of frames above the capture site.
func CaptureStack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
