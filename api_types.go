package fluxline

import (
	"github.com/fluxline/fluxline/internal/adapters/engine"
	"github.com/fluxline/fluxline/internal/adapters/registry"
	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

// Config controls engine behavior and adapter selection. Zero values fall
// back to DefaultConfig equivalents.
type Config = domain.Config

// EngineConfig holds the execution-core knobs: default timeouts, retry
// policy, and the sync-executor worker limit.
type EngineConfig = domain.EngineConfig

func DefaultConfig() Config {
	return domain.DefaultConfig()
}

// WorkflowDefinition is the immutable description of a workflow: nodes,
// connections, variable defaults and the workflow-level deadline.
type WorkflowDefinition = domain.WorkflowDefinition

type NodeSpec = domain.NodeSpec

type Connection = domain.Connection

type InputMapping = domain.InputMapping

type Transformation = domain.Transformation

type RetryOverride = domain.RetryOverride

type Duration = domain.Duration

// NodeType describes a named, versioned node capability: schemas, executor
// defaults, and required credential kinds.
type NodeType = domain.NodeType

type OutputField = domain.OutputField

// NodeExecutor is the synchronous plugin entry point; implement
// AsyncNodeExecutor as well when the work blocks on IO.
type NodeExecutor = ports.NodeExecutor

type AsyncNodeExecutor = ports.AsyncNodeExecutor

// ExecutionEnv carries credentials, identity and a read-only context handle
// into an executor.
type ExecutionEnv = ports.ExecutionEnv

type ContextReader = ports.ContextReader

// ExecuteRequest names the workflow to run and the trigger identity.
type ExecuteRequest = engine.ExecuteRequest

type ExecutionRecord = domain.ExecutionRecord

type NodeExecutionRecord = domain.NodeExecutionRecord

type ExecutionStatus = domain.ExecutionStatus

type NodeStatus = domain.NodeStatus

type ExecutionMetrics = domain.ExecutionMetrics

// WorkflowError and NodeError form the failure taxonomy; ErrorKindOf and
// IsRetryable inspect arbitrary error chains.
type WorkflowError = domain.WorkflowError

type NodeError = domain.NodeError

type ErrorKind = domain.ErrorKind

// TypeSource backs the registry for node types resolved lazily; see
// Client.RegisterTypeSource.
type TypeSource = registry.TypeSource

// CredentialSource fetches decrypted credentials for the caching store.
type CredentialSource = ports.CredentialSource

// Monitor receives start/stop and usage instrumentation.
type Monitor = ports.Monitor

const (
	ExecutionStatusPending   = domain.ExecutionStatusPending
	ExecutionStatusRunning   = domain.ExecutionStatusRunning
	ExecutionStatusCompleted = domain.ExecutionStatusCompleted
	ExecutionStatusFailed    = domain.ExecutionStatusFailed
	ExecutionStatusCancelled = domain.ExecutionStatusCancelled
	ExecutionStatusTimeout   = domain.ExecutionStatusTimeout

	NodeStatusPending   = domain.NodeStatusPending
	NodeStatusRunning   = domain.NodeStatusRunning
	NodeStatusCompleted = domain.NodeStatusCompleted
	NodeStatusFailed    = domain.NodeStatusFailed
	NodeStatusTimeout   = domain.NodeStatusTimeout

	NodeKindTrigger = domain.NodeKindTrigger
	NodeKindAction  = domain.NodeKindAction

	KindValidation    = domain.KindValidation
	KindConfiguration = domain.KindConfiguration
	KindExecution     = domain.KindExecution
	KindTimeout       = domain.KindTimeout
	KindNotFound      = domain.KindNotFound
	KindCancelled     = domain.KindCancelled

	// TriggerSourceManual bypasses the trigger-node requirement during
	// validation.
	TriggerSourceManual = engine.TriggerSourceManual

	DefaultPort = domain.DefaultPort
)

var (
	ErrNotFound           = domain.ErrNotFound
	ErrTimeout            = domain.ErrTimeout
	ErrCancelled          = domain.ErrCancelled
	ErrCredentialNotFound = domain.ErrCredentialNotFound
	ErrCredentialExpired  = domain.ErrCredentialExpired
	ErrInvalidConfig      = domain.ErrInvalidConfig
	ErrTypeInactive       = domain.ErrTypeInactive
	ErrEngineBusy         = domain.ErrEngineBusy
)

// ErrorKindOf extracts the taxonomy kind from an error chain.
func ErrorKindOf(err error) ErrorKind {
	return domain.ErrorKindOf(err)
}

// IsRetryable reports whether the retry policy may re-attempt after err.
func IsRetryable(err error) bool {
	return domain.IsRetryable(err)
}

type clientSettings struct {
	store            ports.ExecutionStore
	workflows        ports.WorkflowRepository
	credentialSource ports.CredentialSource
	monitor          ports.Monitor
}

type Option func(*clientSettings)

// WithExecutionStore replaces the execution record store.
func WithExecutionStore(store ports.ExecutionStore) Option {
	return func(s *clientSettings) { s.store = store }
}

// WithWorkflowRepository replaces the definition lookup collaborator.
func WithWorkflowRepository(repo ports.WorkflowRepository) Option {
	return func(s *clientSettings) { s.workflows = repo }
}

// WithCredentialSource enables credential resolution for node types that
// declare required credential kinds.
func WithCredentialSource(source ports.CredentialSource) Option {
	return func(s *clientSettings) { s.credentialSource = source }
}

// WithMonitor replaces the in-process monitoring tracker.
func WithMonitor(monitor ports.Monitor) Option {
	return func(s *clientSettings) { s.monitor = monitor }
}
