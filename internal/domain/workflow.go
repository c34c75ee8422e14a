package domain

import (
	"time"

	json "github.com/goccy/go-json"
)

const DefaultPort = "main"

type WorkflowDefinition struct {
	ID               string                 `json:"id" yaml:"id"`
	Name             string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes            []NodeSpec             `json:"nodes" yaml:"nodes"`
	Connections      []Connection           `json:"connections,omitempty" yaml:"connections,omitempty"`
	Variables        map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`
	ExecutionTimeout Duration               `json:"execution_timeout,omitempty" yaml:"execution_timeout,omitempty"`
}

type NodeSpec struct {
	ID      string                  `json:"id" yaml:"id"`
	Type    string                  `json:"type" yaml:"type"`
	Config  map[string]interface{}  `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs  map[string]InputMapping `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Timeout Duration                `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry   *RetryOverride          `json:"retry,omitempty" yaml:"retry,omitempty"`
}

type RetryOverride struct {
	Disabled   bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	BaseDelay  Duration `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
}

type Connection struct {
	SourceNode string `json:"source_node" yaml:"source_node"`
	SourcePort string `json:"source_port,omitempty" yaml:"source_port,omitempty"`
	TargetNode string `json:"target_node" yaml:"target_node"`
	TargetPort string `json:"target_port,omitempty" yaml:"target_port,omitempty"`
}

type TransformationType string

const (
	TransformJSONPath   TransformationType = "jsonpath"
	TransformTemplate   TransformationType = "template"
	TransformDateFormat TransformationType = "date_format"
)

type Transformation struct {
	Type       TransformationType `json:"type" yaml:"type"`
	Expression string             `json:"expression,omitempty" yaml:"expression,omitempty"`
	FromFormat string             `json:"from_format,omitempty" yaml:"from_format,omitempty"`
	ToFormat   string             `json:"to_format,omitempty" yaml:"to_format,omitempty"`
}

// InputMapping resolves one executor input from run state. Source is either
// "nodeId.port" (a node output) or a bare variable name. The short form, a
// plain string in a definition file, decodes into Source alone.
type InputMapping struct {
	Source          string           `json:"source" yaml:"source"`
	Transformations []Transformation `json:"transformations,omitempty" yaml:"transformations,omitempty"`
	Default         interface{}      `json:"default,omitempty" yaml:"default,omitempty"`
}

func (m *InputMapping) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var short string
	if err := unmarshal(&short); err == nil {
		m.Source = short
		return nil
	}

	type plain InputMapping
	var full plain
	if err := unmarshal(&full); err != nil {
		return err
	}
	*m = InputMapping(full)
	return nil
}

func (m *InputMapping) UnmarshalJSON(data []byte) error {
	var short string
	if err := json.Unmarshal(data, &short); err == nil {
		m.Source = short
		return nil
	}

	type plain InputMapping
	var full plain
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	*m = InputMapping(full)
	return nil
}

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
)

func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	}
	return false
}

type ExecutionRecord struct {
	ID             string                 `json:"id"`
	WorkflowID     string                 `json:"workflow_id"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	UserID         string                 `json:"user_id,omitempty"`
	Status         ExecutionStatus        `json:"status"`
	TriggeredBy    string                 `json:"triggered_by,omitempty"`
	TriggerSource  string                 `json:"trigger_source,omitempty"`
	InputData      map[string]interface{} `json:"input_data,omitempty"`
	Outputs        map[string]interface{} `json:"outputs,omitempty"`
	Error          string                 `json:"error,omitempty"`
	ErrorKind      string                 `json:"error_kind,omitempty"`
	StackTrace     string                 `json:"stack_trace,omitempty"`
	NodesExecuted  int                    `json:"nodes_executed"`
	NodesFailed    int                    `json:"nodes_failed"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusTimeout   NodeStatus = "timeout"
)

// NodeExecutionRecord captures a single attempt. A retry creates a new
// record rather than mutating the previous one.
type NodeExecutionRecord struct {
	ID          string                 `json:"id"`
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id"`
	NodeType    string                 `json:"node_type"`
	Status      NodeStatus             `json:"status"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	ErrorKind   string                 `json:"error_kind,omitempty"`
	StackTrace  string                 `json:"stack_trace,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	IsRetry     bool                   `json:"is_retry"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

type OutputField struct {
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindAction  NodeKind = "action"
)

// NodeType is the resolved view of a node-type registry entry: schemas,
// executor defaults, and the credential kinds the executor needs decrypted
// before it runs.
type NodeType struct {
	Name                    string                 `json:"name"`
	Version                 string                 `json:"version,omitempty"`
	Kind                    NodeKind               `json:"kind,omitempty"`
	Active                  bool                   `json:"active"`
	InputSchema             map[string]interface{} `json:"input_schema,omitempty"`
	OutputSchema            map[string]OutputField `json:"output_schema,omitempty"`
	ConfigDefaults          map[string]interface{} `json:"config_defaults,omitempty"`
	DefaultTimeout          time.Duration          `json:"default_timeout,omitempty"`
	SupportsRetry           bool                   `json:"supports_retry"`
	RequiredCredentialKinds []string               `json:"required_credential_kinds,omitempty"`
}

func (t *NodeType) CacheKey() string {
	if t.Version == "" {
		return t.Name
	}
	return t.Name + "@" + t.Version
}

type Credential struct {
	Name           string                 `json:"name"`
	Kind           string                 `json:"kind,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	Payload        map[string]interface{} `json:"payload"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
}

func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
