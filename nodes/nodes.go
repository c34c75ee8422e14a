// Package nodes ships the builtin node types: trigger stubs, flow-control
// helpers, an HTTP client node and an OpenAI chat node. Embedders register
// their own types alongside these through the same registry.
package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxline/fluxline/internal/adapters/registry"
	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

// RegisterBuiltins installs every builtin node type into the registry.
func RegisterBuiltins(r *registry.Registry, opts ...Option) error {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	builtins := []struct {
		typ  domain.NodeType
		exec ports.NodeExecutor
	}{
		{manualTriggerType(), &TriggerNode{source: "manual"}},
		{webhookTriggerType(), &TriggerNode{source: "webhook"}},
		{noopType(), &NoopNode{}},
		{delayType(), &DelayNode{}},
		{setVariableType(), &SetVariableNode{}},
		{httpRequestType(), NewHTTPNode(cfg.httpClient)},
		{llmChatType(), NewLLMNode(cfg.openaiClient)},
	}

	for _, b := range builtins {
		if err := r.Register(b.typ, b.exec); err != nil {
			return err
		}
	}
	return nil
}

type options struct {
	httpClient   HTTPDoer
	openaiClient ChatCompleter
}

type Option func(*options)

// WithHTTPClient overrides the HTTP client used by the http.request node.
func WithHTTPClient(client HTTPDoer) Option {
	return func(o *options) { o.httpClient = client }
}

// WithOpenAIClient supplies the client for the llm.chat node. Without one
// the node returns a mock response.
func WithOpenAIClient(client ChatCompleter) Option {
	return func(o *options) { o.openaiClient = client }
}

func manualTriggerType() domain.NodeType {
	return domain.NodeType{
		Name:          "trigger.manual",
		Version:       "1",
		Kind:          domain.NodeKindTrigger,
		Active:        true,
		SupportsRetry: false,
	}
}

func webhookTriggerType() domain.NodeType {
	return domain.NodeType{
		Name:          "trigger.webhook",
		Version:       "1",
		Kind:          domain.NodeKindTrigger,
		Active:        true,
		SupportsRetry: false,
	}
}

// TriggerNode starts a workflow by republishing the run input on its main
// port so downstream nodes can map from it.
type TriggerNode struct {
	source string
}

func (n *TriggerNode) Execute(input, _ map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(input)+1)
	for k, v := range input {
		payload[k] = v
	}
	payload["source"] = n.source

	return map[string]interface{}{domain.DefaultPort: payload}, nil
}

func noopType() domain.NodeType {
	return domain.NodeType{
		Name:          "core.noop",
		Version:       "1",
		Kind:          domain.NodeKindAction,
		Active:        true,
		SupportsRetry: true,
	}
}

// NoopNode passes its prepared input through unchanged.
type NoopNode struct{}

func (NoopNode) Execute(input, _ map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
	return map[string]interface{}{domain.DefaultPort: input}, nil
}

func delayType() domain.NodeType {
	return domain.NodeType{
		Name:          "core.delay",
		Version:       "1",
		Kind:          domain.NodeKindAction,
		Active:        true,
		SupportsRetry: true,
		OutputSchema: map[string]domain.OutputField{
			"waited": {Type: domain.FieldString},
		},
	}
}

// DelayNode sleeps for the configured duration, honoring cancellation and
// the per-node deadline through its context.
type DelayNode struct{}

func (DelayNode) Execute(input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	return nil, fmt.Errorf("delay node requires the asynchronous entry point")
}

func (DelayNode) ExecuteAsync(ctx context.Context, _, config map[string]interface{}, _ ports.ExecutionEnv) (map[string]interface{}, error) {
	d, err := configDuration(config, "duration")
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return map[string]interface{}{"waited": d.String()}, nil
}

func configString(config map[string]interface{}, key string) string {
	v, _ := config[key].(string)
	return v
}

func configDuration(config map[string]interface{}, key string) (time.Duration, error) {
	switch v := config[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("config %q: invalid duration %q", key, v)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case nil:
		return 0, fmt.Errorf("config %q is required", key)
	default:
		return 0, fmt.Errorf("config %q: unsupported type %T", key, v)
	}
}
