package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
)

// ChatCompleter is the slice of the OpenAI client the node uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func llmChatType() domain.NodeType {
	return domain.NodeType{
		Name:           "llm.chat",
		Version:        "1",
		Kind:           domain.NodeKindAction,
		Active:         true,
		SupportsRetry:  true,
		DefaultTimeout: 2 * time.Minute,
		OutputSchema: map[string]domain.OutputField{
			"text": {Type: domain.FieldString, Required: true},
		},
	}
}

// LLMNode calls a chat completion API with the "prompt" input. A nil client
// produces a deterministic mock response, which keeps workflows runnable
// without network access.
type LLMNode struct {
	client ChatCompleter
}

func NewLLMNode(client ChatCompleter) *LLMNode {
	return &LLMNode{client: client}
}

func (n *LLMNode) Execute(input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	return nil, fmt.Errorf("llm node requires the asynchronous entry point")
}

func (n *LLMNode) ExecuteAsync(ctx context.Context, input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	prompt := fmt.Sprintf("%v", input["prompt"])
	if prompt == "" || prompt == "<nil>" {
		return nil, fmt.Errorf("input \"prompt\" is required")
	}

	if n.client == nil {
		return map[string]interface{}{
			"text": "mock response for " + prompt,
		}, nil
	}

	model := configString(config, "model")
	if model == "" {
		model = openai.GPT4oMini
	}

	system := configString(config, "system_prompt")
	if system == "" {
		system = "You are a helpful assistant."
	}

	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return map[string]interface{}{
		"text":  strings.TrimSpace(resp.Choices[0].Message.Content),
		"model": resp.Model,
	}, nil
}
