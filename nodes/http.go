package nodes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/ports"
	"github.com/fluxline/fluxline/internal/xjson"
)

// HTTPDoer is the slice of http.Client the node needs; tests substitute it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func httpRequestType() domain.NodeType {
	return domain.NodeType{
		Name:           "http.request",
		Version:        "1",
		Kind:           domain.NodeKindAction,
		Active:         true,
		SupportsRetry:  true,
		DefaultTimeout: 30 * time.Second,
		OutputSchema: map[string]domain.OutputField{
			"status": {Type: domain.FieldInteger, Required: true},
			"body":   {Type: domain.FieldString},
		},
	}
}

// HTTPNode issues one HTTP request per execution. The URL and body are Go
// templates evaluated against the prepared input.
type HTTPNode struct {
	client HTTPDoer
}

func NewHTTPNode(client HTTPDoer) *HTTPNode {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPNode{client: client}
}

func (n *HTTPNode) Execute(input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	return nil, fmt.Errorf("http node requires the asynchronous entry point")
}

func (n *HTTPNode) ExecuteAsync(ctx context.Context, input, config map[string]interface{}, env ports.ExecutionEnv) (map[string]interface{}, error) {
	method := strings.ToUpper(configString(config, "method"))
	if method == "" {
		method = http.MethodGet
	}

	rawURL := configString(config, "url")
	if rawURL == "" {
		return nil, fmt.Errorf("config \"url\" is required")
	}

	url, err := renderConfigTemplate("url", rawURL, input)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if rawBody := configString(config, "body"); rawBody != "" {
		rendered, err := renderConfigTemplate("body", rawBody, input)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBufferString(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if headers, ok := config["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	out := map[string]interface{}{
		"status": resp.StatusCode,
		"body":   string(data),
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed interface{}
		if err := xjson.Unmarshal(data, &parsed); err == nil {
			out["json"] = parsed
		}
	}

	return out, nil
}

func renderConfigTemplate(name, expr string, input map[string]interface{}) (string, error) {
	tmpl, err := template.New(name).Parse(expr)
	if err != nil {
		return "", fmt.Errorf("config %q: invalid template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("config %q: %w", name, err)
	}
	return buf.String(), nil
}
