// Package mapping resolves declared node input mappings against run state
// and applies the transformation pipeline: JSON-path extraction, template
// substitution, and date reformatting.
package mapping

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fluxline/fluxline/internal/domain"
	"github.com/fluxline/fluxline/internal/xjson"
)

type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		logger: logger.With("component", "input-mapping"),
	}
}

// Resolve evaluates every declared mapping for a node and returns the
// prepared executor input. A structured mapping whose source resolves to
// nothing falls back to its declared default.
func (r *Resolver) Resolve(ectx *domain.ExecutionContext, mappings map[string]domain.InputMapping) (map[string]interface{}, error) {
	input := make(map[string]interface{}, len(mappings))

	for name, m := range mappings {
		value, found := r.resolveSource(ectx, m.Source)
		if !found || value == nil {
			if m.Default != nil {
				input[name] = m.Default
				continue
			}
			input[name] = nil
			continue
		}

		transformed, err := applyTransformations(value, m.Transformations)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}

		if transformed == nil && m.Default != nil {
			transformed = m.Default
		}
		input[name] = transformed
	}

	return input, nil
}

// resolveSource reads "nodeId.port" as a node output and a bare name as a
// workflow variable.
func (r *Resolver) resolveSource(ectx *domain.ExecutionContext, source string) (interface{}, bool) {
	if source == "" {
		return nil, false
	}

	if idx := strings.Index(source, "."); idx > 0 {
		nodeID, port := source[:idx], source[idx+1:]
		if v, ok := ectx.LookupOutput(domain.OutputKey(nodeID, port)); ok {
			return v, true
		}
		return nil, false
	}

	if !ectx.HasVariable(source) {
		return nil, false
	}
	return ectx.GetVariable(source, nil), true
}

func applyTransformations(value interface{}, transformations []domain.Transformation) (interface{}, error) {
	var err error
	for _, t := range transformations {
		switch t.Type {
		case domain.TransformJSONPath:
			value, err = extractJSONPath(value, t.Expression)
		case domain.TransformTemplate:
			value, err = renderTemplate(value, t.Expression)
		case domain.TransformDateFormat:
			value, err = reformatDate(value, t.FromFormat, t.ToFormat)
		default:
			err = fmt.Errorf("unknown transformation type %q", t.Type)
		}
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

// extractJSONPath applies a gjson path to the value's JSON form. A single
// match is returned directly, an array query yields a list, and no match
// yields nil.
func extractJSONPath(value interface{}, path string) (interface{}, error) {
	data, err := xjson.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("jsonpath source not serializable: %w", err)
	}

	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

// renderTemplate substitutes the current value into a text/template where
// {{.}} is the value itself.
func renderTemplate(value interface{}, expr string) (interface{}, error) {
	tmpl, err := template.New("mapping").Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", expr, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, value); err != nil {
		return nil, fmt.Errorf("template %q: %w", expr, err)
	}
	return buf.String(), nil
}

// layoutAliases maps the format names definition authors use to Go layouts.
var layoutAliases = map[string]string{
	"iso8601":  time.RFC3339,
	"rfc3339":  time.RFC3339,
	"date":     "2006-01-02",
	"datetime": "2006-01-02 15:04:05",
	"time":     "15:04:05",
	"rfc1123":  time.RFC1123,
}

func layoutFor(format string) string {
	if layout, ok := layoutAliases[strings.ToLower(format)]; ok {
		return layout
	}
	return format
}

func reformatDate(value interface{}, from, to string) (interface{}, error) {
	str, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("date transformation expects a string, got %T", value)
	}

	var (
		parsed time.Time
		err    error
	)
	if from == "" {
		parsed, err = time.Parse(time.RFC3339, str)
	} else {
		parsed, err = time.Parse(layoutFor(from), str)
	}
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", str, err)
	}

	if to == "" {
		return parsed.Format(time.RFC3339), nil
	}
	return parsed.Format(layoutFor(to)), nil
}
