package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fluxline/fluxline/internal/domain"
)

// coerceOutputs validates a raw executor result against the node type's
// declared output schema. Declared fields are type-coerced; a required field
// missing from the result is a hard failure; keys the schema does not
// declare pass through unchanged.
func coerceOutputs(nodeID, nodeType string, schema map[string]domain.OutputField, raw map[string]interface{}) (map[string]interface{}, error) {
	if len(schema) == 0 {
		return raw, nil
	}

	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	for name, field := range schema {
		value, present := raw[name]
		if !present || value == nil {
			if field.Required {
				return nil, domain.NewNodeError(domain.KindExecution, nodeID, nodeType,
					fmt.Sprintf("required output %q missing from result", name), nil)
			}
			continue
		}

		coerced, err := coerceValue(field.Type, value)
		if err != nil {
			return nil, domain.NewNodeError(domain.KindExecution, nodeID, nodeType,
				fmt.Sprintf("output %q: %v", name, err), nil)
		}
		out[name] = coerced
	}

	return out, nil
}

func coerceValue(fieldType domain.FieldType, value interface{}) (interface{}, error) {
	switch fieldType {
	case domain.FieldString:
		return coerceString(value)
	case domain.FieldNumber:
		return coerceNumber(value)
	case domain.FieldInteger:
		return coerceInteger(value)
	case domain.FieldBoolean:
		return coerceBoolean(value)
	case domain.FieldArray:
		return coerceArray(value)
	case domain.FieldObject:
		return coerceObject(value)
	default:
		return value, nil
	}
}

func coerceString(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func coerceNumber(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to number", v)
		}
		return f, nil
	case bool:
		if v {
			return float64(1), nil
		}
		return float64(0), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to number", value)
	}
}

func coerceInteger(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("cannot coerce non-integral %v to integer", v)
		}
		return int(v), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to integer", v)
		}
		return i, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", value)
	}
}

func coerceBoolean(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to boolean", v)
		}
		return b, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to boolean", value)
	}
}

func coerceArray(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to array", value)
	}
}

func coerceObject(value interface{}) (interface{}, error) {
	if v, ok := value.(map[string]interface{}); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %T to object", value)
}
