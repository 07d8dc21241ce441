package graph

import (
	"encoding/json"
	"fmt"
	"math"
)

// Argument values arrive as parsed literals (int64, string, []any) or as
// decoded JSON variables (float64, json.Number, []any).

func argString(args map[string]any, name string) (string, error) {
	switch v := args[name].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("argument %q is required", name)
	default:
		return "", fmt.Errorf("argument %q: expected string, got %T", name, v)
	}
}

// argOptString returns nil when the argument is absent or null.
func argOptString(args map[string]any, name string) (*string, error) {
	if args[name] == nil {
		return nil, nil
	}
	s, err := argString(args, name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func argInt(args map[string]any, name string) (int, error) {
	switch v := args[name].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("argument %q: %v is not an Int", name, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", name, err)
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, fmt.Errorf("argument %q: %d is not an Int", name, n)
		}
		return int(n), nil
	case nil:
		return 0, fmt.Errorf("argument %q is required", name)
	default:
		return 0, fmt.Errorf("argument %q: expected Int, got %T", name, v)
	}
}

func argStrings(args map[string]any, name string) ([]string, error) {
	switch v := args[name].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, it := range v {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q[%d]: expected string, got %T", name, i, it)
			}
			out[i] = s
		}
		return out, nil
	case string:
		// List input coercion: a single value stands for a one-element list.
		return []string{v}, nil
	case nil:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("argument %q: expected list of strings, got %T", name, v)
	}
}
