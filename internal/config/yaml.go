package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes turns a YAML document into JSON so both formats go
// through the same strict JSON decoder. JSON input is returned unchanged.
// The second return value is the detected format ("json" or "yaml").
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// stringKeys rewrites map[any]any nodes so the tree is JSON-marshalable.
// Weekday lists such as [sat, sun] stay strings; ordinals written as bare
// YAML ints (-1) become JSON numbers and are rejected by the strict decoder,
// so they are converted to strings as well.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			if k == "nth_weekday" {
				x[k] = stringifyList(v)
				continue
			}
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}

func stringifyList(v any) any {
	xs, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(xs))
	for i, e := range xs {
		switch e.(type) {
		case string:
			out[i] = e
		default:
			out[i] = fmt.Sprint(e)
		}
	}
	return out
}
