package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

func isYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML config as JSON so Decode can apply the same
// strict field checks to both formats. The file must hold exactly one
// document whose root is a mapping.
func yamlToJSON(name string, data []byte) ([]byte, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var root any
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: config is empty", name)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var next any
	switch err := dec.Decode(&next); {
	case errors.Is(err, io.EOF):
	case err == nil:
		return nil, fmt.Errorf("%s: more than one yaml document", name)
	default:
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	tree := jsonTree(root)
	if _, ok := tree.(map[string]any); !ok {
		return nil, fmt.Errorf("%s: top level must be a mapping, got %T", name, root)
	}
	j, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("%s: yaml->json: %w", name, err)
	}
	return j, nil
}

// jsonTree stringifies mapping keys (period keys may be written as bare
// integers) and turns timestamp scalars back into the YYYY-MM-DD form
// override_days expects.
func jsonTree(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = jsonTree(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = jsonTree(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = jsonTree(x[i])
		}
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	default:
		return in
	}
}
