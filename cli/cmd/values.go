package cmd

import (
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/goccy/go-yaml"
)

// LoadValues reads render values from a YAML or JSON document at path, or
// from stdin when path is "-". An empty path yields no values.
func LoadValues(path string, stdin io.Reader) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}

	src, err := readSource(path, stdin)
	if err != nil {
		return nil, ErrValues.Wrap(err)
	}

	return ParseValues([]byte(src), path)
}

// ParseValues decodes a YAML or JSON mapping of global names to values.
func ParseValues(src []byte, filename string) (map[string]any, error) {
	values := map[string]any{}

	if err := yaml.Unmarshal(src, &values); err != nil {
		return nil, ErrValues.With(slog.String("file", filename)).Wrap(err)
	}

	if values == nil {
		values = map[string]any{}
	}

	return values, nil
}

// applySets overrides values with name=value pairs given on the command
// line. Each value is decoded as a YAML scalar or flow collection.
func applySets(values map[string]any, sets map[string]string) error {
	for _, name := range slices.Sorted(maps.Keys(sets)) {
		var v any

		if err := yaml.Unmarshal([]byte(sets[name]), &v); err != nil {
			return ErrValues.With(slog.String("set", name)).Wrap(err)
		}

		values[name] = v
	}

	return nil
}
