package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/sahilm/fuzzy"
	"github.com/zclconf/go-cty/cty"

	"github.com/ardnew/talc/lang"
)

// ErrConfig reports an unreadable or invalid configuration file.
var ErrConfig = lang.NewError("invalid configuration file")

// resolve returns a [kong.ConfigurationLoader] that parses HCL config
// files. filename is reported in diagnostics.
//
// It can be used with [kong.Configuration] like this:
//
//	kong.Configuration(resolve(path), path)
//
// Each top-level attribute sets the flag of the same name:
//   - Flag names with hyphens (e.g., "log-level") should use underscores
//     in the config file (e.g., "log_level")
//   - Lists become repeated flag values and objects become map flags
//   - Numbers are passed to Kong as strings
//
// Example config file:
//
//	log_level     = "debug"
//	log_format    = "json"
//	cache_backend = "sqlite"
//
// Command-line flags override config file values.
func resolve(filename string) kong.ConfigurationLoader {
	return func(r io.Reader) (kong.Resolver, error) {
		src, err := io.ReadAll(r)
		if err != nil {
			return nil, ErrConfig.With(slog.String("file", filename)).Wrap(err)
		}

		file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
		if diags.HasErrors() {
			return nil, ErrConfig.Wrap(diags)
		}

		attrs, diags := file.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, ErrConfig.Wrap(diags)
		}

		cfg := make(config, len(attrs))

		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, ErrConfig.Wrap(diags)
			}

			cfg[name] = native(val)
		}

		return cfg, nil
	}
}

// config implements [kong.Resolver] for HCL configs.
type config map[string]any

// Validate implements [kong.Resolver]. Every attribute must name a flag.
func (r config) Validate(app *kong.Application) error {
	known := map[string]struct{}{}
	flagNames(app.Node, known)

	for _, name := range slices.Sorted(maps.Keys(r)) {
		if _, ok := known[name]; ok {
			continue
		}

		msg := fmt.Sprintf("unknown flag %q", name)

		names := slices.Sorted(maps.Keys(known))
		if matches := fuzzy.Find(name, names); len(matches) > 0 {
			msg += fmt.Sprintf(" (did you mean %q?)", matches[0].Str)
		}

		return ErrConfig.With(slog.String("flag", name)).Wrap(errors.New(msg))
	}

	return nil
}

// Resolve implements [kong.Resolver].
func (r config) Resolve(
	_ *kong.Context,
	_ *kong.Path,
	flag *kong.Flag,
) (any, error) {
	// Kong flags use hyphens (e.g., "log-level") but HCL identifiers
	// conventionally use underscores. Try both forms.
	name := flag.Name
	underscoreName := strings.ReplaceAll(name, "-", "_")

	// Look up the value in our config
	if value, ok := r[name]; ok {
		return value, nil
	}

	// Try underscore variant
	if value, ok := r[underscoreName]; ok {
		return value, nil
	}

	// Not found - return nil to let Kong use defaults
	return nil, nil
}

// flagNames collects the names of all flags of n and its subcommands in
// both hyphen and underscore form.
func flagNames(n *kong.Node, names map[string]struct{}) {
	for _, flag := range n.Flags {
		names[flag.Name] = struct{}{}
		names[strings.ReplaceAll(flag.Name, "-", "_")] = struct{}{}
	}

	for _, child := range n.Children {
		flagNames(child, names)
	}
}

// native converts an HCL value to the representation Kong expects from a
// resolver.
func native(val cty.Value) any {
	if val.IsNull() || !val.IsKnown() {
		return nil
	}

	ty := val.Type()

	switch {
	case ty.Equals(cty.String):
		return val.AsString()

	case ty.Equals(cty.Number):
		// Kong requires numbers as strings for parsing
		return val.AsBigFloat().Text('f', -1)

	case ty.Equals(cty.Bool):
		return val.True()

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		list := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			list = append(list, native(v))
		}

		return list

	case ty.IsMapType() || ty.IsObjectType():
		m := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			m[k.AsString()] = native(v)
		}

		return m
	}

	return nil
}
