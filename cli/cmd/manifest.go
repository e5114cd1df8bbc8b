package cmd

import (
	"log/slog"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/ardnew/talc/lang"
)

// ManifestSuffix is appended to a template path to find its default
// manifest.
const ManifestSuffix = ".hcl"

// Manifest declares the globals and modules of a template.
type Manifest struct {
	Modules []string
	Globals lang.GlobalsTypes
}

var manifestSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "modules"},
		{Name: "globals"},
	},
}

// LoadManifest reads the manifest at path. An empty path yields an empty
// manifest.
func LoadManifest(path string) (Manifest, error) {
	if path == "" {
		return Manifest{}, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, ErrManifest.With(slog.String("file", path)).Wrap(err)
	}

	return ParseManifest(src, path)
}

// ParseManifest parses an HCL manifest. Global types use the HCL type
// constraint syntax and are written without quotes.
func ParseManifest(src []byte, filename string) (Manifest, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return Manifest{}, ErrManifest.Wrap(diags)
	}

	content, diags := file.Body.Content(manifestSchema)
	if diags.HasErrors() {
		return Manifest{}, ErrManifest.Wrap(diags)
	}

	var (
		m   Manifest
		err error
	)

	if attr, ok := content.Attributes["modules"]; ok {
		if m.Modules, err = manifestModules(attr); err != nil {
			return Manifest{}, err
		}
	}

	if attr, ok := content.Attributes["globals"]; ok {
		if m.Globals, err = manifestGlobals(attr); err != nil {
			return Manifest{}, err
		}
	}

	return m, nil
}

func manifestModules(attr *hcl.Attribute) ([]string, error) {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, ErrManifest.Wrap(diags)
	}

	ty := val.Type()
	if val.IsNull() || !val.IsWhollyKnown() ||
		!(ty.IsTupleType() || ty.IsListType() || ty.IsSetType()) {
		return nil, ErrManifest.With(
			slog.String("attribute", attr.Name),
			slog.String("range", attr.Range.String()),
			slog.String("want", "list of module identifiers"),
		)
	}

	ids := make([]string, 0, val.LengthInt())

	for it := val.ElementIterator(); it.Next(); {
		_, v := it.Element()
		if v.IsNull() || !v.Type().Equals(cty.String) {
			return nil, ErrManifest.With(
				slog.String("attribute", attr.Name),
				slog.String("range", attr.Range.String()),
				slog.String("want", "string"),
			)
		}

		ids = append(ids, v.AsString())
	}

	return ids, nil
}

func manifestGlobals(attr *hcl.Attribute) (lang.GlobalsTypes, error) {
	pairs, diags := hcl.ExprMap(attr.Expr)
	if diags.HasErrors() {
		return nil, ErrManifest.Wrap(diags)
	}

	decl := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		name := hcl.ExprAsKeyword(pair.Key)
		if name == "" {
			key, diags := pair.Key.Value(nil)
			if diags.HasErrors() || key.IsNull() || !key.Type().Equals(cty.String) {
				return nil, ErrManifest.With(
					slog.String("range", pair.Key.Range().String()),
					slog.String("want", "global name"),
				)
			}

			name = key.AsString()
		}

		if _, dup := decl[name]; dup {
			return nil, ErrManifest.With(
				slog.String("global", name),
				slog.String("range", pair.Key.Range().String()),
				slog.String("reason", "declared more than once"),
			)
		}

		ty, diags := typeexpr.TypeConstraint(pair.Value)
		if diags.HasErrors() {
			return nil, ErrManifest.With(slog.String("global", name)).Wrap(diags)
		}

		decl[name] = lang.TypeString(ty)
	}

	globals, err := lang.ParseGlobals(decl)
	if err != nil {
		return nil, ErrManifest.Wrap(err)
	}

	return globals, nil
}

// manifestFor returns the manifest path for a template: explicit when
// given, otherwise the template path with [ManifestSuffix] if that file
// exists.
func manifestFor(template, explicit string) string {
	if explicit != "" || template == stdinSource {
		return explicit
	}

	path := template + ManifestSuffix
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	return path
}
