package lang

import (
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr/types"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// GlobalsTypes declares the static type of every global a template may
// reference, by name.
type GlobalsTypes map[string]cty.Type

// ParseType parses a type descriptor written in HCL type-expression syntax,
// such as "string", "list(number)" or "object({name=string, age=number})".
// The keyword "any" accepts values of every type.
func ParseType(src string) (cty.Type, error) {
	expr, diags := hclsyntax.ParseExpression(
		[]byte(src), "", hcl.Pos{Line: 1, Column: 1, Byte: 0},
	)
	if diags.HasErrors() {
		return cty.NilType, ErrInvalidType.Wrap(diags).
			With(slog.String("type", src))
	}

	ty, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		return cty.NilType, ErrInvalidType.Wrap(diags).
			With(slog.String("type", src))
	}

	if hasCapsule(ty) {
		return cty.NilType, ErrInvalidType.With(slog.String("type", src))
	}

	return ty, nil
}

// TypeString returns the canonical descriptor of ty. Object attributes are
// sorted, so equal types always produce equal strings.
func TypeString(ty cty.Type) string { return typeexpr.TypeString(ty) }

// ParseGlobals parses a mapping of global names to type descriptors.
func ParseGlobals(decl map[string]string) (GlobalsTypes, error) {
	g := make(GlobalsTypes, len(decl))

	for _, name := range sortedKeys(decl) {
		if !isIdent(name) {
			return nil, ErrInvalidType.With(slog.String("global", name))
		}

		ty, err := ParseType(decl[name])
		if err != nil {
			return nil, WrapError(err).With(slog.String("global", name))
		}

		g[name] = ty
	}

	return g, nil
}

// Names returns the global names in sorted order.
func (g GlobalsTypes) Names() []string { return sortedKeys(g) }

// Descriptors returns the canonical descriptor of every global.
func (g GlobalsTypes) Descriptors() map[string]string {
	d := make(map[string]string, len(g))
	for name, ty := range g {
		d[name] = TypeString(ty)
	}

	return d
}

func (g GlobalsTypes) String() string {
	var b strings.Builder

	b.WriteByte('{')

	for i, name := range g.Names() {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(TypeString(g[name]))
	}

	b.WriteByte('}')

	return b.String()
}

func hasCapsule(ty cty.Type) bool {
	switch {
	case ty.IsCapsuleType():
		return true
	case ty.IsCollectionType():
		return hasCapsule(ty.ElementType())
	case ty.IsObjectType():
		for _, aty := range ty.AttributeTypes() {
			if hasCapsule(aty) {
				return true
			}
		}
	case ty.IsTupleType():
		for _, ety := range ty.TupleElementTypes() {
			if hasCapsule(ety) {
				return true
			}
		}
	}

	return false
}

var (
	anyType    = reflect.TypeFor[any]()
	goTypeMemo sync.Map // canonical type string -> reflect.Type
)

// goType returns the Go representation of values of type ty. Objects become
// structs with one field per attribute, tagged so expressions address
// fields by attribute name.
func goType(ty cty.Type) reflect.Type {
	switch ty {
	case cty.String:
		return reflect.TypeFor[string]()
	case cty.Number:
		return reflect.TypeFor[float64]()
	case cty.Bool:
		return reflect.TypeFor[bool]()
	case cty.DynamicPseudoType:
		return anyType
	}

	key := TypeString(ty)
	if rt, ok := goTypeMemo.Load(key); ok {
		return rt.(reflect.Type)
	}

	var rt reflect.Type

	switch {
	case ty.IsListType(), ty.IsSetType():
		rt = reflect.SliceOf(goType(ty.ElementType()))
	case ty.IsMapType():
		rt = reflect.MapOf(reflect.TypeFor[string](), goType(ty.ElementType()))
	case ty.IsTupleType():
		rt = reflect.TypeFor[[]any]()
	case ty.IsObjectType():
		names := sortedKeys(ty.AttributeTypes())
		fields := make([]reflect.StructField, len(names))

		for i, name := range names {
			fields[i] = reflect.StructField{
				Name: "A" + strconv.Itoa(i),
				Type: goType(ty.AttributeType(name)),
				Tag:  reflect.StructTag(`expr:` + strconv.Quote(name)),
			}
		}

		rt = reflect.StructOf(fields)
	default:
		rt = anyType
	}

	goTypeMemo.Store(key, rt)

	return rt
}

// exemplar returns the zero value of the Go representation of ty. Values
// of type any have no exemplar and yield nil.
func exemplar(ty cty.Type) any {
	rt := goType(ty)
	if rt.Kind() == reflect.Interface {
		return nil
	}

	return reflect.Zero(rt).Interface()
}

// exprType describes rt to the expression compiler. A missing or interface
// type is unknown, so every operation on it is checked at run time.
func exprType(rt reflect.Type) types.Type {
	if rt == nil || rt.Kind() == reflect.Interface {
		return types.Any
	}

	return types.TypeOf(reflect.Zero(rt).Interface())
}
