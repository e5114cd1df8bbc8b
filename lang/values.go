package lang

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// coerce converts a render-time value to the Go representation of its
// declared type. Values of type any pass through untouched. Everything else
// is checked and converted through cty, so for example a []string satisfies
// list(string) and a map[string]any with the right keys satisfies an
// object type.
func coerce(v any, ty cty.Type) (any, error) {
	if ty == cty.DynamicPseudoType {
		return v, nil
	}

	cv, err := impliedValue(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}

	cv, err = convert.Convert(cv, ty)
	if err != nil {
		return nil, err
	}

	rv, err := toNative(cv, ty, goType(ty))
	if err != nil {
		return nil, err
	}

	return rv.Interface(), nil
}

var ctyValueType = reflect.TypeFor[cty.Value]()

// impliedValue builds a cty value mirroring a Go value without a declared
// type. Slices become tuples and string-keyed maps become objects, which
// convert to lists, sets, maps, or objects as the declared type requires.
func impliedValue(rv reflect.Value) (cty.Value, error) {
	if !rv.IsValid() {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}

	if rv.Type() == ctyValueType {
		return rv.Interface().(cty.Value), nil
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}

		return impliedValue(rv.Elem())

	case reflect.String:
		return cty.StringVal(rv.String()), nil

	case reflect.Bool:
		return cty.BoolVal(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cty.NumberIntVal(rv.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		return cty.NumberUIntVal(rv.Uint()), nil

	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) {
			return cty.NilVal, fmt.Errorf("NaN is not a number")
		}

		return cty.NumberFloatVal(f), nil

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}

		elems := make([]cty.Value, rv.Len())
		for i := range elems {
			ev, err := impliedValue(rv.Index(i))
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}

			elems[i] = ev
		}

		return cty.TupleVal(elems), nil

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return cty.NilVal, fmt.Errorf("map key type %s is not string",
				rv.Type().Key())
		}

		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}

		attrs := make(map[string]cty.Value, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()

			av, err := impliedValue(iter.Value())
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", key, err)
			}

			attrs[key] = av
		}

		return cty.ObjectVal(attrs), nil

	case reflect.Struct:
		ty, err := gocty.ImpliedType(rv.Interface())
		if err != nil {
			return cty.NilVal, err
		}

		return gocty.ToCtyValue(rv.Interface(), ty)
	}

	return cty.NilVal, fmt.Errorf("unsupported value of type %s", rv.Type())
}

// toNative converts v, a value of type ty, into a Go value of type rt as
// returned by goType.
func toNative(v cty.Value, ty cty.Type, rt reflect.Type) (reflect.Value, error) {
	if v.IsNull() {
		return reflect.Zero(rt), nil
	}

	if !v.IsKnown() {
		return reflect.Value{}, fmt.Errorf("value of type %s is unknown",
			TypeString(ty))
	}

	if ty == cty.DynamicPseudoType {
		nv, err := ctyToAny(v)
		if err != nil {
			return reflect.Value{}, err
		}

		if nv == nil {
			return reflect.Zero(rt), nil
		}

		return reflect.ValueOf(nv), nil
	}

	switch {
	case ty == cty.String:
		return reflect.ValueOf(v.AsString()), nil

	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()

		return reflect.ValueOf(f), nil

	case ty == cty.Bool:
		return reflect.ValueOf(v.True()), nil

	case ty.IsListType(), ty.IsSetType():
		out := reflect.MakeSlice(rt, 0, v.LengthInt())

		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()

			nv, err := toNative(ev, ty.ElementType(), rt.Elem())
			if err != nil {
				return reflect.Value{}, err
			}

			out = reflect.Append(out, nv)
		}

		return out, nil

	case ty.IsMapType():
		out := reflect.MakeMapWithSize(rt, v.LengthInt())

		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()

			nv, err := toNative(ev, ty.ElementType(), rt.Elem())
			if err != nil {
				return reflect.Value{}, err
			}

			out.SetMapIndex(reflect.ValueOf(k.AsString()), nv)
		}

		return out, nil

	case ty.IsObjectType():
		out := reflect.New(rt).Elem()
		names := sortedKeys(ty.AttributeTypes())

		for i, name := range names {
			aty := ty.AttributeType(name)
			field := out.Field(i)

			nv, err := toNative(v.GetAttr(name), aty, field.Type())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("attribute %q: %w", name, err)
			}

			field.Set(nv)
		}

		return out, nil

	case ty.IsTupleType():
		nv, err := ctyToAny(v)
		if err != nil {
			return reflect.Value{}, err
		}

		return reflect.ValueOf(nv), nil
	}

	return reflect.Value{}, fmt.Errorf("unsupported type %s", ty.FriendlyName())
}

// ctyToAny converts a value without a declared Go shape into plain Go
// values: string, float64, bool, []any and map[string]any.
func ctyToAny(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()

	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}

		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType(), ty.IsSetType(), ty.IsTupleType():
		out := make([]any, 0, v.LengthInt())

		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()

			nv, err := ctyToAny(ev)
			if err != nil {
				return nil, err
			}

			out = append(out, nv)
		}

		return out, nil

	case ty.IsMapType(), ty.IsObjectType():
		out := make(map[string]any)

		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()

			nv, err := ctyToAny(ev)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", k.AsString(), err)
			}

			out[k.AsString()] = nv
		}

		return out, nil
	}

	return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys[T any](m map[string]T) []string {
	if len(m) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
