package vartype

import (
	"fmt"
	"math"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// CtyType is the cty type a value of t is checked against. Containers whose
// element shape is free are dynamic.
func CtyType(t Type) cty.Type {
	switch t {
	case Float, Int:
		return cty.Number
	case String:
		return cty.String
	case Bool:
		return cty.Bool
	case Array:
		return cty.List(cty.Number)
	}
	return cty.DynamicPseudoType
}

// FromCty converts a cty value into its natural Go counterpart: numbers
// become float64, collections become []any and map[string]any.
func FromCty(v cty.Value) (any, error) {
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
			return nil, fmt.Errorf("could not convert number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := FromCty(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := FromCty(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
}

// FromCtyAs converts v and coerces it to t.
func FromCtyAs(v cty.Value, t Type) (any, error) {
	if ct := CtyType(t); ct != cty.DynamicPseudoType {
		converted, err := convert.Convert(v, ct)
		if err != nil {
			return nil, fmt.Errorf("expected %s: %w", t, err)
		}
		v = converted
	}
	native, err := FromCty(v)
	if err != nil {
		return nil, err
	}
	return Coerce(t, native)
}

// ToCty converts a Go value of any supported variable type into cty.
func ToCty(v any) (cty.Value, error) {
	switch tv := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case float64:
		if math.IsNaN(tv) {
			return cty.NullVal(cty.Number), nil
		}
		return cty.NumberFloatVal(tv), nil
	case int:
		return cty.NumberIntVal(int64(tv)), nil
	case string:
		return cty.StringVal(tv), nil
	case bool:
		return cty.BoolVal(tv), nil
	case []float64:
		if len(tv) == 0 {
			return cty.ListValEmpty(cty.Number), nil
		}
		elems := make([]cty.Value, len(tv))
		for i, f := range tv {
			elems[i] = cty.NumberFloatVal(f)
		}
		return cty.ListVal(elems), nil
	case []any:
		elems := make([]cty.Value, len(tv))
		for i, e := range tv {
			ev, err := ToCty(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(tv))
		for k, e := range tv {
			ev, err := ToCty(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("in attribute '%s': %w", k, err)
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	case *Table:
		rows := make([]any, tv.Len())
		for i, rec := range tv.Records() {
			rows[i] = rec
		}
		return ToCty(rows)
	}

	if reflect.TypeOf(v).Kind() == reflect.Map {
		rv := reflect.ValueOf(v)
		attrs := make(map[string]cty.Value, rv.Len())
		for _, k := range rv.MapKeys() {
			ev, err := ToCty(rv.MapIndex(k).Interface())
			if err != nil {
				return cty.NilVal, err
			}
			attrs[fmt.Sprint(k.Interface())] = ev
		}
		return cty.ObjectVal(attrs), nil
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty type: %w", err)
	}
	return gocty.ToCtyValue(v, ty)
}

// Conforms reports whether v converts cleanly to the cty type of t.
func Conforms(t Type, v any) error {
	if v == nil {
		return nil
	}
	val, err := ToCty(v)
	if err != nil {
		return err
	}
	if _, err := convert.Convert(val, CtyType(t)); err != nil {
		return fmt.Errorf("%s expected: %w", t, err)
	}
	return Check(t, v)
}
