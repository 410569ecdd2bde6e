package study

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// CartesianProductFunc expands an object of lists into every combination of
// its elements, one object per combination. Keys vary slowest in sorted
// order, so {a = [1, 2], b = [3, 4]} yields a=1,b=3 then a=1,b=4.
var CartesianProductFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "axes", Type: cty.DynamicPseudoType},
	},
	Type: func(args []cty.Value) (cty.Type, error) {
		if !args[0].IsWhollyKnown() {
			return cty.DynamicPseudoType, nil
		}
		v, err := cartesianProduct(args[0])
		if err != nil {
			return cty.NilType, err
		}
		return v.Type(), nil
	},
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cartesianProduct(args[0])
	},
})

func cartesianProduct(axes cty.Value) (cty.Value, error) {
	ty := axes.Type()
	if axes.IsNull() || !(ty.IsObjectType() || ty.IsMapType()) {
		return cty.NilVal, function.NewArgErrorf(0, "cartesian_product expects an object of lists")
	}

	values := make(map[string][]cty.Value)
	var keys []string
	for it := axes.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if v.IsNull() || !(v.Type().IsListType() || v.Type().IsTupleType() || v.Type().IsSetType()) {
			return cty.NilVal, function.NewArgErrorf(0, "axis %q must be a list", k.AsString())
		}
		keys = append(keys, k.AsString())
		var elems []cty.Value
		for eit := v.ElementIterator(); eit.Next(); {
			_, e := eit.Element()
			elems = append(elems, e)
		}
		values[k.AsString()] = elems
	}
	sort.Strings(keys)

	combos := []map[string]cty.Value{{}}
	for _, k := range keys {
		var next []map[string]cty.Value
		for _, c := range combos {
			for _, e := range values[k] {
				row := make(map[string]cty.Value, len(c)+1)
				for ck, cv := range c {
					row[ck] = cv
				}
				row[k] = e
				next = append(next, row)
			}
		}
		combos = next
	}

	if len(keys) == 0 || len(combos) == 0 {
		return cty.EmptyTupleVal, nil
	}
	out := make([]cty.Value, len(combos))
	for i, c := range combos {
		out[i] = cty.ObjectVal(c)
	}
	return cty.TupleVal(out), nil
}

// Functions is the function table available in study files.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"cartesian_product": CartesianProductFunc,
		"concat":            stdlib.ConcatFunc,
		"format":            stdlib.FormatFunc,
		"join":              stdlib.JoinFunc,
		"keys":              stdlib.KeysFunc,
		"length":            stdlib.LengthFunc,
		"lower":             stdlib.LowerFunc,
		"max":               stdlib.MaxFunc,
		"merge":             stdlib.MergeFunc,
		"min":               stdlib.MinFunc,
		"range":             stdlib.RangeFunc,
		"upper":             stdlib.UpperFunc,
	}
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{Functions: Functions()}
}
