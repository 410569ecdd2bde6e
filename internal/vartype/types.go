// Package vartype defines the value types a discipline variable can carry and
// the coercion rules applied when values arrive from HCL, YAML, JSON or user
// code.
package vartype

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Type is the declared type of a variable.
type Type string

const (
	Float     Type = "float"
	Int       Type = "int"
	String    Type = "string"
	Bool      Type = "bool"
	Array     Type = "array"
	List      Type = "list"
	Dict      Type = "dict"
	Dataframe Type = "dataframe"
)

var allTypes = []Type{Float, Int, String, Bool, Array, List, Dict, Dataframe}

// Parse converts a type keyword into a Type.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		names := make([]string, len(allTypes))
		for i, a := range allTypes {
			names[i] = string(a)
		}
		return "", fmt.Errorf("unknown variable type '%s', supported types are: %s", s, strings.Join(names, ", "))
	}
	return t, nil
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, a := range allTypes {
		if a == t {
			return true
		}
	}
	return false
}

// Evaluable reports whether a variable of this type may be sampled by a
// mono-instance driver.
func (t Type) Evaluable() bool {
	switch t {
	case Float, Array, Int, String:
		return true
	}
	return false
}

// Numeric reports whether residuals can be computed on values of this type.
func (t Type) Numeric() bool {
	return t == Float || t == Int || t == Array
}

// Missing is the marker for a sample cell that has not been filled in.
var Missing = math.NaN()

// IsMissing reports whether v is nil or the Missing marker.
func IsMissing(v any) bool {
	if v == nil {
		return true
	}
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

// Check reports whether v already has the Go representation of t. A nil
// value always passes.
func Check(t Type, v any) error {
	if v == nil {
		return nil
	}
	ok := false
	switch t {
	case Float:
		_, ok = v.(float64)
	case Int:
		_, ok = v.(int)
	case String:
		_, ok = v.(string)
	case Bool:
		_, ok = v.(bool)
	case Array:
		_, ok = v.([]float64)
	case List:
		_, ok = v.([]any)
	case Dict:
		ok = reflect.TypeOf(v).Kind() == reflect.Map
	case Dataframe:
		_, ok = v.(*Table)
	}
	if !ok {
		return fmt.Errorf("value of Go type %T is not a valid %s", v, t)
	}
	return nil
}

// Coerce converts v into the Go representation of t.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Float:
		return toFloat(v)
	case Int:
		return toInt(v)
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Array:
		return toFloats(v)
	case List:
		return toList(v)
	case Dict:
		if reflect.TypeOf(v).Kind() == reflect.Map {
			return v, nil
		}
	case Dataframe:
		return ToTable(v)
	default:
		return nil, fmt.Errorf("unknown variable type '%s'", t)
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("cannot use %T as %s", v, Float)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("cannot use non-integral %v as %s", n, Int)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("cannot use %T as %s", v, Int)
}

func toFloats(v any) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return s, nil
	case []int:
		out := make([]float64, len(s))
		for i, n := range s {
			out[i] = float64(n)
		}
		return out, nil
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, err := toFloat(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, Array)
}

func toList(v any) ([]any, error) {
	if l, ok := v.([]any); ok {
		return l, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("cannot use %T as %s", v, List)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// SortedKeys returns the keys of a string-keyed map in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
