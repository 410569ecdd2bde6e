// Package discipline defines the contract between the engine and the numeric
// models it orchestrates.
package discipline

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

// VarSpec declares one input or output.
type VarSpec struct {
	Type           vartype.Type
	Default        any
	ReadOnly       bool
	Visibility     datamanager.Visibility
	Namespace      string
	Structuring    bool
	Numerical      bool
	Optional       bool
	PossibleValues []any
	Unit           string
}

// Grammar maps short names to their declaration.
type Grammar map[string]VarSpec

// Validate checks types, namespaces and defaults of every entry.
func (g Grammar) Validate() error {
	var errs []string
	for _, name := range vartype.SortedKeys(g) {
		spec := g[name]
		if !spec.Type.Valid() {
			errs = append(errs, fmt.Sprintf("'%s': unknown type '%s'", name, spec.Type))
			continue
		}
		if spec.Visibility == datamanager.Shared && spec.Namespace == "" {
			errs = append(errs, fmt.Sprintf("'%s': shared variables need a namespace", name))
		}
		if err := vartype.Conforms(spec.Type, spec.Default); err != nil {
			errs = append(errs, fmt.Sprintf("'%s': default does not match type: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid grammar:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Merge returns a grammar holding the entries of g overridden by other.
func (g Grammar) Merge(other Grammar) Grammar {
	out := make(Grammar, len(g)+len(other))
	for k, v := range g {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Model is a discipline implementation.
type Model interface {
	InputGrammar() Grammar
	OutputGrammar() Grammar
	Compute(ctx context.Context, in Values) (Values, error)
}

// Configurable models declare extra inputs and outputs depending on the
// current input values. Setup must be idempotent.
type Configurable interface {
	Setup(in Values) (inputs, outputs Grammar)
}

// JacobianKey identifies d(Output)/d(Input).
type JacobianKey struct {
	Output string
	Input  string
}

// Jacobian rows follow output elements, columns follow input elements.
type Jacobian [][]float64

// Differentiable models provide analytic jacobians.
type Differentiable interface {
	ComputeGradient(ctx context.Context, in Values) (map[JacobianKey]Jacobian, error)
}

// Values carries inputs or outputs by short name.
type Values map[string]any

// Float reads a float input.
func (v Values) Float(name string) (float64, error) {
	raw, ok := v[name]
	if !ok || raw == nil {
		return 0, fmt.Errorf("input '%s' is not set", name)
	}
	f, err := vartype.Coerce(vartype.Float, raw)
	if err != nil {
		return 0, fmt.Errorf("input '%s': %w", name, err)
	}
	return f.(float64), nil
}

// Int reads an int input.
func (v Values) Int(name string) (int, error) {
	raw, ok := v[name]
	if !ok || raw == nil {
		return 0, fmt.Errorf("input '%s' is not set", name)
	}
	n, err := vartype.Coerce(vartype.Int, raw)
	if err != nil {
		return 0, fmt.Errorf("input '%s': %w", name, err)
	}
	return n.(int), nil
}

// String reads a string input, "" when unset.
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Bool reads a bool input, false when unset.
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Array reads an array input.
func (v Values) Array(name string) ([]float64, error) {
	raw, ok := v[name]
	if !ok || raw == nil {
		return nil, fmt.Errorf("input '%s' is not set", name)
	}
	a, err := vartype.Coerce(vartype.Array, raw)
	if err != nil {
		return nil, fmt.Errorf("input '%s': %w", name, err)
	}
	return a.([]float64), nil
}

// Table reads a dataframe input.
func (v Values) Table(name string) (*vartype.Table, error) {
	raw, ok := v[name]
	if !ok || raw == nil {
		return nil, fmt.Errorf("input '%s' is not set", name)
	}
	return vartype.ToTable(raw)
}

// Clone copies the map. Values are shared.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
