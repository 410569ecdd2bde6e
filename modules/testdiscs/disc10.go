package testdiscs

import (
	"context"
	"fmt"
	"math"

	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

const (
	ModelLinear     = "Linear"
	ModelAffine     = "Affine"
	ModelPolynomial = "Polynomial"
)

// Disc10 declares its inputs according to Model_Type:
//
//	Linear:     y = a*x
//	Affine:     y = a*x + b
//	Polynomial: y = a*x^power
type Disc10 struct{}

func (*Disc10) InputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"Model_Type": {
			Type:           vartype.String,
			Default:        ModelLinear,
			Structuring:    true,
			PossibleValues: []any{ModelLinear, ModelAffine, ModelPolynomial},
		},
		"x": {Type: vartype.Float, Visibility: datamanager.Shared, Namespace: "ns_ac"},
		"a": {Type: vartype.Float},
	}
}

func (*Disc10) OutputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"y": {Type: vartype.Float, Visibility: datamanager.Shared, Namespace: "ns_ac"},
	}
}

// Setup adds b or power depending on the model type.
func (*Disc10) Setup(in discipline.Values) (discipline.Grammar, discipline.Grammar) {
	switch in.String("Model_Type") {
	case ModelAffine:
		return discipline.Grammar{"b": {Type: vartype.Float}}, nil
	case ModelPolynomial:
		return discipline.Grammar{"power": {Type: vartype.Float, Default: 2.0}}, nil
	}
	return nil, nil
}

func (*Disc10) Compute(_ context.Context, in discipline.Values) (discipline.Values, error) {
	x, err := in.Float("x")
	if err != nil {
		return nil, err
	}
	a, err := in.Float("a")
	if err != nil {
		return nil, err
	}
	switch mt := in.String("Model_Type"); mt {
	case ModelLinear:
		return discipline.Values{"y": a * x}, nil
	case ModelAffine:
		b, err := in.Float("b")
		if err != nil {
			return nil, err
		}
		return discipline.Values{"y": a*x + b}, nil
	case ModelPolynomial:
		p, err := in.Float("power")
		if err != nil {
			return nil, err
		}
		return discipline.Values{"y": a * math.Pow(x, p)}, nil
	default:
		return nil, fmt.Errorf("unknown Model_Type '%s'", mt)
	}
}
