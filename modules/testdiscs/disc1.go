package testdiscs

import (
	"context"

	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

// Disc1 computes y = a*x + b. x and y live in ns_ac.
type Disc1 struct{}

func (*Disc1) InputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"x": {Type: vartype.Float, Visibility: datamanager.Shared, Namespace: "ns_ac"},
		"a": {Type: vartype.Float},
		"b": {Type: vartype.Float},
	}
}

func (*Disc1) OutputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"y":         {Type: vartype.Float, Visibility: datamanager.Shared, Namespace: "ns_ac"},
		"indicator": {Type: vartype.Float},
	}
}

func (*Disc1) Compute(_ context.Context, in discipline.Values) (discipline.Values, error) {
	x, err := in.Float("x")
	if err != nil {
		return nil, err
	}
	a, err := in.Float("a")
	if err != nil {
		return nil, err
	}
	b, err := in.Float("b")
	if err != nil {
		return nil, err
	}
	return discipline.Values{"y": a*x + b, "indicator": a * b}, nil
}

func (*Disc1) ComputeGradient(_ context.Context, in discipline.Values) (map[discipline.JacobianKey]discipline.Jacobian, error) {
	x, err := in.Float("x")
	if err != nil {
		return nil, err
	}
	a, err := in.Float("a")
	if err != nil {
		return nil, err
	}
	b, err := in.Float("b")
	if err != nil {
		return nil, err
	}
	return map[discipline.JacobianKey]discipline.Jacobian{
		{Output: "y", Input: "x"}:         {{a}},
		{Output: "y", Input: "a"}:         {{x}},
		{Output: "y", Input: "b"}:         {{1}},
		{Output: "indicator", Input: "a"}: {{b}},
		{Output: "indicator", Input: "b"}: {{a}},
	}, nil
}

// Double computes y = 2*x on local variables.
type Double struct{}

func (*Double) InputGrammar() discipline.Grammar {
	return discipline.Grammar{"x": {Type: vartype.Float}}
}

func (*Double) OutputGrammar() discipline.Grammar {
	return discipline.Grammar{"y": {Type: vartype.Float}}
}

func (*Double) Compute(_ context.Context, in discipline.Values) (discipline.Values, error) {
	x, err := in.Float("x")
	if err != nil {
		return nil, err
	}
	return discipline.Values{"y": 2 * x}, nil
}
