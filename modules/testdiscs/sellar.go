package testdiscs

import (
	"context"
	"math"

	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

func sellarVar(def any, t vartype.Type) discipline.VarSpec {
	return discipline.VarSpec{Type: t, Default: def, Visibility: datamanager.Shared, Namespace: "ns_sellar"}
}

// Sellar1 computes y_1 = z0^2 + z1 + x - 0.2*y_2.
type Sellar1 struct{}

func (*Sellar1) InputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"x":   sellarVar(1.0, vartype.Float),
		"z":   sellarVar([]float64{1, 1}, vartype.Array),
		"y_2": sellarVar(1.0, vartype.Float),
	}
}

func (*Sellar1) OutputGrammar() discipline.Grammar {
	return discipline.Grammar{"y_1": sellarVar(nil, vartype.Float)}
}

func (*Sellar1) Compute(_ context.Context, in discipline.Values) (discipline.Values, error) {
	x, err := in.Float("x")
	if err != nil {
		return nil, err
	}
	z, err := in.Array("z")
	if err != nil {
		return nil, err
	}
	y2, err := in.Float("y_2")
	if err != nil {
		return nil, err
	}
	return discipline.Values{"y_1": z[0]*z[0] + z[1] + x - 0.2*y2}, nil
}

// Sellar2 computes y_2 = sqrt(|y_1|) + z0 + z1.
type Sellar2 struct{}

func (*Sellar2) InputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"z":   sellarVar([]float64{1, 1}, vartype.Array),
		"y_1": sellarVar(1.0, vartype.Float),
	}
}

func (*Sellar2) OutputGrammar() discipline.Grammar {
	return discipline.Grammar{"y_2": sellarVar(nil, vartype.Float)}
}

func (*Sellar2) Compute(_ context.Context, in discipline.Values) (discipline.Values, error) {
	z, err := in.Array("z")
	if err != nil {
		return nil, err
	}
	y1, err := in.Float("y_1")
	if err != nil {
		return nil, err
	}
	return discipline.Values{"y_2": math.Sqrt(math.Abs(y1)) + z[0] + z[1]}, nil
}
