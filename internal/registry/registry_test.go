package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/vartype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	in, out discipline.Grammar
}

func (m stubModel) InputGrammar() discipline.Grammar  { return m.in }
func (m stubModel) OutputGrammar() discipline.Grammar { return m.out }
func (m stubModel) Compute(context.Context, discipline.Values) (discipline.Values, error) {
	return discipline.Values{}, nil
}

type stubModule struct{}

func (stubModule) Register(r *Registry) {
	r.RegisterDiscipline("stub.ok", &RegisteredDiscipline{
		New: func() discipline.Model {
			return stubModel{
				in:  discipline.Grammar{"x": {Type: vartype.Float, Default: 1.0}},
				out: discipline.Grammar{"y": {Type: vartype.Float}},
			}
		},
	})
}

func TestRegisterAndInstantiate(t *testing.T) {
	r := New()
	stubModule{}.Register(r)

	m, err := r.Instantiate("stub.ok")
	require.NoError(t, err)
	assert.Contains(t, m.InputGrammar(), "x")

	_, err = r.Instantiate("stub.missing")
	assert.True(t, errors.Is(err, ErrUnknownModule))
	assert.Equal(t, []string{"stub.ok"}, r.Paths())
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := New()
	stubModule{}.Register(r)
	assert.Panics(t, func() { stubModule{}.Register(r) })
	assert.Panics(t, func() { r.RegisterDiscipline("stub.nil", &RegisteredDiscipline{}) })
}

func TestValidateRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("coherent grammars pass", func(t *testing.T) {
		r := New()
		stubModule{}.Register(r)
		assert.NoError(t, r.ValidateRegistry(ctx))
	})

	t.Run("problems are aggregated", func(t *testing.T) {
		r := New()
		r.RegisterDiscipline("stub.bad", &RegisteredDiscipline{
			New: func() discipline.Model {
				return stubModel{
					in:  discipline.Grammar{"x": {Type: vartype.Float, Default: "nope"}},
					out: discipline.Grammar{"x": {Type: vartype.Float}, "z": {Type: "matrix"}},
				}
			},
		})
		r.RegisterDiscipline("stub.nil", &RegisteredDiscipline{
			New: func() discipline.Model { return nil },
		})

		err := r.ValidateRegistry(ctx)
		require.Error(t, err)
		msg := err.Error()
		assert.Contains(t, msg, "registry validation failed")
		assert.Contains(t, msg, "discipline 'stub.bad' inputs")
		assert.Contains(t, msg, "'x' is declared both as input and output")
		assert.Contains(t, msg, "discipline 'stub.nil': constructor returned nil")
	})
}
