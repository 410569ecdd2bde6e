// Package testdiscs holds small analytic disciplines used by example studies
// and by the engine tests.
package testdiscs

import (
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers every test discipline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDiscipline("testdiscs.disc1", &registry.RegisteredDiscipline{
		New:         func() discipline.Model { return &Disc1{} },
		Description: "y = a*x + b, indicator = a*b",
	})
	r.RegisterDiscipline("testdiscs.double", &registry.RegisteredDiscipline{
		New:         func() discipline.Model { return &Double{} },
		Description: "y = 2*x",
	})
	r.RegisterDiscipline("testdiscs.disc10", &registry.RegisteredDiscipline{
		New:         func() discipline.Model { return &Disc10{} },
		Description: "y = a*x with a model type chosen at configuration time",
	})
	r.RegisterDiscipline("testdiscs.sellar1", &registry.RegisteredDiscipline{
		New:         func() discipline.Model { return &Sellar1{} },
		Description: "first Sellar discipline",
	})
	r.RegisterDiscipline("testdiscs.sellar2", &registry.RegisteredDiscipline{
		New:         func() discipline.Model { return &Sellar2{} },
		Description: "second Sellar discipline",
	})
}
