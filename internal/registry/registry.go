package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/studygrid/internal/discipline"
)

// ErrUnknownModule is returned when a module path has no registered constructor.
var ErrUnknownModule = errors.New("unknown discipline module")

// Module is the interface that all discipline modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredDiscipline holds the constructor of one discipline.
type RegisteredDiscipline struct {
	New         func() discipline.Model
	Description string
}

// Registry holds all the registered disciplines of a single application instance.
type Registry struct {
	DisciplineRegistry map[string]*RegisteredDiscipline
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		DisciplineRegistry: make(map[string]*RegisteredDiscipline),
	}
}

// RegisterDiscipline registers the constructor for a module path.
func (r *Registry) RegisterDiscipline(path string, d *RegisteredDiscipline) {
	if _, exists := r.DisciplineRegistry[path]; exists {
		panic(fmt.Sprintf("discipline with module path '%s' already registered", path))
	}
	if d == nil || d.New == nil {
		panic(fmt.Sprintf("discipline '%s' registered without a constructor", path))
	}
	slog.Debug("Registering discipline.", "module", path)
	r.DisciplineRegistry[path] = d
}

// Instantiate creates a fresh model for path.
func (r *Registry) Instantiate(path string) (discipline.Model, error) {
	d, ok := r.DisciplineRegistry[path]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownModule, path)
	}
	return d.New(), nil
}

// Paths lists the registered module paths in order.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.DisciplineRegistry))
	for p := range r.DisciplineRegistry {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
