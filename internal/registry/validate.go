package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/discipline"
)

// ValidateRegistry instantiates every registered discipline and checks that
// its grammar is coherent: known types, defaults matching their type, shared
// variables bound to a namespace, and no name used both as input and output.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, path := range r.Paths() {
		model := r.DisciplineRegistry[path].New()
		if model == nil {
			errs = append(errs, fmt.Sprintf("discipline '%s': constructor returned nil", path))
			continue
		}

		inputs, outputs := model.InputGrammar(), model.OutputGrammar()
		if err := inputs.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("discipline '%s' inputs: %v", path, err))
		}
		if err := outputs.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("discipline '%s' outputs: %v", path, err))
		}
		for name := range inputs {
			if _, ok := outputs[name]; ok {
				errs = append(errs, fmt.Sprintf("discipline '%s': '%s' is declared both as input and output", path, name))
			}
		}

		structuring := false
		for _, spec := range inputs {
			structuring = structuring || spec.Structuring
		}
		if _, ok := model.(discipline.Configurable); structuring && !ok {
			logger.Warn("Discipline declares structuring inputs but has no Setup, changes will not alter its grammar.", "module", path)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}
