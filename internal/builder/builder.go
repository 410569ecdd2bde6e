package builder

import (
	"fmt"
)

// Kind tells what a builder instantiates.
type Kind int

const (
	KindDiscipline Kind = iota
	KindCoupling
	KindDriver
)

func (k Kind) String() string {
	switch k {
	case KindDiscipline:
		return "discipline"
	case KindCoupling:
		return "coupling"
	case KindDriver:
		return "driver"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Builder is an immutable instantiation template.
type Builder struct {
	name       string
	kind       Kind
	module     string
	namespaces []string
	subs       []*Builder
	flatten    bool
	hidden     bool
}

// Discipline creates a builder for the registered module path.
func Discipline(name, module string, namespaceIDs ...string) *Builder {
	return &Builder{
		name:       name,
		kind:       KindDiscipline,
		module:     module,
		namespaces: append([]string(nil), namespaceIDs...),
	}
}

// Coupling groups sub-builders.
func Coupling(name string, subs ...*Builder) *Builder {
	return &Builder{
		name: name,
		kind: KindCoupling,
		subs: append([]*Builder(nil), subs...),
	}
}

// DriverOption tunes a driver builder.
type DriverOption func(*Builder)

// FlattenSubprocess makes a mono-instance driver instantiate its
// sub-builders directly instead of wrapping them in a sub-coupling.
func FlattenSubprocess() DriverOption {
	return func(b *Builder) { b.flatten = true }
}

// Driver creates an evaluator builder over subs.
func Driver(name string, subs []*Builder, opts ...DriverOption) *Builder {
	b := &Builder{
		name: name,
		kind: KindDriver,
		subs: append([]*Builder(nil), subs...),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name is the node name the builder instantiates.
func (b *Builder) Name() string { return b.name }

// Kind returns the builder kind.
func (b *Builder) Kind() Kind { return b.kind }

// Module is the registry path of a discipline builder.
func (b *Builder) Module() string { return b.module }

// Flatten reports whether a driver flattens its sub-process.
func (b *Builder) Flatten() bool { return b.flatten }

// Hidden reports whether the node is left out of display trees.
func (b *Builder) Hidden() bool { return b.hidden }

// Namespaces returns a copy of the associated namespace IDs.
func (b *Builder) Namespaces() []string {
	return append([]string(nil), b.namespaces...)
}

// SubBuilders returns a copy of the sub-builder list.
func (b *Builder) SubBuilders() []*Builder {
	return append([]*Builder(nil), b.subs...)
}

func (b *Builder) clone() *Builder {
	cp := *b
	cp.namespaces = append([]string(nil), b.namespaces...)
	cp.subs = append([]*Builder(nil), b.subs...)
	return &cp
}

// WithName returns a copy renamed to name.
func (b *Builder) WithName(name string) *Builder {
	cp := b.clone()
	cp.name = name
	return cp
}

// WithNamespaces returns a copy associated with additional namespace IDs.
func (b *Builder) WithNamespaces(ids ...string) *Builder {
	cp := b.clone()
	cp.namespaces = append(cp.namespaces, ids...)
	return cp
}

// Hide returns a copy that display trees skip.
func (b *Builder) Hide() *Builder {
	cp := b.clone()
	cp.hidden = true
	return cp
}

// Rebase returns a deep copy of the builder tree where every associated
// namespace ID went through mapID. The receiver is not modified.
func (b *Builder) Rebase(mapID func(id string) (string, error)) (*Builder, error) {
	cp := b.clone()
	for i, id := range cp.namespaces {
		newID, err := mapID(id)
		if err != nil {
			return nil, fmt.Errorf("builder '%s': %w", b.name, err)
		}
		cp.namespaces[i] = newID
	}
	for i, sub := range cp.subs {
		rebased, err := sub.Rebase(mapID)
		if err != nil {
			return nil, err
		}
		cp.subs[i] = rebased
	}
	return cp, nil
}

// NamespaceIDs collects every namespace ID associated anywhere in list.
func NamespaceIDs(list []*Builder) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(bs []*Builder)
	walk = func(bs []*Builder) {
		for _, b := range bs {
			for _, id := range b.namespaces {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
			walk(b.subs)
		}
	}
	walk(list)
	return out
}

// Describe renders the builder tree, one line per builder.
func Describe(list []*Builder) []string {
	var lines []string
	var walk func(bs []*Builder, depth int)
	walk = func(bs []*Builder, depth int) {
		for _, b := range bs {
			line := fmt.Sprintf("%*s%s %s", depth*2, "", b.kind, b.name)
			if b.module != "" {
				line += " (" + b.module + ")"
			}
			lines = append(lines, line)
			walk(b.subs, depth+1)
		}
	}
	walk(list, 0)
	return lines
}
