// Package namespace maps logical namespace names (ns_ac, ns_eval, ...) to
// dotted paths under a study root.
//
// A namespace is either shared, meaning it is the binding every discipline
// sees when it asks for that name, or local to the builder it was created
// for. Shared bindings carry an owner; a second owner asking for the same
// name with a different path is a configuration error, never an overwrite.
package namespace

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// Separator joins path segments.
	Separator = "."
	// StudyPlaceholder stands for the study root in anonymized keys.
	StudyPlaceholder = "<study_ph>"
)

// ErrConflict is wrapped by every ConflictError.
var ErrConflict = errors.New("namespace conflict")

// ConflictError reports two owners claiming the same shared namespace name
// with different paths.
type ConflictError struct {
	Name     string
	Owner    string
	Value    string
	Existing *Namespace
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("namespace '%s' bound to '%s' by '%s' cannot be rebound to '%s' by '%s'",
		e.Name, e.Existing.Value, e.Existing.Owner, e.Value, e.Owner)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Namespace is one binding of a logical name to a path.
type Namespace struct {
	Name    string
	Value   string
	Display string
	Owner   string
}

// ID identifies a binding. Two bindings with the same name and path share an ID.
func (n *Namespace) ID() string {
	return n.Name + "__" + n.Value
}

// DisplayValue is the path shown in tree views.
func (n *Namespace) DisplayValue() string {
	if n.Display != "" {
		return n.Display
	}
	return n.Value
}

// Manager owns every namespace of a study.
type Manager struct {
	study    string
	byID     map[string]*Namespace
	shared   map[string]*Namespace
	versions map[string]uint64
}

// NewManager creates a manager for the given study root.
func NewManager(study string) *Manager {
	return &Manager{
		study:    study,
		byID:     make(map[string]*Namespace),
		shared:   make(map[string]*Namespace),
		versions: make(map[string]uint64),
	}
}

// Study returns the study root.
func (m *Manager) Study() string { return m.study }

type addOptions struct {
	display string
	owner   string
	local   bool
}

// Option tunes Add.
type Option func(*addOptions)

// WithDisplay sets the path shown in tree views.
func WithDisplay(display string) Option {
	return func(o *addOptions) { o.display = display }
}

// WithOwner records who claims the shared binding.
func WithOwner(owner string) Option {
	return func(o *addOptions) { o.owner = owner }
}

// Local registers the binding without touching the shared dictionary. Used
// for builder-associated namespaces that are rebased per scenario.
func Local() Option {
	return func(o *addOptions) { o.local = true }
}

// Add registers or rebinds a namespace and returns its ID.
func (m *Manager) Add(name, value string, opts ...Option) (string, error) {
	if name == "" {
		return "", errors.New("namespace name must not be empty")
	}
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	ns := &Namespace{Name: name, Value: value, Display: o.display, Owner: o.owner}
	if existing, ok := m.byID[ns.ID()]; ok {
		if o.display != "" {
			existing.Display = o.display
		}
		ns = existing
	} else {
		m.byID[ns.ID()] = ns
	}

	if o.local {
		return ns.ID(), nil
	}

	current, ok := m.shared[name]
	switch {
	case !ok:
		m.shared[name] = ns
		m.versions[name]++
	case current.Value == value:
		// compatible claim, keep the first owner
	case current.Owner == o.owner:
		m.shared[name] = ns
		m.versions[name]++
	default:
		return "", &ConflictError{Name: name, Owner: o.owner, Value: value, Existing: current}
	}
	return ns.ID(), nil
}

// Get returns the binding registered under id.
func (m *Manager) Get(id string) (*Namespace, bool) {
	ns, ok := m.byID[id]
	return ns, ok
}

// Shared returns the current shared binding for name.
func (m *Manager) Shared(name string) (*Namespace, bool) {
	ns, ok := m.shared[name]
	return ns, ok
}

// Version increases every time the shared binding of name changes.
func (m *Manager) Version(name string) uint64 {
	return m.versions[name]
}

// RemoveOwner forgets every binding, local or shared, claimed by owner.
func (m *Manager) RemoveOwner(owner string) {
	for id, ns := range m.byID {
		if ns.Owner != owner {
			continue
		}
		delete(m.byID, id)
		if m.shared[ns.Name] == ns {
			delete(m.shared, ns.Name)
			m.versions[ns.Name]++
		}
	}
}

// List returns all bindings sorted by name then path.
func (m *Manager) List() []*Namespace {
	out := make([]*Namespace, 0, len(m.byID))
	for _, ns := range m.byID {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// SharedValues returns name -> path for the shared dictionary.
func (m *Manager) SharedValues() map[string]string {
	out := make(map[string]string, len(m.shared))
	for name, ns := range m.shared {
		out[name] = ns.Value
	}
	return out
}

// Compose joins non-empty segments into a dotted path.
func Compose(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, Separator)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, Separator)
}

// Split breaks a dotted path into segments.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}

// IsUnder reports whether path equals root or lies below it, segment-wise.
func IsUnder(path, root string) bool {
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+Separator)
}

// Relative strips root from path.
func Relative(root, path string) (string, bool) {
	if root == "" {
		return path, true
	}
	if path == root {
		return "", true
	}
	if rest, ok := strings.CutPrefix(path, root+Separator); ok {
		return rest, true
	}
	return path, false
}

// InsertAfter inserts extra into old right after the anchor path after. A
// path that does not lie under the anchor is returned unchanged.
func InsertAfter(old, extra, after string) string {
	rest, ok := Relative(after, old)
	if !ok {
		return old
	}
	return Compose(after, extra, rest)
}

// ShortName is the last segment of a path.
func ShortName(path string) string {
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Anonymize replaces the study root of key with StudyPlaceholder.
func Anonymize(study, key string) string {
	if rest, ok := Relative(study, key); ok {
		return Compose(StudyPlaceholder, rest)
	}
	return key
}

// Unanonymize replaces StudyPlaceholder in key with root.
func Unanonymize(key, root string) string {
	return strings.Replace(key, StudyPlaceholder, root, 1)
}
