package datamanager

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/specialistvlad/studygrid/internal/namespace"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

// ErrUnknownVariable is returned for full names the store does not hold.
var ErrUnknownVariable = errors.New("unknown variable")

// Visibility decides how a short name resolves to a full name.
type Visibility string

const (
	Local    Visibility = "Local"
	Shared   Visibility = "Shared"
	Internal Visibility = "Internal"
)

// IOType tells inputs from outputs.
type IOType string

const (
	In  IOType = "in"
	Out IOType = "out"
)

// Attribute names a metadata field for SetData/GetData.
type Attribute string

const (
	AttrValue             Attribute = "value"
	AttrDefault           Attribute = "default"
	AttrEditable          Attribute = "editable"
	AttrCheckIntegrityMsg Attribute = "check_integrity_msg"
	AttrPossibleValues    Attribute = "possible_values"
	AttrType              Attribute = "type"
	AttrStructuring       Attribute = "structuring"
	AttrNumerical         Attribute = "numerical"
	AttrIOType            Attribute = "io_type"
	AttrVisibility        Attribute = "visibility"
	AttrNamespace         Attribute = "namespace"
)

// Variable is one binding record.
type Variable struct {
	FullName          string
	Type              vartype.Type
	Value             any
	Default           any
	Editable          bool
	Visibility        Visibility
	Namespace         string
	Structuring       bool
	Numerical         bool
	Optional          bool
	IOType            IOType
	Unit              string
	PossibleValues    []any
	CheckIntegrityMsg string
	Version           uint64

	owners map[string]IOType
}

// Current is the value if one was set, the default otherwise.
func (v *Variable) Current() any {
	if v.Value != nil {
		return v.Value
	}
	return v.Default
}

// Owners lists the nodes that declared the variable.
func (v *Variable) Owners() []string {
	return vartype.SortedKeys(v.owners)
}

var valueEqual = []cmp.Option{
	cmpopts.EquateNaNs(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

// Equal compares two variable values structurally, NaN equal to NaN.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, valueEqual...)
}

// Store holds all variables of a study.
type Store struct {
	mu   sync.RWMutex
	vars map[string]*Variable
	rev  uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{vars: make(map[string]*Variable)}
}

// Declare registers v on behalf of owner. Redeclaring an existing variable
// adds the owner and merges flags; the stored value is kept.
func (s *Store) Declare(owner string, v Variable) error {
	if v.FullName == "" {
		return errors.New("variable full name must not be empty")
	}
	if !v.Type.Valid() {
		return fmt.Errorf("variable '%s': unknown type '%s'", v.FullName, v.Type)
	}
	if v.IOType == "" {
		v.IOType = In
	}
	if v.Default != nil {
		def, err := vartype.Coerce(v.Type, v.Default)
		if err != nil {
			return fmt.Errorf("variable '%s' default: %w", v.FullName, err)
		}
		v.Default = def
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.vars[v.FullName]
	if !ok {
		rec := v
		rec.Value = nil
		rec.Version = 1
		rec.owners = map[string]IOType{owner: v.IOType}
		if v.Value != nil {
			val, err := vartype.Coerce(v.Type, v.Value)
			if err != nil {
				return fmt.Errorf("variable '%s' value: %w", v.FullName, err)
			}
			rec.Value = val
		}
		s.vars[v.FullName] = &rec
		s.rev++
		return nil
	}

	if existing.Type != v.Type {
		return fmt.Errorf("variable '%s' declared as %s by %s but as %s by %s",
			v.FullName, existing.Type, strings.Join(existing.Owners(), ", "), v.Type, owner)
	}
	if io, ok := existing.owners[owner]; !ok || io != v.IOType {
		s.rev++
	}
	existing.owners[owner] = v.IOType
	if v.IOType == Out {
		existing.IOType = Out
		existing.Editable = false
	}
	existing.Structuring = existing.Structuring || v.Structuring
	existing.Numerical = existing.Numerical || v.Numerical
	if existing.Default == nil && v.Default != nil {
		existing.Default = v.Default
		if existing.Value == nil {
			existing.Version++
		}
	}
	if len(v.PossibleValues) > 0 {
		existing.PossibleValues = v.PossibleValues
	}
	return nil
}

// Release removes owner from fullName and drops the variable once nobody
// owns it. It reports whether the record was dropped.
func (s *Store) Release(owner, fullName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vars[fullName]
	if !ok {
		return false
	}
	if _, owned := v.owners[owner]; !owned {
		return false
	}
	delete(v.owners, owner)
	s.rev++
	if len(v.owners) == 0 {
		delete(s.vars, fullName)
		return true
	}
	v.IOType = In
	for _, io := range v.owners {
		if io == Out {
			v.IOType = Out
		}
	}
	return false
}

// CheckDataInDM reports whether fullName is known.
func (s *Store) CheckDataInDM(fullName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[fullName]
	return ok
}

// GetValue returns the current value of fullName.
func (s *Store) GetValue(fullName string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[fullName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, fullName)
	}
	return v.Current(), nil
}

// Value is GetValue without the error: unknown names read as nil.
func (s *Store) Value(fullName string) any {
	val, _ := s.GetValue(fullName)
	return val
}

// SetValue coerces and stores val. It reports whether the current value
// changed.
func (s *Store) SetValue(fullName string, val any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setValueLocked(fullName, val)
}

func (s *Store) setValueLocked(fullName string, val any) (bool, error) {
	v, ok := s.vars[fullName]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownVariable, fullName)
	}
	coerced, err := vartype.Coerce(v.Type, val)
	if err != nil {
		return false, fmt.Errorf("variable '%s': %w", fullName, err)
	}
	before := v.Current()
	v.Value = coerced
	if Equal(before, v.Current()) {
		return false, nil
	}
	v.Version++
	s.rev++
	return true, nil
}

// SetValuesFromDict writes every known key and returns how many values
// changed. Unknown or invalid keys are reported together in the error after
// all valid keys were applied.
func (s *Store) SetValuesFromDict(values map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	var errs []error
	for _, key := range vartype.SortedKeys(values) {
		ok, err := s.setValueLocked(key, values[key])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}

// SetData writes one metadata attribute.
func (s *Store) SetData(fullName string, attr Attribute, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vars[fullName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, fullName)
	}
	switch attr {
	case AttrValue:
		_, err := s.setValueLocked(fullName, value)
		return err
	case AttrDefault:
		def, err := vartype.Coerce(v.Type, value)
		if err != nil {
			return fmt.Errorf("variable '%s' default: %w", fullName, err)
		}
		before := v.Current()
		v.Default = def
		if !Equal(before, v.Current()) {
			v.Version++
			s.rev++
		}
	case AttrEditable:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("attribute %s expects a bool, got %T", attr, value)
		}
		if v.Editable != b {
			v.Editable = b
			s.rev++
		}
	case AttrCheckIntegrityMsg:
		msg, ok := value.(string)
		if !ok {
			return fmt.Errorf("attribute %s expects a string, got %T", attr, value)
		}
		if v.CheckIntegrityMsg != msg {
			v.CheckIntegrityMsg = msg
			s.rev++
		}
	case AttrPossibleValues:
		pv, ok := value.([]any)
		if !ok && value != nil {
			return fmt.Errorf("attribute %s expects a list, got %T", attr, value)
		}
		v.PossibleValues = pv
	default:
		return fmt.Errorf("attribute %s is read-only", attr)
	}
	return nil
}

// GetData reads one metadata attribute.
func (s *Store) GetData(fullName string, attr Attribute) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vars[fullName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, fullName)
	}
	switch attr {
	case AttrValue:
		return v.Current(), nil
	case AttrDefault:
		return v.Default, nil
	case AttrEditable:
		return v.Editable, nil
	case AttrCheckIntegrityMsg:
		return v.CheckIntegrityMsg, nil
	case AttrPossibleValues:
		return v.PossibleValues, nil
	case AttrType:
		return v.Type, nil
	case AttrStructuring:
		return v.Structuring, nil
	case AttrNumerical:
		return v.Numerical, nil
	case AttrIOType:
		return v.IOType, nil
	case AttrVisibility:
		return v.Visibility, nil
	case AttrNamespace:
		return v.Namespace, nil
	}
	return nil, fmt.Errorf("unknown attribute %s", attr)
}

// Get returns a copy of the record.
func (s *Store) Get(fullName string) (Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[fullName]
	if !ok {
		return Variable{}, false
	}
	cp := *v
	cp.owners = nil
	return cp, true
}

// Version returns the change counter of fullName, 0 when unknown.
func (s *Store) Version(fullName string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vars[fullName]; ok {
		return v.Version
	}
	return 0
}

// Keys lists the full names under root, sorted.
func (s *Store) Keys(root string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.vars))
	for k := range s.vars {
		if namespace.IsUnder(k, root) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Values returns the current values of every variable under root.
func (s *Store) Values(root string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	for k, v := range s.vars {
		if namespace.IsUnder(k, root) {
			out[k] = v.Current()
		}
	}
	return out
}

// Snapshot copies every record under root.
func (s *Store) Snapshot(root string) []Variable {
	keys := s.Keys(root)
	out := make([]Variable, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.Get(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Revision increases on every declaration, release, value or metadata
// change. Equal revisions mean nothing happened in between.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Len is the number of variables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}
