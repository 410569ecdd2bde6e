package mda

import (
	"sync"

	"github.com/specialistvlad/studygrid/internal/datamanager"
)

// Overlay reads through to a base store and keeps its own writes local.
type Overlay struct {
	base  Store
	mu    sync.RWMutex
	local map[string]any
}

// NewOverlay creates an overlay seeded with values.
func NewOverlay(base Store, values map[string]any) *Overlay {
	o := &Overlay{base: base, local: make(map[string]any, len(values))}
	for k, v := range values {
		o.local[k] = v
	}
	return o
}

func (o *Overlay) Value(fullName string) any {
	o.mu.RLock()
	v, ok := o.local[fullName]
	o.mu.RUnlock()
	if ok {
		return v
	}
	return o.base.Value(fullName)
}

func (o *Overlay) SetValue(fullName string, v any) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.local[fullName]
	o.local[fullName] = v
	return !ok || !datamanager.Equal(prev, v), nil
}

// Local returns the values written to the overlay.
func (o *Overlay) Local() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]any, len(o.local))
	for k, v := range o.local {
		out[k] = v
	}
	return out
}
