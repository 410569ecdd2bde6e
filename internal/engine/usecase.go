package engine

import (
	"context"
	"fmt"
	"reflect"

	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/namespace"
)

// importState tracks the usecase_data import of a driver.
type importState struct {
	version   uint64
	pending   bool
	unmatched []string
}

// observeImport marks the import pending whenever usecase_data changed.
func (p *driverProxy) observeImport(e *Engine, n *Node) {
	full := namespace.Compose(n.FullName, VarUsecaseData)
	version := e.dm.Version(full)
	if version == 0 || version == p.imp.version {
		return
	}
	p.imp.version = version
	p.imp.unmatched = nil
	p.imp.pending = len(usecaseData(e.dm.Value(full))) > 0
}

// applyImport translates the anonymized usecase_data keys under every root
// and writes those the data manager knows. The import stays pending until
// every translated key was applied.
func (p *driverProxy) applyImport(ctx context.Context, e *Engine, n *Node, roots []string) {
	if !p.imp.pending {
		return
	}
	data := usecaseData(e.dm.Value(namespace.Compose(n.FullName, VarUsecaseData)))
	known := make(map[string]any)
	var unmatched []string
	for _, root := range roots {
		for _, key := range sortedKeys(data) {
			full := namespace.Unanonymize(key, root)
			if e.dm.CheckDataInDM(full) {
				known[full] = data[key]
			} else {
				unmatched = append(unmatched, full)
			}
		}
	}
	logger := ctxlog.FromContext(ctx)
	if _, err := e.dm.SetValuesFromDict(known); err != nil {
		logger.Warn("⚠️ Use case values could not be applied.", "driver", n.FullName, "error", err)
	}
	p.imp.unmatched = unmatched
	if len(unmatched) > 0 {
		logger.Debug("Use case import is partial.", "driver", n.FullName,
			"applied", len(known), "dropped", len(unmatched))
		p.waiting = fmt.Sprintf("use case import has %d unmatched keys", len(unmatched))
		return
	}
	p.imp.pending = false
	logger.Info("Use case imported.", "driver", n.FullName, "values", len(known))
}

// usecaseData accepts any string-keyed map shape.
func usecaseData(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}
