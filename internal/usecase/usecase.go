// Package usecase reads and writes anonymized use-case files: YAML mappings
// from study-relative keys, rooted at the <study_ph> placeholder, to
// variable values.
package usecase

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/specialistvlad/studygrid/internal/namespace"
	"github.com/specialistvlad/studygrid/internal/vartype"
	"gopkg.in/yaml.v3"
)

// Export anonymizes the keys of values found under root and converts
// tables into their {columns, rows} form. Keys outside root are skipped.
func Export(root string, values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for key, v := range values {
		if !namespace.IsUnder(key, root) || key == root {
			continue
		}
		out[namespace.Anonymize(root, key)] = encodeValue(v)
	}
	return out
}

// Keys returns the sorted keys of data.
func Keys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write stores data as a YAML use-case file.
func Write(path string, data map[string]any) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding use case: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing use case %s: %w", path, err)
	}
	return nil
}

// Read loads a YAML use-case file. Every key must be anonymized.
func Read(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading use case %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes the content of a use-case file.
func Parse(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding use case: %w", err)
	}
	var errs []error
	out := make(map[string]any, len(data))
	for _, key := range Keys(data) {
		if !namespace.IsUnder(key, namespace.StudyPlaceholder) {
			errs = append(errs, fmt.Errorf("key '%s' does not start with %s", key, namespace.StudyPlaceholder))
			continue
		}
		out[key] = normalize(data[key])
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("use case validation failed:\n%w", errors.Join(errs...))
	}
	return out, nil
}

func encodeValue(v any) any {
	switch tv := v.(type) {
	case *vartype.Table:
		rows := make([]any, 0, tv.Len())
		for _, r := range tv.Rows {
			cells := make([]any, len(r))
			for i, c := range r {
				cells[i] = encodeValue(c)
			}
			rows = append(rows, cells)
		}
		cols := make([]any, len(tv.Columns))
		for i, c := range tv.Columns {
			cols[i] = c
		}
		return map[string]any{"columns": cols, "rows": rows}
	case float64:
		if math.IsNaN(tv) {
			return nil
		}
	}
	return v
}

// normalize turns the non-string-keyed maps yaml produces for mixed keys
// into string-keyed ones.
func normalize(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		for k, e := range tv {
			tv[k] = normalize(e)
		}
		return tv
	case map[any]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range tv {
			tv[i] = normalize(e)
		}
		return tv
	}
	return v
}
