package study

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/fsutil"
	"github.com/specialistvlad/studygrid/internal/hclutil"
	"github.com/specialistvlad/studygrid/internal/usecase"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

var fileSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "values"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "study", LabelNames: []string{"name"}},
		{Type: "namespace", LabelNames: []string{"name"}},
		{Type: "import", LabelNames: []string{"target"}},
		{Type: KindDiscipline, LabelNames: []string{"name"}},
		{Type: KindCoupling, LabelNames: []string{"name"}},
		{Type: KindDriver, LabelNames: []string{"name"}},
	},
}

var processSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "module"},
		{Name: "namespaces"},
		{Name: "flatten_subprocess"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: KindDiscipline, LabelNames: []string{"name"}},
		{Type: KindCoupling, LabelNames: []string{"name"}},
		{Type: KindDriver, LabelNames: []string{"name"}},
	},
}

type studyBody struct {
	MaxPasses *int     `hcl:"max_passes,optional"`
	Remain    hcl.Body `hcl:",remain"`
}

type namespaceBody struct {
	Value   string  `hcl:"value"`
	Display *string `hcl:"display,optional"`
}

type importBody struct {
	File string `hcl:"file"`
}

// Loader reads study definitions from .hcl files.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new study loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load parses every .hcl file under paths into one Definition. Blocks from
// all files are merged in file order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Study loader started.", "path_count", len(paths))

	files, err := fsutil.ResolveStudyFiles(paths...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered study files.", "count", len(files))

	def := &Definition{Values: make(map[string]any), Files: files}
	valueOrigin := make(map[string]string)
	namespaces := make(map[string]string)
	ectx := evalContext()
	var studyBlocks hcl.Blocks

	for _, file := range files {
		hclFile, diags := l.parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		content, diags := hclFile.Body.Content(fileSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, block := range content.Blocks {
			switch block.Type {
			case "study":
				studyBlocks = append(studyBlocks, block)

			case "namespace":
				var body namespaceBody
				if diags := gohcl.DecodeBody(block.Body, ectx, &body); diags.HasErrors() {
					return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
				}
				name := block.Labels[0]
				if prev, ok := namespaces[name]; ok {
					return nil, fmt.Errorf("namespace '%s' is declared in both %s and %s", name, prev, file)
				}
				namespaces[name] = file
				ns := Namespace{Name: name, Value: body.Value}
				if body.Display != nil {
					ns.Display = *body.Display
				}
				def.Namespaces = append(def.Namespaces, ns)

			case "import":
				imp, err := l.loadImport(file, block, ectx)
				if err != nil {
					return nil, err
				}
				def.Imports = append(def.Imports, imp)

			default:
				p, diags := decodeProcess(block, ectx)
				if diags.HasErrors() {
					return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
				}
				def.Process = append(def.Process, p)
			}
		}

		if attr, ok := content.Attributes["values"]; ok {
			values, err := decodeValues(attr, ectx)
			if err != nil {
				return nil, fmt.Errorf("failed to decode values in %s: %w", file, err)
			}
			for k, v := range values {
				if prev, ok := valueOrigin[k]; ok {
					return nil, fmt.Errorf("value '%s' is set in both %s and %s", k, prev, file)
				}
				valueOrigin[k] = file
				def.Values[k] = v
			}
		}
	}

	block, diags := hclutil.FindUniqueBlock(studyBlocks, "study")
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode study block: %w", diags)
	}
	if block == nil {
		return nil, errors.New("no study block found")
	}
	def.Name = block.Labels[0]
	var body studyBody
	if diags := gohcl.DecodeBody(block.Body, ectx, &body); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode study block: %w", diags)
	}
	if body.MaxPasses != nil {
		def.MaxPasses = *body.MaxPasses
	}

	if err := validateNames(def.Process); err != nil {
		return nil, err
	}

	logger.Debug("Study loading complete.", "study", def.Name, "namespaces", len(def.Namespaces), "values", len(def.Values), "imports", len(def.Imports))
	return def, nil
}

func (l *Loader) loadImport(file string, block *hcl.Block, ectx *hcl.EvalContext) (Import, error) {
	var body importBody
	if diags := gohcl.DecodeBody(block.Body, ectx, &body); diags.HasErrors() {
		return Import{}, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}
	path := body.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(file), path)
	}
	data, err := usecase.Read(path)
	if err != nil {
		return Import{}, fmt.Errorf("import into '%s': %w", block.Labels[0], err)
	}
	return Import{Target: block.Labels[0], File: path, Data: data}, nil
}

func decodeProcess(block *hcl.Block, ectx *hcl.EvalContext) (*Process, hcl.Diagnostics) {
	p := &Process{Kind: block.Type, Name: block.Labels[0]}
	content, diags := block.Body.Content(processSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	attrs := content.Attributes
	_, d := hclutil.DecodeAttr(attrs, "module", ectx, &p.Module)
	diags = append(diags, d...)
	_, d = hclutil.DecodeAttr(attrs, "namespaces", ectx, &p.Namespaces)
	diags = append(diags, d...)
	_, d = hclutil.DecodeAttr(attrs, "flatten_subprocess", ectx, &p.Flatten)
	diags = append(diags, d...)
	if diags.HasErrors() {
		return nil, diags
	}

	switch p.Kind {
	case KindDiscipline:
		if p.Module == "" {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Missing module",
				Detail:   fmt.Sprintf("discipline %q must set module.", p.Name),
				Subject:  block.DefRange.Ptr(),
			})
		}
		if len(content.Blocks) > 0 {
			diags = append(diags, hclutil.Unexpected("block", content.Blocks[0].DefRange,
				"discipline %q cannot contain sub-processes.", p.Name))
		}
		if attr, ok := attrs["flatten_subprocess"]; ok {
			diags = append(diags, hclutil.Unexpected("attribute", attr.Range,
				"flatten_subprocess only applies to drivers."))
		}
	default:
		for _, name := range []string{"module", "namespaces"} {
			if attr, ok := attrs[name]; ok {
				diags = append(diags, hclutil.Unexpected("attribute", attr.Range,
					"%s %q cannot set %s; only disciplines can.", p.Kind, p.Name, name))
			}
		}
		if attr, ok := attrs["flatten_subprocess"]; ok && p.Kind == KindCoupling {
			diags = append(diags, hclutil.Unexpected("attribute", attr.Range,
				"flatten_subprocess only applies to drivers."))
		}
	}

	for _, child := range content.Blocks {
		c, d := decodeProcess(child, ectx)
		diags = append(diags, d...)
		if c != nil {
			p.Children = append(p.Children, c)
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}
	return p, diags
}

func decodeValues(attr *hcl.Attribute, ectx *hcl.EvalContext) (map[string]any, error) {
	v, diags := attr.Expr.Value(ectx)
	if diags.HasErrors() {
		return nil, diags
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("values must be an object, got %s", v.Type().FriendlyName())
	}
	native, err := vartype.FromCty(v)
	if err != nil {
		return nil, err
	}
	out, _ := native.(map[string]any)
	return out, nil
}

// validateNames rejects siblings sharing a name.
func validateNames(ps []*Process) error {
	seen := make(map[string]string)
	var errs []error
	for _, p := range ps {
		if kind, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s '%s' has the same name as a sibling %s", p.Kind, p.Name, kind))
			continue
		}
		seen[p.Name] = p.Kind
		if err := validateNames(p.Children); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
