// Package hclutil holds small helpers shared by the HCL decoders.
package hclutil

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
)

// FindUniqueBlock searches a slice of blocks for all blocks of a given name.
// It returns a diagnostic error if more than one block of that name is found.
// If no block is found, it returns nil.
func FindUniqueBlock(blocks hcl.Blocks, name string) (*hcl.Block, hcl.Diagnostics) {
	var found *hcl.Block
	var diags hcl.Diagnostics

	for _, block := range blocks {
		if block.Type == name {
			if found != nil {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate \"" + name + "\" block",
					Detail:   "Only one \"" + name + "\" block is allowed.",
					Subject:  &block.DefRange,
				})
			}
			found = block
		}
	}

	return found, diags
}

// IsExprDefined reports whether expr was written in the source. Omitted
// optional attributes decode to zero-width placeholder expressions.
func IsExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// DecodeAttr decodes attribute name of attrs into target when present. It
// reports whether the attribute was set.
func DecodeAttr(attrs hcl.Attributes, name string, ectx *hcl.EvalContext, target any) (bool, hcl.Diagnostics) {
	attr, ok := attrs[name]
	if !ok {
		return false, nil
	}
	diags := gohcl.DecodeExpression(attr.Expr, ectx, target)
	return !diags.HasErrors(), diags
}

// Unexpected builds the diagnostic for an attribute or block that is valid
// HCL but not allowed where it appears.
func Unexpected(what string, rng hcl.Range, detail string, args ...any) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Unexpected " + what,
		Detail:   fmt.Sprintf(detail, args...),
		Subject:  rng.Ptr(),
	}
}
