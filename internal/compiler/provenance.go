package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/qml/internal/ir"
)

var provenanceFields = map[string]bool{"source": true, "method": true, "confidence": true, "notes": true}

// ValidateProvenance checks every param's provenance block.
// Returns all errors found (does not fail-fast), in declaration order.
func ValidateProvenance(decl *ModelDecl) []*ProvenanceError {
	var errs []*ProvenanceError
	for _, p := range decl.Params {
		errs = append(errs, validateParamProvenance(p)...)
	}
	return errs
}

func validateParamProvenance(p *ParamDecl) []*ProvenanceError {
	var errs []*ProvenanceError
	fail := func(code string, pos Pos, field, format string, args ...any) {
		errs = append(errs, &ProvenanceError{
			Code: code, Pos: pos, Param: p.Name, MissingField: field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	block := p.Provenance
	if block == nil {
		block = &ProvenanceBlock{Pos: p.Pos}
	}

	// Sorted so that diagnostics are stable.
	var unknown []string
	for k := range block.Fields {
		if !provenanceFields[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		fail(ErrCodeUnknownField, block.Fields[k].Pos, "", "unknown provenance field %q", k)
	}

	// E301: source is required
	if f, ok := block.Fields["source"]; !ok || strings.TrimSpace(f.Text) == "" {
		fail(ErrCodeMissingSource, block.Pos, "source", "missing provenance field source")
	}

	// E302/E303: method is required and must be known
	if f, ok := block.Fields["method"]; !ok || f.Text == "" {
		fail(ErrCodeMissingMethod, block.Pos, "method", "missing provenance field method")
	} else if !ir.ValidMethods[f.Text] {
		fail(ErrCodeInvalidMethod, f.Pos, "", "invalid method %q (valid: %s)", f.Text, validMethodList())
	}

	// E304/E305: confidence is required and must lie in [0,1]
	if f, ok := block.Fields["confidence"]; !ok || f.Number == nil {
		fail(ErrCodeMissingConfidence, block.Pos, "confidence", "missing numeric provenance field confidence")
	} else if *f.Number < 0 || *f.Number > 1 {
		fail(ErrCodeConfidenceRange, f.Pos, "", "confidence %s is outside [0, 1]", f.Text)
	}

	return errs
}

// provenanceOf converts a validated block.
func provenanceOf(p *ParamDecl) ir.Provenance {
	f := p.Provenance.Fields
	return ir.Provenance{
		Source:     f["source"].Text,
		Method:     f["method"].Text,
		Confidence: *f["confidence"].Number,
		Notes:      f["notes"].Text,
	}
}

func validMethodList() string {
	names := make([]string, 0, len(ir.ValidMethods))
	for m := range ir.ValidMethods {
		names = append(names, m)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
