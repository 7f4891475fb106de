package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/qml/internal/units"
)

// Compile error codes. Type errors (E2xx) are defined in internal/units.
const (
	ErrCodeLex       = "E101" // invalid character or malformed literal
	ErrCodeParse     = "E110" // unexpected token
	ErrCodeDuplicate = "E111" // name declared twice

	ErrCodeSeriesDefinition = "E211" // missing or repeated init/recurrence binding
	ErrCodeFutureReference  = "E212" // reads a value at a later time step
	ErrCodeScalarTime       = "E213" // scalar var depends on time
	ErrCodeNotBoolean       = "E214" // constraint or condition is not Boolean
	ErrCodeBadDistribution  = "E215" // unknown family or invalid distribution parameters
	ErrCodeBadConstant      = "E216" // param value is not a constant expression

	ErrCodeMissingSource     = "E301" // provenance.source absent
	ErrCodeMissingMethod     = "E302" // provenance.method absent
	ErrCodeInvalidMethod     = "E303" // provenance.method not a known method
	ErrCodeMissingConfidence = "E304" // provenance.confidence absent
	ErrCodeConfidenceRange   = "E305" // provenance.confidence outside [0,1]
	ErrCodeUnknownField      = "E306" // unknown provenance field
)

// LexError is returned for invalid character classes and malformed literals.
type LexError struct {
	Pos     Pos
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s: lex error: %s", e.Pos, e.Message)
}

// Kind returns the error taxonomy name.
func (e *LexError) Kind() string { return "LexError" }

// ErrorCode returns the stable error code.
func (e *LexError) ErrorCode() string { return ErrCodeLex }

// Location returns the source position.
func (e *LexError) Location() string { return e.Pos.String() }

// ParseError is returned when the token stream does not match the grammar.
type ParseError struct {
	Code     string
	Pos      Pos
	Expected string
	Found    string
	Message  string
}

func (e *ParseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: parse error: %s", e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: parse error: expected %s, found %s", e.Pos, e.Expected, e.Found)
}

// Kind returns the error taxonomy name.
func (e *ParseError) Kind() string { return "ParseError" }

// ErrorCode returns the stable error code.
func (e *ParseError) ErrorCode() string { return e.Code }

// Location returns the source position.
func (e *ParseError) Location() string { return e.Pos.String() }

// TypeError is a type or unit error located in the source. It wraps
// units.TypeError when the failure came from the unit algebra.
type TypeError struct {
	Code    string
	Pos     Pos
	Node    string // declaration the expression belongs to
	Message string
	Err     *units.TypeError
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: %s in %s: [%s] %s", e.Pos, e.Kind(), e.Node, e.Code, e.Message)
}

// Kind returns "UnitMismatch" for incompatible units, else "TypeError".
func (e *TypeError) Kind() string {
	if e.Code == units.ErrCodeUnitMismatch {
		return "UnitMismatch"
	}
	return "TypeError"
}

// ErrorCode returns the stable error code.
func (e *TypeError) ErrorCode() string { return e.Code }

// Location returns the source position.
func (e *TypeError) Location() string { return e.Pos.String() }

// Unwrap exposes the underlying algebra error.
func (e *TypeError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// ProvenanceError reports a param with incomplete or invalid provenance.
type ProvenanceError struct {
	Code         string
	Pos          Pos
	Param        string
	MissingField string
	Message      string
}

func (e *ProvenanceError) Error() string {
	return fmt.Sprintf("%s: provenance error: param %q: %s", e.Pos, e.Param, e.Message)
}

// Kind returns the error taxonomy name.
func (e *ProvenanceError) Kind() string { return "ProvenanceError" }

// ErrorCode returns the stable error code.
func (e *ProvenanceError) ErrorCode() string { return e.Code }

// Location returns the source position.
func (e *ProvenanceError) Location() string { return e.Pos.String() }

// IsTypeError reports whether err is a located type or unit error.
// Uses errors.As to handle wrapped errors.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

// IsProvenanceError reports whether err is a ProvenanceError.
func IsProvenanceError(err error) bool {
	var pe *ProvenanceError
	return errors.As(err, &pe)
}

// typeErrorAt converts an algebra error into a located TypeError.
func typeErrorAt(pos Pos, node string, err error) error {
	var ue *units.TypeError
	if errors.As(err, &ue) {
		return &TypeError{Code: ue.Code, Pos: pos, Node: node, Message: ue.Message, Err: ue}
	}
	return &TypeError{Code: units.ErrCodeInvalidOperands, Pos: pos, Node: node, Message: err.Error()}
}

func typeErrorf(code string, pos Pos, node, format string, args ...any) error {
	return &TypeError{Code: code, Pos: pos, Node: node, Message: fmt.Sprintf(format, args...)}
}
