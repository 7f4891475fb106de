package ir

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema/model.cue
var modelSchema string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
	schemaErr  error
)

// Schema error codes.
const (
	ErrCodeSchema    = "E801" // document does not match the IR schema
	ErrCodeDecode    = "E802" // document is not valid JSON for the IR types
	ErrCodeHash      = "E803" // stored hash does not match content
	ErrCodeInvalidIR = "E804" // semantic IR invariant violated
)

// SchemaError reports an IR document that failed validation.
type SchemaError struct {
	Code    string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Kind returns the error taxonomy name.
func (e *SchemaError) Kind() string { return "SchemaError" }

// ErrorCode returns the stable error code.
func (e *SchemaError) ErrorCode() string { return e.Code }

// loadSchema compiles the embedded CUE schema once. cue.Context is not
// safe for concurrent use, so callers hold schemaMu while validating.
func loadSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(modelSchema, cue.Filename("model.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile IR schema: %w", err)
			return
		}
		schemaVal = v.LookupPath(cue.ParsePath("#Model"))
	})
	return schemaVal, schemaErr
}

var schemaMu sync.Mutex

// ValidateSchema checks a JSON document against the IR schema.
func ValidateSchema(data []byte) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	def, err := loadSchema()
	if err != nil {
		return err
	}
	doc := schemaCtx.CompileBytes(data, cue.Filename("model.json"))
	if err := doc.Err(); err != nil {
		return &SchemaError{Code: ErrCodeDecode, Message: err.Error()}
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Code: ErrCodeSchema, Message: err.Error()}
	}
	return nil
}

// Load parses, validates and hash-verifies an IR document.
func Load(data []byte) (*Model, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &SchemaError{Code: ErrCodeDecode, Message: err.Error()}
	}
	if err := Check(&m); err != nil {
		return nil, err
	}
	if err := VerifyHash(&m); err != nil {
		return nil, &SchemaError{Code: ErrCodeHash, Message: err.Error()}
	}
	return &m, nil
}

// Marshal renders m as indented JSON for humans and files.
func Marshal(m *Model) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Check enforces IR invariants the schema cannot express.
func Check(m *Model) error {
	seen := make(map[string]bool)
	for _, p := range m.Params {
		if seen[p.Name] {
			return invalidIR("duplicate name %q", p.Name)
		}
		seen[p.Name] = true
		if (p.Value == nil) == (p.Distribution == nil) {
			return invalidIR("param %q must have exactly one of value or distribution", p.Name)
		}
		if d := p.Distribution; d != nil {
			if n := FamilyArity[d.Family]; len(d.Params) != n {
				return invalidIR("param %q: %s takes %d parameters, got %d", p.Name, d.Family, n, len(d.Params))
			}
		}
	}
	for _, v := range m.Vars {
		if seen[v.Name] {
			return invalidIR("duplicate name %q", v.Name)
		}
		seen[v.Name] = true
		if v.Recurrence == nil {
			return invalidIR("var %q has no recurrence", v.Name)
		}
		if v.Init != nil && !v.IsSeries() {
			return invalidIR("scalar var %q cannot have an init expression", v.Name)
		}
	}
	for _, c := range m.Constraints {
		if c.Scope.Kind == ScopeAt && c.Scope.T > m.Horizon {
			return invalidIR("constraint %q is scoped at t=%d beyond horizon %d", c.Name, c.Scope.T, m.Horizon)
		}
	}
	return nil
}

func invalidIR(format string, args ...any) error {
	return &SchemaError{Code: ErrCodeInvalidIR, Message: fmt.Sprintf(format, args...)}
}
