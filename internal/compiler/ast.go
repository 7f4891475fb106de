package compiler

import "github.com/roach88/qml/internal/units"

// ModelDecl is the root of the AST.
type ModelDecl struct {
	Pos         Pos
	Name        string
	Horizon     int
	HorizonPos  Pos
	Step        units.Granularity
	StepPos     Pos
	Params      []*ParamDecl
	Vars        []*VarDecl
	Constraints []*ConstraintDecl
}

// ParamDecl declares an input with a literal value or a distribution.
type ParamDecl struct {
	Pos        Pos
	Name       string
	Type       units.Type
	Value      Expr      // nil when Dist is set
	Dist       *DistExpr // nil when Value is set
	Provenance *ProvenanceBlock
}

// DistExpr is `Family(args...) correlated(name: rho, ...)`.
type DistExpr struct {
	Pos          Pos
	Family       string
	Args         []Expr
	Correlations []CorrelationDecl
}

// CorrelationDecl is one `name: rho` entry.
type CorrelationDecl struct {
	Pos   Pos
	Param string
	Rho   Expr
}

// ProvenanceBlock holds the raw key/value pairs of a provenance block.
type ProvenanceBlock struct {
	Pos    Pos
	Fields map[string]ProvenanceField
}

// ProvenanceField is one provenance entry. Number is set for numeric values.
type ProvenanceField struct {
	Pos    Pos
	Text   string
	Number *float64
}

// VarDecl declares a derived quantity. Scalar vars (and series written
// with the `= expr` shorthand) set Value; series vars set Bindings.
type VarDecl struct {
	Pos      Pos
	Name     string
	Type     units.Type
	Value    Expr
	Bindings []*Binding
}

// Binding is `target[index] = value` inside a series block.
type Binding struct {
	Pos    Pos
	Target string
	Index  Expr
	Value  Expr
}

// ConstraintDecl declares a named predicate.
type ConstraintDecl struct {
	Pos      Pos
	Name     string
	Expr     Expr
	At       *int
	Severity string
	Message  string
}

// Expr is an expression node.
type Expr interface {
	Position() Pos
	exprNode()
}

// NumberLit is a numeric literal with an optional unit word (USD, month).
type NumberLit struct {
	Pos   Pos
	Value float64
	Unit  string
}

// BoolLit is true or false.
type BoolLit struct {
	Pos   Pos
	Value bool
}

// Ident references a param, var, t or dt.
type Ident struct {
	Pos  Pos
	Name string
}

// IndexExpr reads a time series at an index.
type IndexExpr struct {
	Pos    Pos
	Target string
	Index  Expr
}

// UnaryExpr is -x or not x.
type UnaryExpr struct {
	Pos Pos
	Op  TokenType
	X   Expr
}

// BinaryExpr is l op r.
type BinaryExpr struct {
	Pos Pos
	Op  TokenType
	L   Expr
	R   Expr
}

// CallExpr calls a registered function.
type CallExpr struct {
	Pos  Pos
	Name string
	Args []Expr
}

// IfExpr is if c then a else b.
type IfExpr struct {
	Pos  Pos
	Cond Expr
	Then Expr
	Else Expr
}

func (e *NumberLit) Position() Pos  { return e.Pos }
func (e *BoolLit) Position() Pos    { return e.Pos }
func (e *Ident) Position() Pos      { return e.Pos }
func (e *IndexExpr) Position() Pos  { return e.Pos }
func (e *UnaryExpr) Position() Pos  { return e.Pos }
func (e *BinaryExpr) Position() Pos { return e.Pos }
func (e *CallExpr) Position() Pos   { return e.Pos }
func (e *IfExpr) Position() Pos     { return e.Pos }

func (*NumberLit) exprNode()  {}
func (*BoolLit) exprNode()    {}
func (*Ident) exprNode()      {}
func (*IndexExpr) exprNode()  {}
func (*UnaryExpr) exprNode()  {}
func (*BinaryExpr) exprNode() {}
func (*CallExpr) exprNode()   {}
func (*IfExpr) exprNode()     {}
