package ir

import (
	"encoding/json"
	"time"

	"github.com/roach88/qml/internal/units"
)

// Model is a compiled model: the root container of the IR.
// Params, Vars and Constraints keep declaration order, which is also the
// default output order.
type Model struct {
	ModelName   string            `json:"model_name"`
	ModelHash   string            `json:"model_hash"`
	IRVersion   string            `json:"ir_version"`
	Horizon     int               `json:"horizon"` // t_max; steps run 0..Horizon inclusive
	Step        units.Granularity `json:"step"`
	Params      []Param           `json:"params"`
	Vars        []Var             `json:"vars"`
	Constraints []Constraint      `json:"constraints"`
}

// MarshalJSON writes empty lists instead of null so that documents match
// the schema and a model hashes the same whether its slices are nil or empty.
func (m Model) MarshalJSON() ([]byte, error) {
	type plain Model
	out := plain(m)
	if out.Params == nil {
		out.Params = []Param{}
	}
	if out.Vars == nil {
		out.Vars = []Var{}
	}
	if out.Constraints == nil {
		out.Constraints = []Constraint{}
	}
	return json.Marshal(out)
}

// Param is an immutable, typed input holding either a literal Value or a
// Distribution, never both.
type Param struct {
	Name         string           `json:"name"`
	Type         units.Type       `json:"type"`
	Value        *float64         `json:"value,omitempty"`
	Distribution *Distribution    `json:"distribution,omitempty"`
	Provenance   Provenance       `json:"provenance"`
	Calibration  *CalibrationMeta `json:"calibration,omitempty"`
}

// IsStochastic reports whether p is drawn from a non-constant distribution.
func (p *Param) IsStochastic() bool {
	return p.Distribution != nil && p.Distribution.Family != FamilyConstant
}

// Provenance records where a parameter came from and how much the modeler
// trusts it. Every Param must carry a complete Provenance.
type Provenance struct {
	Source     string  `json:"source"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
	Notes      string  `json:"notes,omitempty"`
}

// Provenance methods.
const (
	MethodObserved   = "observed"
	MethodEstimated  = "estimated"
	MethodExpert     = "expert"
	MethodAssumption = "assumption"
	MethodBenchmark  = "benchmark"
	MethodMLE        = "mle"
	MethodCalibrated = "calibrated"
)

// ValidMethods defines allowed provenance methods.
var ValidMethods = map[string]bool{
	MethodObserved:   true,
	MethodEstimated:  true,
	MethodExpert:     true,
	MethodAssumption: true,
	MethodBenchmark:  true,
	MethodMLE:        true,
	MethodCalibrated: true,
}

// SourceCalibrated is the provenance source of parameters rewritten by the
// calibration engine.
const SourceCalibrated = "calibrated"

// Distribution families.
const (
	FamilyNormal    = "normal"
	FamilyBeta      = "beta"
	FamilyLogNormal = "lognormal"
	FamilyUniform   = "uniform"
	FamilyConstant  = "constant"
)

// FamilyArity maps each family to its parameter count, in positional order:
// normal(mu, sigma), beta(alpha, beta), lognormal(mu, sigma) in log space,
// uniform(min, max), constant(v).
var FamilyArity = map[string]int{
	FamilyNormal:    2,
	FamilyBeta:      2,
	FamilyLogNormal: 2,
	FamilyUniform:   2,
	FamilyConstant:  1,
}

// Distribution is the serialized form of a parameter's distribution.
type Distribution struct {
	Family       string        `json:"family"`
	Params       []float64     `json:"params"`
	Correlations []Correlation `json:"correlations,omitempty"`
}

// Correlation declares a linear (Gaussian copula) correlation with another
// stochastic parameter.
type Correlation struct {
	Param string  `json:"param"`
	Rho   float64 `json:"rho"`
}

// CalibrationMeta is attached to parameters produced by calibration.
type CalibrationMeta struct {
	Timestamp   time.Time             `json:"timestamp"`
	RunID       string                `json:"run_id,omitempty"`
	Samples     int                   `json:"samples"`
	AIC         float64               `json:"aic"`
	BIC         float64               `json:"bic"`
	KSStatistic float64               `json:"ks_statistic"`
	KSPValue    float64               `json:"ks_p_value"`
	Intervals   map[string][2]float64 `json:"intervals,omitempty"`
}

// Var is a derived quantity. A Var whose Type is a TimeSeries has a
// Recurrence in normalized x[t] form and an optional Init for t=0; a scalar
// Var has only Recurrence, evaluated once per sample.
type Var struct {
	Name       string     `json:"name"`
	Type       units.Type `json:"type"`
	Init       *Expr      `json:"init,omitempty"`
	Recurrence *Expr      `json:"recurrence"`
}

// IsSeries reports whether v is time-indexed.
func (v *Var) IsSeries() bool {
	return v.Type.Kind == units.KindSeries
}

// Severity classifies constraint violations.
type Severity string

// Severities.
const (
	SeverityFatal   Severity = "fatal"
	SeverityWarning Severity = "warning"
)

// Scope kinds.
const (
	ScopeAll    = "all"    // every step
	ScopeAt     = "at"     // a single step
	ScopeStatic = "static" // once, before the time loop
)

// Scope selects the time steps at which a constraint is checked.
type Scope struct {
	Kind string `json:"kind"`
	T    int    `json:"t,omitempty"`
}

// Applies reports whether the scope includes step t.
func (s Scope) Applies(t int) bool {
	switch s.Kind {
	case ScopeAt:
		return s.T == t
	case ScopeStatic:
		return t == 0
	}
	return true
}

// Constraint is a named boolean predicate over params and vars.
type Constraint struct {
	Name     string   `json:"name"`
	Expr     *Expr    `json:"expr"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Scope    Scope    `json:"scope"`
}

// Expression node kinds.
const (
	ExprNum    = "num"    // numeric literal
	ExprRef    = "ref"    // param or scalar var
	ExprIndex  = "index"  // time series read
	ExprTime   = "t"      // current step as a Fraction
	ExprDt     = "dt"     // one step as a Duration
	ExprBinary = "binary" // Args[0] Operator Args[1]
	ExprUnary  = "unary"  // Operator Args[0]
	ExprCall   = "call"   // Name(Args...)
	ExprIf     = "if"     // if Args[0] then Args[1] else Args[2]
)

// Expr is a typed expression node. Every node carries the SemanticType the
// checker derived for it.
type Expr struct {
	Kind     string     `json:"kind"`
	Type     units.Type `json:"type"`
	Value    float64    `json:"value,omitempty"`
	Name     string     `json:"name,omitempty"`
	Operator string     `json:"operator,omitempty"`
	Index    *TimeIndex `json:"index,omitempty"`
	Args     []*Expr    `json:"args,omitempty"`

	// Scale multiplies the node's result and RightScale its right operand
	// (or else-branch). Zero means 1.
	Scale      float64 `json:"scale,omitempty"`
	RightScale float64 `json:"right_scale,omitempty"`
}

// TimeIndex is either relative (t + Offset, Offset <= 0 after
// normalization) or absolute (step Offset).
type TimeIndex struct {
	Relative bool `json:"relative"`
	Offset   int  `json:"offset"`
}

// Resolve returns the absolute step read at step t.
func (ix TimeIndex) Resolve(t int) int {
	if ix.Relative {
		return t + ix.Offset
	}
	return ix.Offset
}

// ScaleOr1 returns the node's result scale.
func (e *Expr) ScaleOr1() float64 {
	if e.Scale == 0 {
		return 1
	}
	return e.Scale
}

// RightScaleOr1 returns the node's right-operand scale.
func (e *Expr) RightScaleOr1() float64 {
	if e.RightScale == 0 {
		return 1
	}
	return e.RightScale
}

// Walk calls fn for e and every descendant in pre-order.
func (e *Expr) Walk(fn func(*Expr)) {
	if e == nil {
		return
	}
	fn(e)
	for _, a := range e.Args {
		a.Walk(fn)
	}
}

// ParamByName returns the named param.
func (m *Model) ParamByName(name string) (*Param, bool) {
	for i := range m.Params {
		if m.Params[i].Name == name {
			return &m.Params[i], true
		}
	}
	return nil, false
}

// VarByName returns the named var.
func (m *Model) VarByName(name string) (*Var, bool) {
	for i := range m.Vars {
		if m.Vars[i].Name == name {
			return &m.Vars[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of m. Calibration uses it to derive a new IR
// without touching the original.
func (m *Model) Clone() *Model {
	out := *m
	out.Params = make([]Param, len(m.Params))
	for i, p := range m.Params {
		cp := p
		if p.Value != nil {
			v := *p.Value
			cp.Value = &v
		}
		if p.Distribution != nil {
			d := *p.Distribution
			d.Params = append([]float64(nil), p.Distribution.Params...)
			d.Correlations = append([]Correlation(nil), p.Distribution.Correlations...)
			cp.Distribution = &d
		}
		if p.Calibration != nil {
			c := *p.Calibration
			if p.Calibration.Intervals != nil {
				c.Intervals = make(map[string][2]float64, len(p.Calibration.Intervals))
				for k, v := range p.Calibration.Intervals {
					c.Intervals[k] = v
				}
			}
			cp.Calibration = &c
		}
		out.Params[i] = cp
	}
	// Vars and constraints are never rewritten after emission, so their
	// expression trees are shared.
	out.Vars = append([]Var(nil), m.Vars...)
	out.Constraints = append([]Constraint(nil), m.Constraints...)
	return &out
}
