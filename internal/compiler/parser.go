package compiler

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/qml/internal/units"
)

// Binding powers for the Pratt expression parser.
const (
	bpNone  = 0
	bpOr    = 20
	bpAnd   = 30
	bpEq    = 40
	bpCmp   = 50
	bpSum   = 60
	bpProd  = 70
	bpUnary = 80
)

func lbp(t TokenType) int {
	switch t {
	case OR:
		return bpOr
	case AND:
		return bpAnd
	case EQ, NEQ:
		return bpEq
	case LESS, LESS_EQ, GREATER, GREATER_EQ:
		return bpCmp
	case PLUS, MINUS:
		return bpSum
	case STAR, SLASH:
		return bpProd
	}
	return bpNone
}

type parser struct {
	toks []Token
	i    int
}

// Parse parses a token stream into a model AST.
func Parse(toks []Token) (*ModelDecl, error) {
	p := &parser{toks: toks}
	return p.model()
}

// ParseSource lexes and parses src.
func ParseSource(src string) (*ModelDecl, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return Parse(toks)
}

func (p *parser) peek() Token { return p.toks[p.i] }

func (p *parser) next() Token {
	t := p.toks[p.i]
	if t.Type != EOF {
		p.i++
	}
	return t
}

func (p *parser) match(tt TokenType) bool {
	if p.peek().Type != tt {
		return false
	}
	p.next()
	return true
}

func (p *parser) need(tt TokenType) (Token, error) {
	if p.peek().Type != tt {
		return Token{}, p.unexpected(tt.String())
	}
	return p.next(), nil
}

func (p *parser) unexpected(expected string) error {
	t := p.peek()
	return &ParseError{Code: ErrCodeParse, Pos: t.Pos, Expected: expected, Found: tokText(t)}
}

func (p *parser) errorf(pos Pos, format string, args ...any) error {
	return &ParseError{Code: ErrCodeParse, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func tokText(t Token) string {
	if t.Type == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Lexeme)
}

// model := 'model' IDENT '{' item* '}'
func (p *parser) model() (*ModelDecl, error) {
	start, err := p.need(MODEL)
	if err != nil {
		return nil, err
	}
	name, err := p.need(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(LBRACE); err != nil {
		return nil, err
	}

	m := &ModelDecl{Pos: start.Pos, Name: name.Lexeme, Horizon: -1}
	for !p.match(RBRACE) {
		if err := p.item(m); err != nil {
			return nil, err
		}
	}
	if p.peek().Type != EOF {
		return nil, p.unexpected("end of input")
	}
	if m.Horizon < 0 {
		return nil, p.errorf(m.Pos, "model %s: missing 'horizon'", m.Name)
	}
	if m.Step == "" {
		return nil, p.errorf(m.Pos, "model %s: missing 'step'", m.Name)
	}
	return m, nil
}

func (p *parser) item(m *ModelDecl) error {
	switch t := p.peek(); t.Type {
	case SEMI:
		p.next()
	case HORIZON:
		p.next()
		n, err := p.integer()
		if err != nil {
			return err
		}
		m.Horizon, m.HorizonPos = n, t.Pos
	case STEP:
		p.next()
		g, err := p.need(IDENT)
		if err != nil {
			return err
		}
		gran, gerr := units.ParseGranularity(g.Lexeme)
		if gerr != nil {
			return p.errorf(g.Pos, "%v", gerr)
		}
		m.Step, m.StepPos = gran, t.Pos
	case PARAM:
		d, err := p.param()
		if err != nil {
			return err
		}
		m.Params = append(m.Params, d)
	case VAR:
		d, err := p.varDecl()
		if err != nil {
			return err
		}
		m.Vars = append(m.Vars, d)
	case CONSTRAINT:
		d, err := p.constraint()
		if err != nil {
			return err
		}
		m.Constraints = append(m.Constraints, d)
	case EOF:
		return p.unexpected("'}'")
	default:
		return p.unexpected("declaration (param, var, constraint, horizon, step)")
	}
	return nil
}

// integer parses a non-negative integral NUMBER.
func (p *parser) integer() (int, error) {
	t, err := p.need(NUMBER)
	if err != nil {
		return 0, err
	}
	v := t.Literal.(float64)
	if v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
		return 0, p.errorf(t.Pos, "expected a non-negative integer, found %s", t.Lexeme)
	}
	return int(v), nil
}

// typeExpr := IDENT ['<' typeArgs '>']
func (p *parser) typeExpr() (units.Type, error) {
	start, err := p.need(IDENT)
	if err != nil {
		return units.Type{}, err
	}
	var sb strings.Builder
	sb.WriteString(start.Lexeme)
	if p.peek().Type == LESS {
		depth := 0
		for {
			t := p.peek()
			switch t.Type {
			case LESS:
				depth++
				sb.WriteString("<")
			case GREATER, GREATER_EQ:
				depth--
				sb.WriteString(">")
			case COMMA:
				sb.WriteString(", ")
			case IDENT:
				sb.WriteString(t.Lexeme)
			default:
				return units.Type{}, p.unexpected("type argument")
			}
			if t.Type == GREATER_EQ && depth == 0 {
				// `T<U>= v`: the '=' belongs to the declaration.
				p.toks[p.i] = Token{Type: ASSIGN, Lexeme: "=", Pos: Pos{Line: t.Pos.Line, Col: t.Pos.Col + 1}}
				break
			}
			if t.Type == GREATER_EQ {
				return units.Type{}, p.unexpected("'>'")
			}
			p.next()
			if depth == 0 {
				break
			}
		}
	}
	typ, err := units.ParseType(sb.String())
	if err != nil {
		return units.Type{}, &TypeError{Code: units.ErrCodeUnknownType, Pos: start.Pos, Node: sb.String(), Message: err.Error()}
	}
	return typ, nil
}

// param := 'param' IDENT ':' type ('=' expr | '~' dist) [provenance]
func (p *parser) param() (*ParamDecl, error) {
	start := p.next()
	name, err := p.need(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(COLON); err != nil {
		return nil, err
	}
	typ, err := p.typeExpr()
	if err != nil {
		return nil, err
	}
	d := &ParamDecl{Pos: start.Pos, Name: name.Lexeme, Type: typ}

	switch {
	case p.match(ASSIGN):
		if d.Value, err = p.expr(bpNone); err != nil {
			return nil, err
		}
	case p.match(TILDE):
		if d.Dist, err = p.dist(); err != nil {
			return nil, err
		}
	default:
		return nil, p.unexpected("'=' or '~'")
	}

	if p.peek().Type == LBRACE {
		if d.Provenance, err = p.provenance(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// dist := IDENT '(' args ')' ['correlated' '(' IDENT ':' expr {',' ...} ')']
func (p *parser) dist() (*DistExpr, error) {
	fam, err := p.need(IDENT)
	if err != nil {
		return nil, err
	}
	args, err := p.args()
	if err != nil {
		return nil, err
	}
	d := &DistExpr{Pos: fam.Pos, Family: fam.Lexeme, Args: args}
	if !p.match(CORRELATED) {
		return d, nil
	}
	if _, err := p.need(LPAREN); err != nil {
		return nil, err
	}
	for {
		other, err := p.need(IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(COLON); err != nil {
			return nil, err
		}
		rho, err := p.expr(bpNone)
		if err != nil {
			return nil, err
		}
		d.Correlations = append(d.Correlations, CorrelationDecl{Pos: other.Pos, Param: other.Lexeme, Rho: rho})
		if p.match(RPAREN) {
			return d, nil
		}
		if _, err := p.need(COMMA); err != nil {
			return nil, err
		}
	}
}

// provenance := '{' (IDENT ':' (STRING | NUMBER | IDENT) [','])* '}'
func (p *parser) provenance() (*ProvenanceBlock, error) {
	open := p.next()
	b := &ProvenanceBlock{Pos: open.Pos, Fields: make(map[string]ProvenanceField)}
	for !p.match(RBRACE) {
		key, err := p.need(IDENT)
		if err != nil {
			return nil, err
		}
		if _, dup := b.Fields[key.Lexeme]; dup {
			return nil, &ParseError{Code: ErrCodeDuplicate, Pos: key.Pos, Message: fmt.Sprintf("provenance field %q given twice", key.Lexeme)}
		}
		if _, err := p.need(COLON); err != nil {
			return nil, err
		}
		v := p.next()
		f := ProvenanceField{Pos: v.Pos}
		switch v.Type {
		case STRING:
			f.Text = v.Literal.(string)
		case IDENT:
			f.Text = v.Lexeme
		case NUMBER:
			n := v.Literal.(float64)
			f.Text, f.Number = v.Lexeme, &n
		default:
			if v.Type != EOF {
				p.i--
			}
			return nil, p.unexpected("string, number or identifier")
		}
		b.Fields[key.Lexeme] = f
		p.match(COMMA)
	}
	return b, nil
}

// varDecl := 'var' IDENT ':' type ('=' expr | '{' binding* '}')
func (p *parser) varDecl() (*VarDecl, error) {
	start := p.next()
	name, err := p.need(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(COLON); err != nil {
		return nil, err
	}
	typ, err := p.typeExpr()
	if err != nil {
		return nil, err
	}
	d := &VarDecl{Pos: start.Pos, Name: name.Lexeme, Type: typ}

	if p.match(ASSIGN) {
		if d.Value, err = p.expr(bpNone); err != nil {
			return nil, err
		}
		return d, nil
	}
	if _, err := p.need(LBRACE); err != nil {
		return nil, p.unexpected("'=' or '{'")
	}
	for !p.match(RBRACE) {
		if p.match(SEMI) {
			continue
		}
		target, err := p.need(IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(LBRACKET); err != nil {
			return nil, err
		}
		idx, err := p.expr(bpNone)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RBRACKET); err != nil {
			return nil, err
		}
		if _, err := p.need(ASSIGN); err != nil {
			return nil, err
		}
		val, err := p.expr(bpNone)
		if err != nil {
			return nil, err
		}
		d.Bindings = append(d.Bindings, &Binding{Pos: target.Pos, Target: target.Lexeme, Index: idx, Value: val})
	}
	return d, nil
}

// constraint := 'constraint' IDENT ':' expr ['at' 't' '=' N]
//
//	['severity' (fatal|warning)] ['message' STRING]
func (p *parser) constraint() (*ConstraintDecl, error) {
	start := p.next()
	name, err := p.need(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(COLON); err != nil {
		return nil, err
	}
	e, err := p.expr(bpNone)
	if err != nil {
		return nil, err
	}
	d := &ConstraintDecl{Pos: start.Pos, Name: name.Lexeme, Expr: e, Severity: "fatal"}

	if p.match(AT) {
		t, err := p.need(IDENT)
		if err != nil {
			return nil, err
		}
		if t.Lexeme != "t" {
			return nil, p.errorf(t.Pos, "expected 't' after 'at', found %q", t.Lexeme)
		}
		if _, err := p.need(ASSIGN); err != nil {
			return nil, err
		}
		k, err := p.integer()
		if err != nil {
			return nil, err
		}
		d.At = &k
	}
	if p.match(SEVERITY) {
		sev, err := p.need(IDENT)
		if err != nil {
			return nil, err
		}
		if sev.Lexeme != "fatal" && sev.Lexeme != "warning" {
			return nil, p.errorf(sev.Pos, "severity must be fatal or warning, found %q", sev.Lexeme)
		}
		d.Severity = sev.Lexeme
	}
	if p.match(MESSAGE) {
		msg, err := p.need(STRING)
		if err != nil {
			return nil, err
		}
		d.Message = msg.Literal.(string)
	}
	return d, nil
}

// args := '(' [expr {',' expr}] ')'
func (p *parser) args() ([]Expr, error) {
	if _, err := p.need(LPAREN); err != nil {
		return nil, err
	}
	var out []Expr
	if p.match(RPAREN) {
		return out, nil
	}
	for {
		e, err := p.expr(bpNone)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if p.match(RPAREN) {
			return out, nil
		}
		if _, err := p.need(COMMA); err != nil {
			return nil, err
		}
	}
}

// expr is the Pratt loop: parse a prefix, then fold infix operators whose
// binding power exceeds minBP. All binary operators are left-associative.
func (p *parser) expr(minBP int) (Expr, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		bp := lbp(op.Type)
		if bp <= minBP {
			return left, nil
		}
		p.next()
		right, err := p.expr(bp)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: op.Pos, Op: op.Type, L: left, R: right}
	}
}

func (p *parser) prefix() (Expr, error) {
	t := p.next()
	switch t.Type {
	case NUMBER:
		lit := &NumberLit{Pos: t.Pos, Value: t.Literal.(float64)}
		if u := p.peek(); u.Type == IDENT && !u.NewLine && isUnitWord(u.Lexeme) {
			p.next()
			lit.Unit = u.Lexeme
		}
		return lit, nil
	case TRUE, FALSE:
		return &BoolLit{Pos: t.Pos, Value: t.Type == TRUE}, nil
	case IDENT:
		switch p.peek().Type {
		case LPAREN:
			args, err := p.args()
			if err != nil {
				return nil, err
			}
			return &CallExpr{Pos: t.Pos, Name: t.Lexeme, Args: args}, nil
		case LBRACKET:
			p.next()
			idx, err := p.expr(bpNone)
			if err != nil {
				return nil, err
			}
			if _, err := p.need(RBRACKET); err != nil {
				return nil, err
			}
			return &IndexExpr{Pos: t.Pos, Target: t.Lexeme, Index: idx}, nil
		}
		return &Ident{Pos: t.Pos, Name: t.Lexeme}, nil
	case LPAREN:
		e, err := p.expr(bpNone)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	case MINUS, NOT:
		x, err := p.expr(bpUnary)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: t.Pos, Op: t.Type, X: x}, nil
	case IF:
		cond, err := p.expr(bpNone)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(THEN); err != nil {
			return nil, err
		}
		then, err := p.expr(bpNone)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(ELSE); err != nil {
			return nil, err
		}
		els, err := p.expr(bpNone)
		if err != nil {
			return nil, err
		}
		return &IfExpr{Pos: t.Pos, Cond: cond, Then: then, Else: els}, nil
	}
	if t.Type != EOF {
		p.i--
	}
	return nil, p.unexpected("expression")
}

// isUnitWord reports whether w can follow a number as its unit: an ISO 4217
// code or a lower-case granularity name.
func isUnitWord(w string) bool {
	if units.ValidCurrency(w) {
		return true
	}
	if w != strings.ToLower(w) {
		return false
	}
	_, err := units.ParseGranularity(w)
	return err == nil
}
