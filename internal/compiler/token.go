package compiler

import "fmt"

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota

	// Punctuation
	LPAREN   // "("
	RPAREN   // ")"
	LBRACKET // "["
	RBRACKET // "]"
	LBRACE   // "{"
	RBRACE   // "}"
	COMMA    // ","
	COLON    // ":"
	SEMI     // ";"
	TILDE    // "~"

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	ASSIGN // "="
	EQ     // "=="
	NEQ    // "!="
	LESS
	LESS_EQ
	GREATER
	GREATER_EQ

	// Literals & identifiers
	IDENT
	NUMBER
	STRING

	// Keywords
	MODEL
	HORIZON
	STEP
	PARAM
	VAR
	CONSTRAINT
	SEVERITY
	MESSAGE
	AT
	CORRELATED
	IF
	THEN
	ELSE
	AND
	OR
	NOT
	TRUE
	FALSE
)

var tokenNames = map[TokenType]string{
	EOF: "end of input", LPAREN: "'('", RPAREN: "')'", LBRACKET: "'['", RBRACKET: "']'",
	LBRACE: "'{'", RBRACE: "'}'", COMMA: "','", COLON: "':'", SEMI: "';'", TILDE: "'~'",
	PLUS: "'+'", MINUS: "'-'", STAR: "'*'", SLASH: "'/'", ASSIGN: "'='", EQ: "'=='",
	NEQ: "'!='", LESS: "'<'", LESS_EQ: "'<='", GREATER: "'>'", GREATER_EQ: "'>='",
	IDENT: "identifier", NUMBER: "number", STRING: "string",
}

// String returns a human-readable name used in ParseError.Expected.
func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	for kw, tt := range keywords {
		if tt == t {
			return fmt.Sprintf("'%s'", kw)
		}
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"model":      MODEL,
	"horizon":    HORIZON,
	"step":       STEP,
	"param":      PARAM,
	"var":        VAR,
	"constraint": CONSTRAINT,
	"severity":   SEVERITY,
	"message":    MESSAGE,
	"at":         AT,
	"correlated": CORRELATED,
	"if":         IF,
	"then":       THEN,
	"else":       ELSE,
	"and":        AND,
	"or":         OR,
	"not":        NOT,
	"true":       TRUE,
	"false":      FALSE,
}

// Pos is a 1-based source position.
type Pos struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is a lexical token with optional literal value.
type Token struct {
	Type    TokenType
	Lexeme  string // raw text slice
	Literal any    // float64 for NUMBER, string for STRING
	Pos     Pos
	NewLine bool // first token on its line
}
