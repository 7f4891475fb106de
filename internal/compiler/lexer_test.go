package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTypes(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestLex_Punctuation(t *testing.T) {
	toks, err := Lex("( ) [ ] { } , : ; ~ + - * / = == != < <= > >=")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{
		LPAREN, RPAREN, LBRACKET, RBRACKET, LBRACE, RBRACE, COMMA, COLON, SEMI, TILDE,
		PLUS, MINUS, STAR, SLASH, ASSIGN, EQ, NEQ, LESS, LESS_EQ, GREATER, GREATER_EQ, EOF,
	}, tokenTypes(toks))
}

func TestLex_KeywordsAndIdentifiers(t *testing.T) {
	toks, err := Lex("model horizon step param var constraint severity message at correlated if then else and or not true false revenue_2")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{
		MODEL, HORIZON, STEP, PARAM, VAR, CONSTRAINT, SEVERITY, MESSAGE, AT, CORRELATED,
		IF, THEN, ELSE, AND, OR, NOT, TRUE, FALSE, IDENT, EOF,
	}, tokenTypes(toks))
	assert.Equal(t, "revenue_2", toks[18].Lexeme)
}

func TestLex_Numbers(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"0", 0},
		{"49", 49},
		{"0.05", 0.05},
		{"1_000_000", 1e6},
		{"2.5e3", 2500},
		{"1E-2", 0.01},
		{"3e+2", 300},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks, err := Lex(tt.src)
			require.NoError(t, err)
			require.Len(t, toks, 2)
			assert.Equal(t, NUMBER, toks[0].Type)
			assert.InDelta(t, tt.want, toks[0].Literal.(float64), 1e-12)
			assert.Equal(t, tt.src, toks[0].Lexeme)
		})
	}
}

func TestLex_NumberBoundaries(t *testing.T) {
	// A fraction needs a digit after the dot.
	toks, err := Lex("1.x")
	require.Error(t, err)
	assert.Nil(t, toks)

	// An exponent marker without digits ends the number.
	toks, err = Lex("12e")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{NUMBER, IDENT, EOF}, tokenTypes(toks))
}

func TestLex_Strings(t *testing.T) {
	toks, err := Lex(`"plain" "say \"hi\"" "a\\b" "line\nnext\tx"`)
	require.NoError(t, err)
	require.Len(t, toks, 5)
	assert.Equal(t, "plain", toks[0].Literal)
	assert.Equal(t, `say "hi"`, toks[1].Literal)
	assert.Equal(t, `a\b`, toks[2].Literal)
	assert.Equal(t, "line\nnext\tx", toks[3].Literal)
}

func TestLex_Comments(t *testing.T) {
	toks, err := Lex("a // trailing\n# whole line\nb")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{IDENT, IDENT, EOF}, tokenTypes(toks))
	assert.Equal(t, "b", toks[1].Lexeme)
}

func TestLex_Positions(t *testing.T) {
	toks, err := Lex("model M {\n  horizon 3\n}")
	require.NoError(t, err)

	assert.Equal(t, Pos{Line: 1, Col: 1}, toks[0].Pos)
	assert.Equal(t, Pos{Line: 1, Col: 7}, toks[1].Pos)
	assert.Equal(t, Pos{Line: 2, Col: 3}, toks[3].Pos)
	assert.Equal(t, Pos{Line: 2, Col: 11}, toks[4].Pos)
	assert.Equal(t, Pos{Line: 3, Col: 1}, toks[5].Pos)

	assert.True(t, toks[0].NewLine)
	assert.False(t, toks[1].NewLine)
	assert.True(t, toks[3].NewLine, "first token of line 2")
	assert.False(t, toks[4].NewLine)
}

func TestLex_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		pos  Pos
		msg  string
	}{
		{"bang", "a ! b", Pos{Line: 1, Col: 3}, "use 'not'"},
		{"unknown character", "x @ y", Pos{Line: 1, Col: 3}, "unexpected character '@'"},
		{"unicode", "x\n  é", Pos{Line: 2, Col: 3}, "unexpected character 'é'"},
		{"unterminated", `"open`, Pos{Line: 1, Col: 1}, "unterminated string"},
		{"newline in string", "\"a\nb\"", Pos{Line: 1, Col: 1}, "unterminated string"},
		{"bad escape", `"\q"`, Pos{Line: 1, Col: 1}, `unknown escape \q`},
		{"trailing separator", "1_", Pos{Line: 1, Col: 1}, "malformed number"},
		{"double separator", "1__0", Pos{Line: 1, Col: 1}, "malformed number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lex(tt.src)
			require.Error(t, err)

			var le *LexError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.pos, le.Pos)
			assert.Contains(t, le.Message, tt.msg)
			assert.Equal(t, ErrCodeLex, le.ErrorCode())
			assert.Equal(t, "LexError", le.Kind())
			assert.Equal(t, tt.pos.String(), le.Location())
		})
	}
}
