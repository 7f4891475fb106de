package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Lexer scans model source into tokens.
type Lexer struct {
	src     string
	start   int // start index of current token
	cur     int // current index
	line    int // 1-based
	col     int // 1-based column of cur
	startAt Pos
	newLine bool
	tokens  []Token
}

// NewLexer creates a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1, newLine: true}
}

// Lex tokenizes src. The returned slice always ends with an EOF token.
func Lex(src string) ([]Token, error) {
	return NewLexer(src).Scan()
}

// Scan consumes the whole input.
func (l *Lexer) Scan() ([]Token, error) {
	for {
		l.skipWhitespace()
		l.start = l.cur
		l.startAt = Pos{Line: l.line, Col: l.col}
		if l.isAtEnd() {
			l.add(EOF, nil)
			return l.tokens, nil
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekN(n int) byte {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

func (l *Lexer) advance() byte {
	b := l.src[l.cur]
	l.cur++
	if b == '\n' {
		l.line++
		l.col = 1
		l.newLine = true
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) match(b byte) bool {
	if l.peek() != b {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) add(tt TokenType, lit any) {
	l.tokens = append(l.tokens, Token{
		Type:    tt,
		Lexeme:  l.src[l.start:l.cur],
		Literal: lit,
		Pos:     l.startAt,
		NewLine: l.newLine,
	})
	l.newLine = false
}

func (l *Lexer) err(format string, args ...any) error {
	return &LexError{Pos: l.startAt, Message: fmt.Sprintf(format, args...)}
}

// skipWhitespace skips blanks and line comments ("//" or "#").
func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() {
		switch c := l.peek(); {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '#' || (c == '/' && l.peekN(1) == '/'):
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func isDigit(b byte) bool    { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool    { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_' }
func isAlphaNum(b byte) bool { return isAlpha(b) || isDigit(b) }

func (l *Lexer) scanToken() error {
	c := l.advance()
	switch c {
	case '(':
		l.add(LPAREN, nil)
	case ')':
		l.add(RPAREN, nil)
	case '[':
		l.add(LBRACKET, nil)
	case ']':
		l.add(RBRACKET, nil)
	case '{':
		l.add(LBRACE, nil)
	case '}':
		l.add(RBRACE, nil)
	case ',':
		l.add(COMMA, nil)
	case ':':
		l.add(COLON, nil)
	case ';':
		l.add(SEMI, nil)
	case '~':
		l.add(TILDE, nil)
	case '+':
		l.add(PLUS, nil)
	case '-':
		l.add(MINUS, nil)
	case '*':
		l.add(STAR, nil)
	case '/':
		l.add(SLASH, nil)
	case '=':
		if l.match('=') {
			l.add(EQ, nil)
		} else {
			l.add(ASSIGN, nil)
		}
	case '!':
		if !l.match('=') {
			return l.err("unexpected '!' (use 'not' for negation)")
		}
		l.add(NEQ, nil)
	case '<':
		if l.match('=') {
			l.add(LESS_EQ, nil)
		} else {
			l.add(LESS, nil)
		}
	case '>':
		if l.match('=') {
			l.add(GREATER_EQ, nil)
		} else {
			l.add(GREATER, nil)
		}
	case '"':
		s, err := l.scanString()
		if err != nil {
			return err
		}
		l.add(STRING, s)
	default:
		switch {
		case isDigit(c):
			v, err := l.scanNumber()
			if err != nil {
				return err
			}
			l.add(NUMBER, v)
		case isAlpha(c):
			for isAlphaNum(l.peek()) {
				l.advance()
			}
			word := l.src[l.start:l.cur]
			if kw, ok := keywords[word]; ok {
				l.add(kw, nil)
			} else {
				l.add(IDENT, word)
			}
		default:
			r, _ := utf8.DecodeRuneInString(l.src[l.start:])
			return l.err("unexpected character %q", r)
		}
	}
	return nil
}

// scanNumber scans digits with optional '_' separators, fraction and
// exponent. The first digit has already been consumed.
func (l *Lexer) scanNumber() (float64, error) {
	digits := func() {
		for isDigit(l.peek()) || (l.peek() == '_' && isDigit(l.peekN(1))) {
			l.advance()
		}
	}
	digits()
	if l.peek() == '.' && isDigit(l.peekN(1)) {
		l.advance()
		digits()
	}
	if c := l.peek(); c == 'e' || c == 'E' {
		n := 1
		if s := l.peekN(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(l.peekN(n)) {
			for range n {
				l.advance()
			}
			digits()
		}
	}
	if l.peek() == '_' {
		return 0, l.err("malformed number %q", l.src[l.start:l.cur+1])
	}
	text := strings.ReplaceAll(l.src[l.start:l.cur], "_", "")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, l.err("malformed number %q", l.src[l.start:l.cur])
	}
	return v, nil
}

// scanString scans a double-quoted string. The opening quote has already
// been consumed. Supported escapes: \" \\ \n \t.
func (l *Lexer) scanString() (string, error) {
	var sb strings.Builder
	for {
		if l.isAtEnd() || l.peek() == '\n' {
			return "", l.err("unterminated string")
		}
		c := l.advance()
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if l.isAtEnd() {
				return "", l.err("unterminated string")
			}
			switch e := l.advance(); e {
			case '"', '\\':
				sb.WriteByte(e)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return "", l.err("unknown escape \\%c", e)
			}
		default:
			sb.WriteByte(c)
		}
	}
}
