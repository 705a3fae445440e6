package compiler

import (
	"fmt"
	"strings"
)

// lexer turns grug source into tokens. Newlines are significant and end
// statements, except inside parentheses where they are skipped so long
// argument lists can wrap.
type lexer struct {
	path string
	src  []byte
	off  int
	line int
	col  int

	parens int
	toks   []Token
}

// Lex tokenizes src. The returned slice always ends with an EOF token.
func Lex(path string, src []byte) ([]Token, error) {
	lx := &lexer{path: path, src: src, line: 1, col: 1}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.toks, nil
}

func (lx *lexer) errorf(p Pos, format string, args ...any) error {
	return &CompileError{
		Code:    ErrLex,
		Path:    lx.path,
		Line:    p.Line,
		Col:     p.Col,
		Message: fmt.Sprintf(format, args...),
	}
}

func (lx *lexer) peek(ahead int) byte {
	if lx.off+ahead >= len(lx.src) {
		return 0
	}
	return lx.src[lx.off+ahead]
}

func (lx *lexer) advance() byte {
	c := lx.src[lx.off]
	lx.off++
	if c == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return c
}

func (lx *lexer) emit(k Kind, text string, p Pos) {
	lx.toks = append(lx.toks, Token{Kind: k, Text: text, Pos: p})
}

func (lx *lexer) run() error {
	for lx.off < len(lx.src) {
		p := Pos{Line: lx.line, Col: lx.col}
		c := lx.peek(0)

		switch {
		case c == ' ' || c == '\t' || c == '\r':
			lx.advance()

		case c == '#':
			for lx.off < len(lx.src) && lx.peek(0) != '\n' {
				lx.advance()
			}

		case c == '\n':
			lx.advance()
			if lx.parens == 0 {
				lx.emit(Newline, "\n", p)
			}

		case isLetter(c):
			start := lx.off
			for lx.off < len(lx.src) && (isLetter(lx.peek(0)) || isDigit(lx.peek(0))) {
				lx.advance()
			}
			word := string(lx.src[start:lx.off])
			if k, ok := keywords[word]; ok {
				lx.emit(k, word, p)
			} else {
				lx.emit(IdentTok, word, p)
			}

		case isDigit(c):
			if err := lx.number(p); err != nil {
				return err
			}

		case c == '"':
			if err := lx.str(p); err != nil {
				return err
			}

		default:
			if err := lx.operator(p, c); err != nil {
				return err
			}
		}
	}
	lx.emit(EOF, "", Pos{Line: lx.line, Col: lx.col})
	return nil
}

func (lx *lexer) number(p Pos) error {
	start := lx.off
	for isDigit(lx.peek(0)) {
		lx.advance()
	}
	kind := Int
	if lx.peek(0) == '.' {
		lx.advance()
		if !isDigit(lx.peek(0)) {
			return lx.errorf(p, "float literal needs digits after '.'")
		}
		for isDigit(lx.peek(0)) {
			lx.advance()
		}
		kind = Float
	}
	if isLetter(lx.peek(0)) {
		return lx.errorf(p, "unexpected character %q after number", lx.peek(0))
	}
	lx.emit(kind, string(lx.src[start:lx.off]), p)
	return nil
}

func (lx *lexer) str(p Pos) error {
	lx.advance()
	var b strings.Builder
	for {
		if lx.off >= len(lx.src) || lx.peek(0) == '\n' {
			return lx.errorf(p, "unterminated string literal")
		}
		c := lx.advance()
		switch c {
		case '"':
			lx.emit(String, b.String(), p)
			return nil
		case '\\':
			if lx.off >= len(lx.src) {
				return lx.errorf(p, "unterminated string literal")
			}
			switch e := lx.advance(); e {
			case '"', '\\':
				b.WriteByte(e)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				return lx.errorf(Pos{Line: lx.line, Col: lx.col - 2}, "unknown escape sequence \\%c", e)
			}
		default:
			b.WriteByte(c)
		}
	}
}

func (lx *lexer) operator(p Pos, c byte) error {
	two := func(next byte, long, short Kind) {
		lx.advance()
		if lx.peek(0) == next {
			lx.advance()
			lx.emit(long, long.text(), p)
			return
		}
		lx.emit(short, short.text(), p)
	}

	switch c {
	case '(':
		lx.advance()
		lx.parens++
		lx.emit(LParen, "(", p)
	case ')':
		lx.advance()
		if lx.parens > 0 {
			lx.parens--
		}
		lx.emit(RParen, ")", p)
	case '{':
		lx.advance()
		lx.emit(LBrace, "{", p)
	case '}':
		lx.advance()
		lx.emit(RBrace, "}", p)
	case ',':
		lx.advance()
		lx.emit(Comma, ",", p)
	case ':':
		lx.advance()
		lx.emit(Colon, ":", p)
	case '+':
		lx.advance()
		lx.emit(Plus, "+", p)
	case '-':
		lx.advance()
		lx.emit(Minus, "-", p)
	case '*':
		lx.advance()
		lx.emit(Star, "*", p)
	case '/':
		lx.advance()
		lx.emit(Slash, "/", p)
	case '%':
		lx.advance()
		lx.emit(Percent, "%", p)
	case '=':
		two('=', Eq, Assign)
	case '<':
		two('=', Le, Lt)
	case '>':
		two('=', Ge, Gt)
	case '!':
		if lx.peek(1) != '=' {
			return lx.errorf(p, "unexpected character '!', use 'not'")
		}
		lx.advance()
		lx.advance()
		lx.emit(NotEq, "!=", p)
	default:
		return lx.errorf(p, "unexpected character %q", c)
	}
	return nil
}

// text is the source spelling of an operator kind.
func (k Kind) text() string {
	return strings.Trim(k.String(), "'")
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
