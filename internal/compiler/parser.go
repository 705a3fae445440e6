package compiler

import "fmt"

// parser is a recursive descent parser over the token slice from Lex.
type parser struct {
	path string
	toks []Token
	i    int
}

// Parse lexes and parses src into an AST.
func Parse(path string, src []byte) (*FileAST, error) {
	toks, err := Lex(path, src)
	if err != nil {
		return nil, err
	}
	p := &parser{path: path, toks: toks}
	return p.file()
}

func (p *parser) tok() Token { return p.toks[p.i] }

func (p *parser) peekKind(ahead int) Kind {
	if p.i+ahead >= len(p.toks) {
		return EOF
	}
	return p.toks[p.i+ahead].Kind
}

func (p *parser) at(k Kind) bool { return p.tok().Kind == k }

func (p *parser) next() Token {
	t := p.toks[p.i]
	if t.Kind != EOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(pos Pos, format string, args ...any) error {
	return &CompileError{
		Code:    ErrParse,
		Path:    p.path,
		Line:    pos.Line,
		Col:     pos.Col,
		Message: fmt.Sprintf(format, args...),
	}
}

func (p *parser) expect(k Kind) (Token, error) {
	t := p.tok()
	if t.Kind != k {
		return t, p.errorf(t.Pos, "expected %s, found %s", k, t.describe())
	}
	return p.next(), nil
}

func (p *parser) skipNewlines() {
	for p.at(Newline) {
		p.next()
	}
}

func (p *parser) file() (*FileAST, error) {
	f := &FileAST{}
	for {
		p.skipNewlines()
		if p.at(EOF) {
			return f, nil
		}

		name, err := p.expect(IdentTok)
		if err != nil {
			return nil, err
		}

		switch p.tok().Kind {
		case Colon:
			g, err := p.global(name)
			if err != nil {
				return nil, err
			}
			f.Globals = append(f.Globals, g)
		case LParen:
			fn, err := p.function(name)
			if err != nil {
				return nil, err
			}
			f.Funcs = append(f.Funcs, fn)
		default:
			return nil, p.errorf(p.tok().Pos, "expected ':' or '(' after %q, found %s", name.Text, p.tok().describe())
		}

		if !p.at(Newline) && !p.at(EOF) {
			return nil, p.errorf(p.tok().Pos, "expected newline, found %s", p.tok().describe())
		}
	}
}

func (p *parser) typeRef() (TypeRef, error) {
	t, err := p.expect(IdentTok)
	if err != nil {
		return TypeRef{}, err
	}
	return TypeRef{Name: t.Text, Pos: t.Pos}, nil
}

// global parses the rest of `name: type = value`.
func (p *parser) global(name Token) (*GlobalDecl, error) {
	p.next() // ':'
	typ, err := p.typeRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(Assign); err != nil {
		return nil, err
	}
	value, err := p.expr(lowestPrec)
	if err != nil {
		return nil, err
	}
	return &GlobalDecl{Name: name.Text, Type: typ, Value: value, Pos: name.Pos}, nil
}

func (p *parser) function(name Token) (*FuncDecl, error) {
	fn := &FuncDecl{Name: name.Text, Pos: name.Pos}
	p.next() // '('

	for !p.at(RParen) {
		if len(fn.Params) > 0 {
			if _, err := p.expect(Comma); err != nil {
				return nil, err
			}
		}
		pn, err := p.expect(IdentTok)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(Colon); err != nil {
			return nil, err
		}
		typ, err := p.typeRef()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, ParamDecl{Name: pn.Text, Type: typ, Pos: pn.Pos})
	}
	p.next() // ')'

	if p.at(IdentTok) {
		typ, err := p.typeRef()
		if err != nil {
			return nil, err
		}
		fn.Return = &typ
	}

	body, err := p.block()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *parser) block() ([]Stmt, error) {
	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for {
		p.skipNewlines()
		switch p.tok().Kind {
		case RBrace:
			p.next()
			return stmts, nil
		case EOF:
			return nil, p.errorf(p.tok().Pos, "expected '}', found end of file")
		}

		s, err := p.stmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)

		if !p.at(Newline) && !p.at(RBrace) {
			return nil, p.errorf(p.tok().Pos, "expected newline after statement, found %s", p.tok().describe())
		}
	}
}

func (p *parser) stmt() (Stmt, error) {
	t := p.tok()
	switch t.Kind {
	case If:
		return p.ifStmt()

	case While:
		p.next()
		cond, err := p.expr(lowestPrec)
		if err != nil {
			return nil, err
		}
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body, Pos: t.Pos}, nil

	case Break:
		p.next()
		return &BreakStmt{Pos: t.Pos}, nil

	case Continue:
		p.next()
		return &ContinueStmt{Pos: t.Pos}, nil

	case Return:
		p.next()
		if p.at(Newline) || p.at(RBrace) {
			return &ReturnStmt{Pos: t.Pos}, nil
		}
		value, err := p.expr(lowestPrec)
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{Value: value, Pos: t.Pos}, nil

	case IdentTok:
		switch p.peekKind(1) {
		case Colon:
			p.next()
			p.next()
			typ, err := p.typeRef()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(Assign); err != nil {
				return nil, err
			}
			value, err := p.expr(lowestPrec)
			if err != nil {
				return nil, err
			}
			return &LocalDecl{Name: t.Text, Type: typ, Value: value, Pos: t.Pos}, nil

		case Assign:
			p.next()
			p.next()
			value, err := p.expr(lowestPrec)
			if err != nil {
				return nil, err
			}
			return &AssignStmt{Name: t.Text, Value: value, Pos: t.Pos}, nil
		}
	}

	e, err := p.expr(lowestPrec)
	if err != nil {
		return nil, err
	}
	call, ok := e.(*CallExpr)
	if !ok {
		return nil, p.errorf(t.Pos, "expression is not a statement; only calls may stand alone")
	}
	return &ExprStmt{Call: call, Pos: t.Pos}, nil
}

func (p *parser) ifStmt() (*IfStmt, error) {
	t := p.next() // 'if'
	cond, err := p.expr(lowestPrec)
	if err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	s := &IfStmt{Cond: cond, Then: then, Pos: t.Pos}

	if !p.at(Else) {
		return s, nil
	}
	elseTok := p.next()
	if p.at(If) {
		nested, err := p.ifStmt()
		if err != nil {
			return nil, err
		}
		s.Else = nested
		return s, nil
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	s.Else = &BlockStmt{Stmts: body, Pos: elseTok.Pos}
	return s, nil
}

const lowestPrec = 1

var binaryPrec = map[Kind]int{
	Or:      1,
	And:     2,
	Eq:      3,
	NotEq:   3,
	Lt:      4,
	Le:      4,
	Gt:      4,
	Ge:      4,
	Plus:    5,
	Minus:   5,
	Star:    6,
	Slash:   6,
	Percent: 6,
}

// expr parses a binary expression whose operators bind at least as tightly
// as minPrec. All binary operators are left associative.
func (p *parser) expr(minPrec int) (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binaryPrec[p.tok().Kind]
		if !ok || prec < minPrec {
			return left, nil
		}
		op := p.next()
		right, err := p.expr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op.Kind, L: left, R: right, Pos: op.Pos}
	}
}

func (p *parser) unary() (Expr, error) {
	if p.at(Minus) || p.at(Not) {
		op := p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op.Kind, X: x, Pos: op.Pos}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Expr, error) {
	t := p.tok()
	switch t.Kind {
	case True, False:
		p.next()
		return &BoolLit{Value: t.Kind == True, Pos: t.Pos}, nil
	case Int:
		p.next()
		return &IntLit{Text: t.Text, Pos: t.Pos}, nil
	case Float:
		p.next()
		return &FloatLit{Text: t.Text, Pos: t.Pos}, nil
	case String:
		p.next()
		return &StringLit{Value: t.Text, Pos: t.Pos}, nil
	case LParen:
		p.next()
		e, err := p.expr(lowestPrec)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return e, nil
	case IdentTok:
		p.next()
		if !p.at(LParen) {
			return &Ident{Name: t.Text, Pos: t.Pos}, nil
		}
		p.next()
		call := &CallExpr{Name: t.Text, Pos: t.Pos}
		for !p.at(RParen) {
			if len(call.Args) > 0 {
				if _, err := p.expect(Comma); err != nil {
					return nil, err
				}
			}
			arg, err := p.expr(lowestPrec)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		p.next()
		return call, nil
	}
	return nil, p.errorf(t.Pos, "expected expression, found %s", t.describe())
}
