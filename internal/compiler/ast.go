package compiler

// AST produced by the parser. Nodes carry positions only; types are
// attached by the checker when lowering to ir.

// FileAST is a parsed mod file.
type FileAST struct {
	Globals []*GlobalDecl
	Funcs   []*FuncDecl
}

// TypeRef is a type name as written.
type TypeRef struct {
	Name string
	Pos
}

// GlobalDecl is `name: type = value` at top level.
type GlobalDecl struct {
	Name  string
	Type  TypeRef
	Value Expr
	Pos
}

// ParamDecl is one function parameter.
type ParamDecl struct {
	Name string
	Type TypeRef
	Pos
}

// FuncDecl is an on-function or helper definition.
type FuncDecl struct {
	Name   string
	Params []ParamDecl
	Return *TypeRef
	Body   []Stmt
	Pos
}

// Stmt is a statement node.
type Stmt interface{ stmtPos() Pos }

type (
	// LocalDecl is `name: type = value` inside a body.
	LocalDecl struct {
		Name  string
		Type  TypeRef
		Value Expr
		Pos
	}

	// AssignStmt is `name = value`.
	AssignStmt struct {
		Name  string
		Value Expr
		Pos
	}

	// ExprStmt is a call evaluated for its effect.
	ExprStmt struct {
		Call *CallExpr
		Pos
	}

	// IfStmt holds an optional else branch: nil, *IfStmt or *BlockStmt.
	IfStmt struct {
		Cond Expr
		Then []Stmt
		Else Stmt
		Pos
	}

	// BlockStmt is only used as the else branch of an if.
	BlockStmt struct {
		Stmts []Stmt
		Pos
	}

	WhileStmt struct {
		Cond Expr
		Body []Stmt
		Pos
	}

	BreakStmt    struct{ Pos }
	ContinueStmt struct{ Pos }

	ReturnStmt struct {
		Value Expr // nil for a bare return
		Pos
	}
)

func (s *LocalDecl) stmtPos() Pos    { return s.Pos }
func (s *AssignStmt) stmtPos() Pos   { return s.Pos }
func (s *ExprStmt) stmtPos() Pos     { return s.Pos }
func (s *IfStmt) stmtPos() Pos       { return s.Pos }
func (s *BlockStmt) stmtPos() Pos    { return s.Pos }
func (s *WhileStmt) stmtPos() Pos    { return s.Pos }
func (s *BreakStmt) stmtPos() Pos    { return s.Pos }
func (s *ContinueStmt) stmtPos() Pos { return s.Pos }
func (s *ReturnStmt) stmtPos() Pos   { return s.Pos }

// Expr is an expression node.
type Expr interface{ exprPos() Pos }

type (
	BoolLit struct {
		Value bool
		Pos
	}

	// IntLit and FloatLit keep their spelling; range checks happen in the
	// checker so a negated literal can reach math.MinInt32.
	IntLit struct {
		Text string
		Pos
	}

	FloatLit struct {
		Text string
		Pos
	}

	StringLit struct {
		Value string
		Pos
	}

	Ident struct {
		Name string
		Pos
	}

	CallExpr struct {
		Name string
		Args []Expr
		Pos
	}

	UnaryExpr struct {
		Op Kind // Minus or Not
		X  Expr
		Pos
	}

	BinaryExpr struct {
		Op   Kind
		L, R Expr
		Pos
	}
)

func (e *BoolLit) exprPos() Pos    { return e.Pos }
func (e *IntLit) exprPos() Pos     { return e.Pos }
func (e *FloatLit) exprPos() Pos   { return e.Pos }
func (e *StringLit) exprPos() Pos  { return e.Pos }
func (e *Ident) exprPos() Pos      { return e.Pos }
func (e *CallExpr) exprPos() Pos   { return e.Pos }
func (e *UnaryExpr) exprPos() Pos  { return e.Pos }
func (e *BinaryExpr) exprPos() Pos { return e.Pos }
