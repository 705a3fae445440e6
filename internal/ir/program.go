package ir

// Type is a grug value type.
type Type string

// Value types. Void is only valid as a function return type.
const (
	Void     Type = ""
	Bool     Type = "bool"
	I32      Type = "i32"
	F32      Type = "f32"
	String   Type = "string"
	ID       Type = "id"
	Resource Type = "resource"
	Entity   Type = "entity"
)

// ParseType returns the Type named by s.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case Bool, I32, F32, String, ID, Resource, Entity:
		return Type(s), true
	}
	return Void, false
}

// GoType returns the Go spelling of t used by generated code and by host
// function signatures.
func (t Type) GoType() string {
	switch t {
	case Bool:
		return "bool"
	case I32:
		return "int32"
	case F32:
		return "float32"
	case String, Resource, Entity:
		return "string"
	case ID:
		return "uint64"
	}
	return ""
}

func (t Type) String() string {
	if t == Void {
		return "void"
	}
	return string(t)
}

// File is one checked mod file.
type File struct {
	Path       string // canonical source path
	RelPath    string // slash-separated, relative to the mods root
	Mod        string
	Name       string
	Entity     string // "<mod>:<name>"
	EntityType string

	Globals []*Global
	OnFns   []*Function // schema declaration order
	Helpers []*Function // source order
	HostFns []HostFn    // referenced host functions, sorted by name

	Resources []string // resource paths referenced by literals, sorted
}

// HostFn is a host function referenced by a file, with its resolved signature.
type HostFn struct {
	Name   string
	Params []Type
	Return Type
}

// Global is a per-entity global variable.
type Global struct {
	Name string
	Type Type
	Init Expr
	Line int
}

// Param is a function parameter.
type Param struct {
	Name string
	Type Type
}

// Function is an on-function or helper function.
type Function struct {
	Name   string
	Params []Param
	Return Type
	Body   []Stmt
	Line   int
}

// Stmt is an IR statement.
type Stmt interface{ stmtNode() }

// VarDecl declares a local variable.
type VarDecl struct {
	Name  string
	Type  Type
	Value Expr
}

// Assign stores into a local or global.
type Assign struct {
	Target *Ref
	Value  Expr
}

// CallStmt evaluates a call for its side effects.
type CallStmt struct {
	Call *Call
}

// If is a conditional. Else is nil, a single nested *If (else if), or a
// plain block.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// While is a pre-tested loop.
type While struct {
	Cond Expr
	Body []Stmt
}

// Break exits the innermost loop.
type Break struct{}

// Continue restarts the innermost loop.
type Continue struct{}

// Return leaves the function. Value is nil in void functions.
type Return struct {
	Value Expr
}

func (*VarDecl) stmtNode()  {}
func (*Assign) stmtNode()   {}
func (*CallStmt) stmtNode() {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*Break) stmtNode()    {}
func (*Continue) stmtNode() {}
func (*Return) stmtNode()   {}

// Expr is a typed IR expression.
type Expr interface {
	Type() Type
}

// Lit is a literal. Exactly one of the value fields is meaningful,
// selected by T.
type Lit struct {
	T    Type
	Bool bool
	I32  int32
	F32  float32
	Str  string // string, resource and entity literals
}

// RefKind says where a name lives.
type RefKind int

const (
	RefLocal RefKind = iota // local variable or parameter
	RefGlobal
	RefMe
)

// Ref reads a variable.
type Ref struct {
	Kind RefKind
	Name string
	T    Type
}

// Unary applies "-" or "not".
type Unary struct {
	Op string
	X  Expr
	T  Type
}

// Binary applies an infix operator. Operands always share a type.
type Binary struct {
	Op   string
	L, R Expr
	T    Type
}

// CallKind distinguishes helper calls from host calls.
type CallKind int

const (
	CallHelper CallKind = iota
	CallHost
)

// Call invokes a helper or host function.
type Call struct {
	Kind CallKind
	Name string
	Args []Expr
	T    Type // Void when the callee returns nothing
}

func (e *Lit) Type() Type    { return e.T }
func (e *Ref) Type() Type    { return e.T }
func (e *Unary) Type() Type  { return e.T }
func (e *Binary) Type() Type { return e.T }
func (e *Call) Type() Type   { return e.T }
