package compiler

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/schema"
)

var entityPartPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type helperSig struct {
	params []ir.Param
	ret    ir.Type
}

// checker resolves names and types in one parsed file and lowers it to ir.
// It stops at the first error.
type checker struct {
	src    Source
	schema *schema.ApiSchema
	entity *schema.EntityType

	globals   map[string]ir.Type
	helpers   map[string]helperSig
	hostUsed  map[string]ir.HostFn
	resources map[string]bool

	// Per function body.
	scopes   []map[string]ir.Type
	loops    int
	fnName   string
	fnReturn ir.Type
	isOnFn   bool
	inGlobal bool
}

func newChecker(src Source, s *schema.ApiSchema, entity *schema.EntityType) *checker {
	return &checker{
		src:       src,
		schema:    s,
		entity:    entity,
		globals:   make(map[string]ir.Type),
		helpers:   make(map[string]helperSig),
		hostUsed:  make(map[string]ir.HostFn),
		resources: make(map[string]bool),
	}
}

func (c *checker) errorf(code string, p Pos, format string, args ...any) error {
	return &CompileError{
		Code:    code,
		Path:    c.src.Path,
		Line:    p.Line,
		Col:     p.Col,
		Message: fmt.Sprintf(format, args...),
	}
}

func (c *checker) check(f *FileAST) (*ir.File, error) {
	out := &ir.File{}

	for _, g := range f.Globals {
		decl, err := c.global(g)
		if err != nil {
			return nil, err
		}
		out.Globals = append(out.Globals, decl)
	}

	onIndex := -1
	lastOn := ""
	seen := make(map[string]bool, len(f.Funcs))
	for _, fn := range f.Funcs {
		if seen[fn.Name] {
			return nil, c.errorf(ErrRedeclared, fn.Pos, "function %q is defined more than once", fn.Name)
		}
		seen[fn.Name] = true

		params, err := c.params(fn)
		if err != nil {
			return nil, err
		}

		switch {
		case strings.HasPrefix(fn.Name, "on_"):
			idx, err := c.onSignature(fn, params)
			if err != nil {
				return nil, err
			}
			if idx < onIndex {
				return nil, c.errorf(ErrOnFnOrder, fn.Pos, "%s must be defined before %s, matching the mod API order for %s", fn.Name, lastOn, c.entity.Name)
			}
			onIndex, lastOn = idx, fn.Name

		case strings.HasPrefix(fn.Name, "helper_"):
			ret := ir.Void
			if fn.Return != nil {
				if ret, err = c.typeOf(*fn.Return); err != nil {
					return nil, err
				}
			}
			c.helpers[fn.Name] = helperSig{params: params, ret: ret}

		default:
			return nil, c.errorf(ErrFunctionName, fn.Pos, "function %q must start with on_ or helper_", fn.Name)
		}
	}

	for _, fn := range f.Funcs {
		lowered, err := c.function(fn)
		if err != nil {
			return nil, err
		}
		if c.isOnFn {
			out.OnFns = append(out.OnFns, lowered)
		} else {
			out.Helpers = append(out.Helpers, lowered)
		}
	}

	for _, h := range c.hostUsed {
		out.HostFns = append(out.HostFns, h)
	}
	sort.Slice(out.HostFns, func(i, j int) bool { return out.HostFns[i].Name < out.HostFns[j].Name })
	for r := range c.resources {
		out.Resources = append(out.Resources, r)
	}
	sort.Strings(out.Resources)
	return out, nil
}

func (c *checker) typeOf(ref TypeRef) (ir.Type, error) {
	t, ok := ir.ParseType(ref.Name)
	if !ok {
		return ir.Void, c.errorf(ErrUnknownType, ref.Pos, "unknown type %q", ref.Name)
	}
	return t, nil
}

func (c *checker) global(g *GlobalDecl) (*ir.Global, error) {
	if g.Name == "me" {
		return nil, c.errorf(ErrRedeclared, g.Pos, "global %q is predefined", g.Name)
	}
	if _, dup := c.globals[g.Name]; dup {
		return nil, c.errorf(ErrRedeclared, g.Pos, "global %q is defined more than once", g.Name)
	}
	t, err := c.typeOf(g.Type)
	if err != nil {
		return nil, err
	}

	c.inGlobal = true
	value, err := c.value(g.Value, t)
	c.inGlobal = false
	if err != nil {
		return nil, err
	}

	c.globals[g.Name] = t
	return &ir.Global{Name: g.Name, Type: t, Init: value, Line: g.Line}, nil
}

func (c *checker) params(fn *FuncDecl) ([]ir.Param, error) {
	var params []ir.Param
	seen := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		if seen[p.Name] || c.isGlobal(p.Name) {
			return nil, c.errorf(ErrRedeclared, p.Pos, "parameter %q shadows an existing name", p.Name)
		}
		seen[p.Name] = true
		t, err := c.typeOf(p.Type)
		if err != nil {
			return nil, err
		}
		params = append(params, ir.Param{Name: p.Name, Type: t})
	}
	return params, nil
}

// onSignature validates an on-function header against the mod API and
// returns its declaration index.
func (c *checker) onSignature(fn *FuncDecl, params []ir.Param) (int, error) {
	decl, idx, ok := c.entity.OnFunction(fn.Name)
	if !ok {
		return 0, c.errorf(ErrUndeclaredOnFn, fn.Pos, "entity type %s does not declare %s", c.entity.Name, fn.Name)
	}
	if fn.Return != nil {
		return 0, c.errorf(ErrOnFnSignature, fn.Return.Pos, "%s cannot return a value", fn.Name)
	}

	match := len(params) == len(decl.Arguments)
	for i := 0; match && i < len(params); i++ {
		match = params[i].Name == decl.Arguments[i].Name && params[i].Type == decl.Arguments[i].Type
	}
	if !match {
		return 0, c.errorf(ErrOnFnSignature, fn.Pos, "%s must be declared as %s(%s)", fn.Name, fn.Name, formatArgs(decl.Arguments))
	}
	return idx, nil
}

func formatArgs(args []schema.Argument) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Name + ": " + a.Type.String()
	}
	return strings.Join(parts, ", ")
}

func (c *checker) function(fn *FuncDecl) (*ir.Function, error) {
	out := &ir.Function{Name: fn.Name, Line: fn.Line}
	base := make(map[string]ir.Type, len(fn.Params))

	c.fnName = fn.Name
	c.isOnFn = strings.HasPrefix(fn.Name, "on_")
	if c.isOnFn {
		c.fnReturn = ir.Void
		decl, _, _ := c.entity.OnFunction(fn.Name)
		for _, a := range decl.Arguments {
			out.Params = append(out.Params, ir.Param{Name: a.Name, Type: a.Type})
		}
	} else {
		sig := c.helpers[fn.Name]
		c.fnReturn = sig.ret
		out.Params = sig.params
	}
	out.Return = c.fnReturn
	for _, p := range out.Params {
		base[p.Name] = p.Type
	}
	c.scopes = []map[string]ir.Type{base}
	c.loops = 0

	body, err := c.block(fn.Body)
	if err != nil {
		return nil, err
	}
	if c.fnReturn != ir.Void && !terminates(fn.Body) {
		return nil, c.errorf(ErrReturn, fn.Pos, "%s must end with a return of type %s", fn.Name, c.fnReturn)
	}
	out.Body = body
	return out, nil
}

// terminates reports whether every path through stmts ends in a return.
func terminates(stmts []Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	switch s := stmts[len(stmts)-1].(type) {
	case *ReturnStmt:
		return true
	case *IfStmt:
		return ifTerminates(s)
	}
	return false
}

func ifTerminates(s *IfStmt) bool {
	if !terminates(s.Then) {
		return false
	}
	switch e := s.Else.(type) {
	case *IfStmt:
		return ifTerminates(e)
	case *BlockStmt:
		return terminates(e.Stmts)
	}
	return false
}

func (c *checker) isGlobal(name string) bool {
	if name == "me" {
		return true
	}
	_, ok := c.globals[name]
	return ok
}

func (c *checker) lookup(name string) (*ir.Ref, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if t, ok := c.scopes[i][name]; ok {
			return &ir.Ref{Kind: ir.RefLocal, Name: name, T: t}, true
		}
	}
	if name == "me" {
		return &ir.Ref{Kind: ir.RefMe, Name: name, T: ir.ID}, true
	}
	if t, ok := c.globals[name]; ok {
		return &ir.Ref{Kind: ir.RefGlobal, Name: name, T: t}, true
	}
	return nil, false
}

func (c *checker) declare(name string, t ir.Type, p Pos) error {
	if _, exists := c.lookup(name); exists {
		return c.errorf(ErrRedeclared, p, "%q shadows an existing variable", name)
	}
	c.scopes[len(c.scopes)-1][name] = t
	return nil
}

func (c *checker) block(stmts []Stmt) ([]ir.Stmt, error) {
	c.scopes = append(c.scopes, make(map[string]ir.Type))
	defer func() { c.scopes = c.scopes[:len(c.scopes)-1] }()

	out := make([]ir.Stmt, 0, len(stmts))
	for _, s := range stmts {
		lowered, err := c.stmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, lowered)
	}
	return out, nil
}

func (c *checker) stmt(s Stmt) (ir.Stmt, error) {
	switch s := s.(type) {
	case *LocalDecl:
		t, err := c.typeOf(s.Type)
		if err != nil {
			return nil, err
		}
		value, err := c.value(s.Value, t)
		if err != nil {
			return nil, err
		}
		if err := c.declare(s.Name, t, s.Pos); err != nil {
			return nil, err
		}
		return &ir.VarDecl{Name: s.Name, Type: t, Value: value}, nil

	case *AssignStmt:
		if s.Name == "me" {
			return nil, c.errorf(ErrAssignMe, s.Pos, "me cannot be assigned")
		}
		target, ok := c.lookup(s.Name)
		if !ok {
			return nil, c.errorf(ErrUnknownIdentifier, s.Pos, "unknown variable %q", s.Name)
		}
		value, err := c.value(s.Value, target.T)
		if err != nil {
			return nil, err
		}
		return &ir.Assign{Target: target, Value: value}, nil

	case *ExprStmt:
		call, err := c.call(s.Call)
		if err != nil {
			return nil, err
		}
		return &ir.CallStmt{Call: call}, nil

	case *IfStmt:
		return c.ifStmt(s)

	case *WhileStmt:
		cond, err := c.value(s.Cond, ir.Bool)
		if err != nil {
			return nil, err
		}
		c.loops++
		body, err := c.block(s.Body)
		c.loops--
		if err != nil {
			return nil, err
		}
		return &ir.While{Cond: cond, Body: body}, nil

	case *BreakStmt:
		if c.loops == 0 {
			return nil, c.errorf(ErrOutsideLoop, s.Pos, "break outside a while loop")
		}
		return &ir.Break{}, nil

	case *ContinueStmt:
		if c.loops == 0 {
			return nil, c.errorf(ErrOutsideLoop, s.Pos, "continue outside a while loop")
		}
		return &ir.Continue{}, nil

	case *ReturnStmt:
		return c.returnStmt(s)
	}
	return nil, c.errorf(ErrParse, s.stmtPos(), "unexpected statement %T", s)
}

func (c *checker) ifStmt(s *IfStmt) (*ir.If, error) {
	cond, err := c.value(s.Cond, ir.Bool)
	if err != nil {
		return nil, err
	}
	then, err := c.block(s.Then)
	if err != nil {
		return nil, err
	}
	out := &ir.If{Cond: cond, Then: then}

	switch e := s.Else.(type) {
	case *IfStmt:
		nested, err := c.ifStmt(e)
		if err != nil {
			return nil, err
		}
		out.Else = []ir.Stmt{nested}
	case *BlockStmt:
		body, err := c.block(e.Stmts)
		if err != nil {
			return nil, err
		}
		out.Else = body // non-nil even when empty
	}
	return out, nil
}

func (c *checker) returnStmt(s *ReturnStmt) (*ir.Return, error) {
	if c.fnReturn == ir.Void {
		if s.Value != nil {
			return nil, c.errorf(ErrReturn, s.Pos, "%s does not return a value", c.fnName)
		}
		return &ir.Return{}, nil
	}
	if s.Value == nil {
		return nil, c.errorf(ErrReturn, s.Pos, "%s must return a value of type %s", c.fnName, c.fnReturn)
	}
	value, err := c.value(s.Value, c.fnReturn)
	if err != nil {
		return nil, err
	}
	return &ir.Return{Value: value}, nil
}

// value checks e where a value of type want is required. String literals
// convert to resource and entity values.
func (c *checker) value(e Expr, want ir.Type) (ir.Expr, error) {
	return c.valueExt(e, want, "")
}

func (c *checker) valueExt(e Expr, want ir.Type, ext string) (ir.Expr, error) {
	if lit, ok := e.(*StringLit); ok {
		switch want {
		case ir.Resource:
			return c.resourceLit(lit, ext)
		case ir.Entity:
			return c.entityLit(lit)
		}
	}
	x, err := c.expr(e)
	if err != nil {
		return nil, err
	}
	if x.Type() == ir.Void {
		return nil, c.errorf(ErrVoidValue, e.exprPos(), "call returns no value")
	}
	if x.Type() != want {
		return nil, c.errorf(ErrTypeMismatch, e.exprPos(), "expected %s, found %s", want, x.Type())
	}
	return x, nil
}

func (c *checker) resourceLit(lit *StringLit, ext string) (*ir.Lit, error) {
	v := lit.Value
	if v == "" || strings.Contains(v, `\`) || path.IsAbs(v) || path.Clean(v) != v ||
		v == ".." || strings.HasPrefix(v, "../") {
		return nil, c.errorf(ErrResource, lit.Pos, "resource %q must be a clean relative path inside the mod", v)
	}
	if ext != "" && !strings.HasSuffix(v, ext) {
		return nil, c.errorf(ErrResource, lit.Pos, "resource %q must have the extension %q", v, ext)
	}
	info, err := os.Stat(filepath.Join(c.src.ModDir, filepath.FromSlash(v)))
	if err != nil || !info.Mode().IsRegular() {
		return nil, c.errorf(ErrResource, lit.Pos, "resource %q does not exist in mod %q", v, c.src.Mod)
	}
	full := c.src.Mod + "/" + v
	c.resources[full] = true
	return &ir.Lit{T: ir.Resource, Str: full}, nil
}

func (c *checker) entityLit(lit *StringLit) (*ir.Lit, error) {
	mod, name, qualified := strings.Cut(lit.Value, ":")
	if !qualified {
		mod, name = c.src.Mod, lit.Value
	}
	if !entityPartPattern.MatchString(mod) || !entityPartPattern.MatchString(name) {
		return nil, c.errorf(ErrEntityLiteral, lit.Pos, "entity %q must be written as name or mod:name", lit.Value)
	}
	return &ir.Lit{T: ir.Entity, Str: mod + ":" + name}, nil
}

func (c *checker) expr(e Expr) (ir.Expr, error) {
	switch e := e.(type) {
	case *BoolLit:
		return &ir.Lit{T: ir.Bool, Bool: e.Value}, nil

	case *IntLit:
		return c.intLit(e, false)

	case *FloatLit:
		f, err := strconv.ParseFloat(e.Text, 32)
		if err != nil {
			return nil, c.errorf(ErrNumberLiteral, e.Pos, "f32 literal %s is out of range", e.Text)
		}
		return &ir.Lit{T: ir.F32, F32: float32(f)}, nil

	case *StringLit:
		return &ir.Lit{T: ir.String, Str: e.Value}, nil

	case *Ident:
		ref, ok := c.lookup(e.Name)
		if !ok {
			return nil, c.errorf(ErrUnknownIdentifier, e.Pos, "unknown identifier %q", e.Name)
		}
		return ref, nil

	case *CallExpr:
		return c.call(e)

	case *UnaryExpr:
		return c.unary(e)

	case *BinaryExpr:
		return c.binary(e)
	}
	return nil, c.errorf(ErrParse, e.exprPos(), "unexpected expression %T", e)
}

func (c *checker) intLit(e *IntLit, negate bool) (*ir.Lit, error) {
	n, err := strconv.ParseInt(e.Text, 10, 64)
	limit := int64(math.MaxInt32)
	if negate {
		limit++
		n = -n
	}
	if err != nil || n > math.MaxInt32 || -n > limit {
		text := e.Text
		if negate {
			text = "-" + text
		}
		return nil, c.errorf(ErrNumberLiteral, e.Pos, "i32 literal %s is out of range", text)
	}
	return &ir.Lit{T: ir.I32, I32: int32(n)}, nil
}

func (c *checker) unary(e *UnaryExpr) (ir.Expr, error) {
	if lit, ok := e.X.(*IntLit); ok && e.Op == Minus {
		return c.intLit(lit, true)
	}
	x, err := c.expr(e.X)
	if err != nil {
		return nil, err
	}
	t := x.Type()
	switch {
	case t == ir.Void:
		return nil, c.errorf(ErrVoidValue, e.X.exprPos(), "call returns no value")
	case e.Op == Minus && (t == ir.I32 || t == ir.F32):
		return &ir.Unary{Op: "-", X: x, T: t}, nil
	case e.Op == Not && t == ir.Bool:
		return &ir.Unary{Op: "not", X: x, T: t}, nil
	}
	return nil, c.errorf(ErrTypeMismatch, e.Pos, "operator %s cannot be applied to %s", e.Op.text(), t)
}

func (c *checker) binary(e *BinaryExpr) (ir.Expr, error) {
	l, r, err := c.operands(e)
	if err != nil {
		return nil, err
	}
	t := l.Type()
	if t != r.Type() {
		return nil, c.errorf(ErrTypeMismatch, e.Pos, "mismatched types %s and %s for %s", t, r.Type(), e.Op.text())
	}

	numeric := t == ir.I32 || t == ir.F32
	result := ir.Void
	switch e.Op {
	case Plus, Minus, Star, Slash:
		if numeric {
			result = t
		}
	case Percent:
		if t == ir.I32 {
			result = t
		}
	case Lt, Le, Gt, Ge:
		if numeric {
			result = ir.Bool
		}
	case Eq, NotEq:
		result = ir.Bool
	case And, Or:
		if t == ir.Bool {
			result = ir.Bool
		}
	}
	if result == ir.Void {
		return nil, c.errorf(ErrTypeMismatch, e.Pos, "operator %s cannot be applied to %s", e.Op.text(), t)
	}
	return &ir.Binary{Op: e.Op.text(), L: l, R: r, T: result}, nil
}

// operands checks both sides of e. A string literal compared against a
// resource or entity value is converted to that type.
func (c *checker) operands(e *BinaryExpr) (ir.Expr, ir.Expr, error) {
	_, lLit := e.L.(*StringLit)
	_, rLit := e.R.(*StringLit)

	var l, r ir.Expr
	var err error
	switch {
	case lLit && !rLit:
		if r, err = c.operand(e.R); err != nil {
			return nil, nil, err
		}
		if l, err = c.value(e.L, r.Type()); err != nil {
			return nil, nil, err
		}
	case rLit && !lLit:
		if l, err = c.operand(e.L); err != nil {
			return nil, nil, err
		}
		if r, err = c.value(e.R, l.Type()); err != nil {
			return nil, nil, err
		}
	default:
		if l, err = c.operand(e.L); err != nil {
			return nil, nil, err
		}
		if r, err = c.operand(e.R); err != nil {
			return nil, nil, err
		}
	}
	return l, r, nil
}

func (c *checker) operand(e Expr) (ir.Expr, error) {
	x, err := c.expr(e)
	if err != nil {
		return nil, err
	}
	if x.Type() == ir.Void {
		return nil, c.errorf(ErrVoidValue, e.exprPos(), "call returns no value")
	}
	return x, nil
}

func (c *checker) call(e *CallExpr) (*ir.Call, error) {
	if c.inGlobal && strings.HasPrefix(e.Name, "helper_") {
		return nil, c.errorf(ErrGlobalHelperCall, e.Pos, "helper %s cannot be called while initializing globals", e.Name)
	}
	if sig, ok := c.helpers[e.Name]; ok {
		if len(e.Args) != len(sig.params) {
			return nil, c.errorf(ErrArgumentCount, e.Pos, "%s expects %d arguments, got %d", e.Name, len(sig.params), len(e.Args))
		}
		args := make([]ir.Expr, len(e.Args))
		for i, a := range e.Args {
			v, err := c.value(a, sig.params[i].Type)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return &ir.Call{Kind: ir.CallHelper, Name: e.Name, Args: args, T: sig.ret}, nil
	}

	if strings.HasPrefix(e.Name, "on_") {
		return nil, c.errorf(ErrUnknownFunction, e.Pos, "on-function %s cannot be called from mod code", e.Name)
	}

	host, ok := c.schema.HostFunction(e.Name)
	if !ok {
		return nil, c.errorf(ErrUnknownFunction, e.Pos, "unknown function %q", e.Name)
	}
	if len(e.Args) != len(host.Arguments) {
		return nil, c.errorf(ErrArgumentCount, e.Pos, "%s expects %d arguments, got %d", e.Name, len(host.Arguments), len(e.Args))
	}
	args := make([]ir.Expr, len(e.Args))
	params := make([]ir.Type, len(host.Arguments))
	for i, a := range e.Args {
		want := host.Arguments[i]
		v, err := c.valueExt(a, want.Type, want.ResourceExtension)
		if err != nil {
			return nil, err
		}
		args[i] = v
		params[i] = want.Type
	}
	c.hostUsed[e.Name] = ir.HostFn{Name: e.Name, Params: params, Return: host.Return}
	return &ir.Call{Kind: ir.CallHost, Name: e.Name, Args: args, T: host.Return}, nil
}
