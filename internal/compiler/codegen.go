package compiler

import (
	"bytes"
	"fmt"
	goparser "go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/lemonlambda/grug-sys/internal/ir"
)

// Exported symbol names in generated plugins.
const (
	BindSymbol        = "Grug_bind"
	InitGlobalsSymbol = "Grug_init_globals"
	onFnSymbolPrefix  = "Grug_"
)

// OnFnSymbol is the exported name of an on-function.
func OnFnSymbol(name string) string {
	return onFnSymbolPrefix + name
}

// MaxCallDepth bounds helper recursion in generated code.
const MaxCallDepth = 100

const prelude = `type grugFault struct {
	kind string
	msg  string
}

func (f grugFault) GrugFault() (string, string) { return f.kind, f.msg }

func (f grugFault) Error() string { return f.msg }

const grugMaxDepth = %d

func grugEnter(depth int) {
	if depth > grugMaxDepth {
		panic(grugFault{"stack_overflow", "Stack overflow, so check for accidental infinite recursion"})
	}
}

func grugI32(r int64, op string) int32 {
	if r < math.MinInt32 || r > math.MaxInt32 {
		panic(grugFault{"overflow", "i32 " + op + " overflow"})
	}
	return int32(r)
}

func grugAddI32(a, b int32) int32 { return grugI32(int64(a)+int64(b), "addition") }

func grugSubI32(a, b int32) int32 { return grugI32(int64(a)-int64(b), "subtraction") }

func grugMulI32(a, b int32) int32 { return grugI32(int64(a)*int64(b), "multiplication") }

func grugDivI32(a, b int32) int32 {
	if b == 0 {
		panic(grugFault{"division_by_zero", "Division of an i32 by 0"})
	}
	return grugI32(int64(a)/int64(b), "division")
}

func grugModI32(a, b int32) int32 {
	if b == 0 {
		panic(grugFault{"division_by_zero", "Modulo of an i32 by 0"})
	}
	return a %% b
}

func grugNegI32(a int32) int32 { return grugI32(-int64(a), "negation") }

func grugAddF32(a, b float32) float32 { return a + b }

func grugSubF32(a, b float32) float32 { return a - b }

func grugMulF32(a, b float32) float32 { return a * b }

func grugDivF32(a, b float32) float32 { return a / b }
`

// emitter writes tab-indented Go source.
type emitter struct {
	buf    bytes.Buffer
	indent int
}

func (e *emitter) line(format string, args ...any) {
	if format == "" {
		e.buf.WriteByte('\n')
		return
	}
	for i := 0; i < e.indent; i++ {
		e.buf.WriteByte('\t')
	}
	fmt.Fprintf(&e.buf, format, args...)
	e.buf.WriteByte('\n')
}

// Generate lowers a checked file to a Go plugin source. The output depends
// only on f, so identical input yields identical bytes.
func Generate(f *ir.File) ([]byte, error) {
	e := &emitter{}

	e.line("// Code generated by grug. DO NOT EDIT.")
	e.line("// Source: %s", f.RelPath)
	e.line("// Entity: %s (%s)", f.Entity, f.EntityType)
	e.line("")
	e.line("package main")
	e.line("")
	e.line(`import "math"`)
	e.line("")
	e.buf.WriteString(fmt.Sprintf(prelude, MaxCallDepth))

	genBind(e, f)
	genGlobals(e, f)
	for _, fn := range f.OnFns {
		genOnFn(e, fn)
	}
	for _, fn := range f.Helpers {
		genHelper(e, fn)
	}

	src := e.buf.Bytes()
	if _, err := goparser.ParseFile(token.NewFileSet(), f.RelPath+".go", src, goparser.SkipObjectResolution); err != nil {
		return nil, fmt.Errorf("generated source for %s does not parse: %w", f.RelPath, err)
	}
	return src, nil
}

func hostSignature(h ir.HostFn) string {
	params := make([]string, len(h.Params))
	for i, p := range h.Params {
		params[i] = p.GoType()
	}
	sig := "func(" + strings.Join(params, ", ") + ")"
	if h.Return != ir.Void {
		sig += " " + h.Return.GoType()
	}
	return sig
}

func genBind(e *emitter, f *ir.File) {
	if len(f.HostFns) == 0 {
		e.line("")
		e.line("func %s(host map[string]any) string { return \"\" }", BindSymbol)
		return
	}

	e.line("")
	e.line("var (")
	e.indent++
	for _, h := range f.HostFns {
		e.line("host_%s %s", h.Name, hostSignature(h))
	}
	e.indent--
	e.line(")")
	e.line("")
	e.line("func %s(host map[string]any) string {", BindSymbol)
	e.indent++
	e.line("var ok bool")
	for _, h := range f.HostFns {
		e.line("if host_%s, ok = host[%s].(%s); !ok {", h.Name, strconv.Quote(h.Name), hostSignature(h))
		e.indent++
		e.line("return %s", strconv.Quote(h.Name))
		e.indent--
		e.line("}")
	}
	e.line(`return ""`)
	e.indent--
	e.line("}")
}

func genGlobals(e *emitter, f *ir.File) {
	e.line("")
	e.line("type globals struct {")
	e.indent++
	e.line("me uint64")
	for _, g := range f.Globals {
		e.line("g_%s %s", g.Name, g.Type.GoType())
	}
	e.indent--
	e.line("}")
	e.line("")
	e.line("func %s(me uint64) any {", InitGlobalsSymbol)
	e.indent++
	e.line("g := &globals{me: me}")
	for _, g := range f.Globals {
		e.line("g.g_%s = %s", g.Name, expr(g.Init))
	}
	e.line("return g")
	e.indent--
	e.line("}")
}

func genOnFn(e *emitter, fn *ir.Function) {
	e.line("")
	e.line("func %s(gp any, args []any) {", OnFnSymbol(fn.Name))
	e.indent++
	e.line("g := gp.(*globals)")
	e.line("_ = g")
	e.line("depth := 0")
	e.line("_ = depth")
	for i, p := range fn.Params {
		e.line("v_%s := args[%d].(%s)", p.Name, i, p.Type.GoType())
		e.line("_ = v_%s", p.Name)
	}
	stmts(e, fn.Body)
	e.indent--
	e.line("}")
}

func genHelper(e *emitter, fn *ir.Function) {
	params := []string{"g *globals", "depth int"}
	for _, p := range fn.Params {
		params = append(params, "v_"+p.Name+" "+p.Type.GoType())
	}
	ret := ""
	if fn.Return != ir.Void {
		ret = " " + fn.Return.GoType()
	}

	e.line("")
	e.line("func %s(%s)%s {", fn.Name, strings.Join(params, ", "), ret)
	e.indent++
	e.line("grugEnter(depth)")
	stmts(e, fn.Body)
	e.indent--
	e.line("}")
}

func stmts(e *emitter, body []ir.Stmt) {
	for _, s := range body {
		stmt(e, s)
	}
}

func stmt(e *emitter, s ir.Stmt) {
	switch s := s.(type) {
	case *ir.VarDecl:
		e.line("var v_%s %s = %s", s.Name, s.Type.GoType(), expr(s.Value))
		e.line("_ = v_%s", s.Name)
	case *ir.Assign:
		e.line("%s = %s", ref(s.Target), expr(s.Value))
	case *ir.CallStmt:
		e.line("%s", call(s.Call))
	case *ir.If:
		e.line("if %s {", expr(s.Cond))
		ifTail(e, s)
	case *ir.While:
		e.line("for %s {", expr(s.Cond))
		e.indent++
		stmts(e, s.Body)
		e.indent--
		e.line("}")
	case *ir.Break:
		e.line("break")
	case *ir.Continue:
		e.line("continue")
	case *ir.Return:
		if s.Value == nil {
			e.line("return")
		} else {
			e.line("return %s", expr(s.Value))
		}
	}
}

// ifTail writes the body and else chain of an if whose header is already
// emitted.
func ifTail(e *emitter, s *ir.If) {
	e.indent++
	stmts(e, s.Then)
	e.indent--

	if s.Else == nil {
		e.line("}")
		return
	}
	if len(s.Else) == 1 {
		if nested, ok := s.Else[0].(*ir.If); ok {
			e.line("} else if %s {", expr(nested.Cond))
			ifTail(e, nested)
			return
		}
	}
	e.line("} else {")
	e.indent++
	stmts(e, s.Else)
	e.indent--
	e.line("}")
}

func ref(r *ir.Ref) string {
	switch r.Kind {
	case ir.RefGlobal:
		return "g.g_" + r.Name
	case ir.RefMe:
		return "g.me"
	}
	return "v_" + r.Name
}

var arithmetic = map[string]string{
	"+": "Add",
	"-": "Sub",
	"*": "Mul",
	"/": "Div",
	"%": "Mod",
}

var logical = map[string]string{
	"and": "&&",
	"or":  "||",
}

func expr(x ir.Expr) string {
	switch x := x.(type) {
	case *ir.Lit:
		return literal(x)
	case *ir.Ref:
		return ref(x)
	case *ir.Call:
		return call(x)
	case *ir.Unary:
		switch {
		case x.Op == "not":
			return "(!" + expr(x.X) + ")"
		case x.T == ir.I32:
			return "grugNegI32(" + expr(x.X) + ")"
		}
		return "(-" + expr(x.X) + ")"
	case *ir.Binary:
		if name, ok := arithmetic[x.Op]; ok {
			suffix := "I32"
			if x.T == ir.F32 {
				suffix = "F32"
			}
			return fmt.Sprintf("grug%s%s(%s, %s)", name, suffix, expr(x.L), expr(x.R))
		}
		op := x.Op
		if goOp, ok := logical[op]; ok {
			op = goOp
		}
		return fmt.Sprintf("(%s %s %s)", expr(x.L), op, expr(x.R))
	}
	panic(fmt.Sprintf("codegen: unexpected expression %T", x))
}

func literal(l *ir.Lit) string {
	switch l.T {
	case ir.Bool:
		return strconv.FormatBool(l.Bool)
	case ir.I32:
		return fmt.Sprintf("int32(%d)", l.I32)
	case ir.F32:
		return "float32(" + strconv.FormatFloat(float64(l.F32), 'g', -1, 32) + ")"
	}
	return strconv.Quote(l.Str)
}

func call(c *ir.Call) string {
	args := make([]string, 0, len(c.Args)+2)
	name := "host_" + c.Name
	if c.Kind == ir.CallHelper {
		name = c.Name
		args = append(args, "g", "depth+1")
	}
	for _, a := range c.Args {
		args = append(args, expr(a))
	}
	return name + "(" + strings.Join(args, ", ") + ")"
}
