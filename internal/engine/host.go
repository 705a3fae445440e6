package engine

import (
	"reflect"

	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/schema"
)

// HostCall observes one call of a stub game function.
type HostCall func(name string, args []any)

var goTypes = map[ir.Type]reflect.Type{
	ir.Bool:     reflect.TypeFor[bool](),
	ir.I32:      reflect.TypeFor[int32](),
	ir.F32:      reflect.TypeFor[float32](),
	ir.String:   reflect.TypeFor[string](),
	ir.ID:       reflect.TypeFor[uint64](),
	ir.Resource: reflect.TypeFor[string](),
	ir.Entity:   reflect.TypeFor[string](),
}

// StubHostFunctions builds an implementation of every game function in s
// with the exact Go type mods bind against. Each stub passes its
// arguments to observe, which may be nil, and returns the zero value.
//
// The CLI and the test harness run mods with stubs; real hosts pass their
// own functions to WithHostFunctions.
func StubHostFunctions(s *schema.ApiSchema, observe HostCall) map[string]any {
	fns := make(map[string]any)
	for _, fn := range s.HostFunctions() {
		in := make([]reflect.Type, len(fn.Arguments))
		for i, a := range fn.Arguments {
			in[i] = goTypes[a.Type]
		}
		var out []reflect.Type
		if fn.Return != ir.Void {
			out = append(out, goTypes[fn.Return])
		}
		typ := reflect.FuncOf(in, out, false)

		name := fn.Name
		impl := reflect.MakeFunc(typ, func(args []reflect.Value) []reflect.Value {
			if observe != nil {
				vals := make([]any, len(args))
				for i, a := range args {
					vals[i] = a.Interface()
				}
				observe(name, vals)
			}
			results := make([]reflect.Value, len(out))
			for i, t := range out {
				results[i] = reflect.Zero(t)
			}
			return results
		})
		fns[name] = impl.Interface()
	}
	return fns
}
