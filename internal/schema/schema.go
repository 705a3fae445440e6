// Package schema loads the mod API definition: the entity types a mod file
// may target, the on-functions each entity type accepts, and the host
// ("game") functions mod code may call.
//
// The definition is read once at engine initialization and is immutable
// afterwards. JSON, CUE and YAML documents are accepted; all of them are
// unified with an embedded CUE definition so malformed input is rejected
// with a file position.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/lemonlambda/grug-sys/internal/ir"
)

//go:embed modapi.cue
var modAPIDefinition string

// Argument is one parameter of an on-function or host function.
type Argument struct {
	Name              string
	Type              ir.Type
	ResourceExtension string // required suffix for resource arguments
	EntityType        string // expected entity type for entity arguments
}

// OnFunction is a callback an entity type allows mod files to implement.
type OnFunction struct {
	Name        string
	Description string
	Arguments   []Argument
}

// EntityType lists the on-functions for one entity type, in declaration order.
type EntityType struct {
	Name        string
	Description string
	OnFunctions []OnFunction

	index map[string]int
}

// OnFunction returns the named on-function and its position in declaration order.
func (e *EntityType) OnFunction(name string) (OnFunction, int, bool) {
	i, ok := e.index[name]
	if !ok {
		return OnFunction{}, -1, false
	}
	return e.OnFunctions[i], i, true
}

// HostFunction is a function the host exposes to mod code.
type HostFunction struct {
	Name        string
	Description string
	Arguments   []Argument
	Return      ir.Type
}

// GoSignature renders the Go function type the host must register for fn,
// e.g. "func(string, int32) bool".
func (fn HostFunction) GoSignature() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, a := range fn.Arguments {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Type.GoType())
	}
	b.WriteString(")")
	if fn.Return != ir.Void {
		b.WriteString(" ")
		b.WriteString(fn.Return.GoType())
	}
	return b.String()
}

// ApiSchema is the immutable, loaded mod API.
type ApiSchema struct {
	Path string
	Hash string

	entities  []*EntityType
	byName    map[string]*EntityType
	hostFns   map[string]HostFunction
	hostOrder []string
}

// Entity returns the named entity type.
func (s *ApiSchema) Entity(name string) (*EntityType, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Entities returns every entity type in declaration order.
func (s *ApiSchema) Entities() []*EntityType {
	return s.entities
}

// HostFunction returns the named host function.
func (s *ApiSchema) HostFunction(name string) (HostFunction, bool) {
	fn, ok := s.hostFns[name]
	return fn, ok
}

// HostFunctions returns every host function in declaration order.
func (s *ApiSchema) HostFunctions() []HostFunction {
	out := make([]HostFunction, 0, len(s.hostOrder))
	for _, name := range s.hostOrder {
		out = append(out, s.hostFns[name])
	}
	return out
}

// LoadError is a malformed schema document.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Load reads and validates the schema file at path.
func Load(path string) (*ApiSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mod api: %w", err)
	}
	s, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Parse validates data as a mod API document. The file extension of
// filename selects the decoder: .yaml/.yml go through CUE's YAML extractor,
// everything else (.json, .cue) is compiled as CUE directly.
func Parse(filename string, data []byte) (*ApiSchema, error) {
	ctx := cuecontext.New()

	def := ctx.CompileString(modAPIDefinition, cue.Filename("modapi.cue"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("embedded mod api definition: %w", err)
	}

	var v cue.Value
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		f, err := cueyaml.Extract(filename, data)
		if err != nil {
			return nil, formatCUEError(err, filename)
		}
		v = ctx.BuildFile(f)
	default:
		v = ctx.CompileBytes(data, cue.Filename(filename))
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err, filename)
	}

	v = def.LookupPath(cue.ParsePath("#ModAPI")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, filename)
	}

	s := &ApiSchema{
		Path:    filename,
		Hash:    ir.SourceHash(data),
		byName:  make(map[string]*EntityType),
		hostFns: make(map[string]HostFunction),
	}

	if err := s.parseEntities(v.LookupPath(cue.ParsePath("entities"))); err != nil {
		return nil, err
	}
	if err := s.parseHostFunctions(v.LookupPath(cue.ParsePath("game_functions"))); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ApiSchema) parseEntities(v cue.Value) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err, s.Path)
	}
	for iter.Next() {
		ev := iter.Value()
		et := &EntityType{
			Name:  iter.Label(),
			index: make(map[string]int),
		}
		et.Description = optionalString(ev, "description")

		onFns := ev.LookupPath(cue.ParsePath("on_functions"))
		if onFns.Exists() {
			fnIter, err := onFns.Fields()
			if err != nil {
				return formatCUEError(err, s.Path)
			}
			for fnIter.Next() {
				args, err := parseArguments(fnIter.Value(), s.Path)
				if err != nil {
					return err
				}
				et.index[fnIter.Label()] = len(et.OnFunctions)
				et.OnFunctions = append(et.OnFunctions, OnFunction{
					Name:        fnIter.Label(),
					Description: optionalString(fnIter.Value(), "description"),
					Arguments:   args,
				})
			}
		}

		s.entities = append(s.entities, et)
		s.byName[et.Name] = et
	}
	return nil
}

func (s *ApiSchema) parseHostFunctions(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err, s.Path)
	}
	for iter.Next() {
		fv := iter.Value()
		args, err := parseArguments(fv, s.Path)
		if err != nil {
			return err
		}
		fn := HostFunction{
			Name:        iter.Label(),
			Description: optionalString(fv, "description"),
			Arguments:   args,
		}
		if rt := optionalString(fv, "return_type"); rt != "" {
			t, _ := ir.ParseType(rt)
			if t == ir.Resource || t == ir.Entity {
				return &LoadError{
					Message: fmt.Sprintf("game function %q cannot return %s", fn.Name, t),
					Pos:     fv.LookupPath(cue.ParsePath("return_type")).Pos(),
				}
			}
			fn.Return = t
		}
		s.hostFns[fn.Name] = fn
		s.hostOrder = append(s.hostOrder, fn.Name)
	}
	return nil
}

func parseArguments(fn cue.Value, path string) ([]Argument, error) {
	argsVal := fn.LookupPath(cue.ParsePath("arguments"))
	if !argsVal.Exists() {
		return nil, nil
	}
	iter, err := argsVal.List()
	if err != nil {
		return nil, formatCUEError(err, path)
	}

	var args []Argument
	seen := make(map[string]bool)
	for iter.Next() {
		av := iter.Value()
		name := optionalString(av, "name")
		if seen[name] {
			return nil, &LoadError{
				Message: fmt.Sprintf("duplicate argument name %q", name),
				Pos:     av.Pos(),
			}
		}
		seen[name] = true

		t, _ := ir.ParseType(optionalString(av, "type"))
		args = append(args, Argument{
			Name:              name,
			Type:              t,
			ResourceExtension: optionalString(av, "resource_extension"),
			EntityType:        optionalString(av, "entity_type"),
		})
	}
	return args, nil
}

// optionalString returns the string at field, or "" when absent.
// Types were already enforced by unification with #ModAPI.
func optionalString(v cue.Value, field string) string {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return ""
	}
	s, _ := fv.String()
	return s
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, filename string) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Message: err.Error()}
	}

	// Point at the document being loaded rather than the embedded
	// definition it failed against.
	var fallback *LoadError
	for _, e := range errs {
		for _, pos := range errors.Positions(e) {
			if !pos.IsValid() {
				continue
			}
			if pos.Filename() == filename {
				return &LoadError{Message: e.Error(), Pos: pos}
			}
			if fallback == nil {
				fallback = &LoadError{Message: e.Error(), Pos: pos}
			}
		}
	}
	if fallback != nil {
		return fallback
	}
	return &LoadError{Message: errs[0].Error()}
}
