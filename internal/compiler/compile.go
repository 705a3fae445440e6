// Package compiler turns one grug mod file into Go plugin source.
//
// The pipeline is Lex -> Parse -> check (against the mod API, producing
// ir.File) -> Generate. Every stage fails fast with a *CompileError that
// names the source path and line.
package compiler

import (
	"path"
	"strings"

	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/schema"
)

// Extension is the mod source file extension.
const Extension = ".grug"

// Source is one mod file to compile.
type Source struct {
	Path    string // canonical absolute path, used in errors
	RelPath string // slash-separated, relative to the mods root
	Mod     string
	ModDir  string // resources are resolved against this directory
	Data    []byte
}

// Unit is the result of compiling one Source.
type Unit struct {
	File        *ir.File
	Generated   []byte
	SourceHash  string
	CodegenHash string
}

// Compiler compiles mod files against one mod API.
type Compiler struct {
	schema *schema.ApiSchema
}

// New returns a Compiler for s.
func New(s *schema.ApiSchema) *Compiler {
	return &Compiler{schema: s}
}

// FileName splits a mod file's relative path into its mod, entity name and
// entity type. "animals/sub/dog-Dog.grug" yields ("animals", "dog", "Dog").
func FileName(relPath string) (mod, name, entityType string, ok bool) {
	mod, _, nested := strings.Cut(relPath, "/")
	if !nested || mod == "" {
		return "", "", "", false
	}
	base := path.Base(relPath)
	if !strings.HasSuffix(base, Extension) {
		return "", "", "", false
	}
	stem := strings.TrimSuffix(base, Extension)
	i := strings.LastIndex(stem, "-")
	if i <= 0 || i == len(stem)-1 {
		return "", "", "", false
	}
	name, entityType = stem[:i], stem[i+1:]
	if !entityPartPattern.MatchString(name) {
		return "", "", "", false
	}
	return mod, name, entityType, true
}

// Compile runs the whole pipeline on src.
func (c *Compiler) Compile(src Source) (*Unit, error) {
	mod, name, entityType, ok := FileName(src.RelPath)
	if !ok {
		return nil, FileError(ErrFileName, src.Path,
			"mod files must be named <name>-<EntityType>%s inside a mod directory", Extension)
	}
	if src.Mod == "" {
		src.Mod = mod
	}
	entity, ok := c.schema.Entity(entityType)
	if !ok {
		return nil, FileError(ErrUnknownEntityType, src.Path, "entity type %q is not declared in the mod API", entityType)
	}

	ast, err := Parse(src.Path, src.Data)
	if err != nil {
		return nil, err
	}
	file, err := newChecker(src, c.schema, entity).check(ast)
	if err != nil {
		return nil, err
	}
	file.Path = src.Path
	file.RelPath = src.RelPath
	file.Mod = src.Mod
	file.Name = name
	file.Entity = src.Mod + ":" + name
	file.EntityType = entityType

	generated, err := Generate(file)
	if err != nil {
		return nil, err
	}
	return &Unit{
		File:        file,
		Generated:   generated,
		SourceHash:  ir.SourceHash(src.Data),
		CodegenHash: ir.CodegenHash(generated),
	}, nil
}
