// Package toolchain turns generated Go source into loadable artifacts and
// opens them. Both halves sit behind interfaces so the engine can run with
// fakes in tests.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lemonlambda/grug-sys/internal/ir"
)

// ArtifactExt is the file extension of built artifacts.
const ArtifactExt = ".so"

// BuildRequest asks for one artifact.
type BuildRequest struct {
	Key    string // mod file relative path, for logs and errors
	Source []byte // generated Go source
	Output string // artifact path to write
}

// Toolchain builds artifacts. Build must either write req.Output
// completely or leave it untouched.
type Toolchain interface {
	Build(ctx context.Context, req BuildRequest) error
}

// BuildError is a failed toolchain invocation. It is an engine-internal
// error: the source already passed the checker, so the failure points at
// codegen or the build environment rather than at the mod author.
type BuildError struct {
	Key    string
	Output string // combined toolchain output
	Err    error
}

func (e *BuildError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("build %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("build %s: %v\n%s", e.Key, e.Err, out)
}

func (e *BuildError) Unwrap() error { return e.Err }

// IsBuildError reports whether err is or wraps a *BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}

// ArtifactPath derives the artifact location for a mod file. The path
// mirrors the source layout under buildDir and embeds a short codegen hash,
// so a rebuilt file never overwrites an artifact that may still be loaded.
func ArtifactPath(buildDir, relPath, codegenHash string) string {
	stem := strings.TrimSuffix(filepath.FromSlash(relPath), filepath.Ext(relPath))
	return filepath.Join(buildDir, stem+"."+ir.ShortHash(codegenHash)+ArtifactExt)
}
