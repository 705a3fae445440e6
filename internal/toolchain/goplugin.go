package toolchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultBuildTimeout bounds one go build invocation.
const DefaultBuildTimeout = 2 * time.Minute

// GoPlugin builds artifacts with `go build -buildmode=plugin`. Each build
// runs in its own scratch module so parallel builds never share state.
type GoPlugin struct {
	goBin   string
	workDir string
	timeout time.Duration
	env     []string
	logger  *slog.Logger
}

// GoPluginOption configures a GoPlugin.
type GoPluginOption func(*GoPlugin)

// WithGoBinary overrides the go command (default "go" from PATH).
func WithGoBinary(path string) GoPluginOption {
	return func(g *GoPlugin) { g.goBin = path }
}

// WithBuildTimeout bounds each build. Zero disables the bound.
func WithBuildTimeout(d time.Duration) GoPluginOption {
	return func(g *GoPlugin) { g.timeout = d }
}

// WithEnv appends environment entries to every build.
func WithEnv(env ...string) GoPluginOption {
	return func(g *GoPlugin) { g.env = append(g.env, env...) }
}

// WithBuildLogger sets the logger.
func WithBuildLogger(l *slog.Logger) GoPluginOption {
	return func(g *GoPlugin) { g.logger = l }
}

// NewGoPlugin returns a toolchain whose scratch modules live under workDir.
func NewGoPlugin(workDir string, opts ...GoPluginOption) *GoPlugin {
	g := &GoPlugin{
		goBin:   "go",
		workDir: workDir,
		timeout: DefaultBuildTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// goDirective returns the language version of the running toolchain, e.g.
// "1.25" for go1.25.3. Plugins must be built by the same Go release as the
// host, so the host's version is the only sensible choice.
func goDirective() string {
	v := strings.TrimPrefix(runtime.Version(), "go")
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return v
	}
	minor := parts[1]
	if i := strings.IndexAny(minor, "-+ "); i >= 0 {
		minor = minor[:i]
	}
	return parts[0] + "." + minor
}

// pluginModulePath names the scratch module of one build. The runtime
// keys loaded plugins by this path and refuses a second plugin with the
// same one, so it differs for every mod file and every version of it.
func pluginModulePath(req BuildRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Key))
	h.Write([]byte{0})
	h.Write(req.Source)
	return "grugplugin/m" + hex.EncodeToString(h.Sum(nil))[:24]
}

// writeScratchModule lays out the module that go build compiles.
func writeScratchModule(dir string, req BuildRequest) error {
	mod := fmt.Sprintf("module %s\n\ngo %s\n", pluginModulePath(req), goDirective())
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(mod), 0o644); err != nil {
		return fmt.Errorf("write go.mod: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mod.go"), req.Source, 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

// Build implements Toolchain. The plugin is built without -trimpath: the
// runtime only loads plugins whose shared packages were built exactly as
// the host's were, and hosts are normally built without it.
func (g *GoPlugin) Build(ctx context.Context, req BuildRequest) error {
	start := time.Now()

	if err := os.MkdirAll(g.workDir, 0o755); err != nil {
		return &BuildError{Key: req.Key, Err: fmt.Errorf("create work dir: %w", err)}
	}
	dir, err := os.MkdirTemp(g.workDir, "build-*")
	if err != nil {
		return &BuildError{Key: req.Key, Err: fmt.Errorf("create scratch module: %w", err)}
	}
	defer os.RemoveAll(dir)

	if err := writeScratchModule(dir, req); err != nil {
		return &BuildError{Key: req.Key, Err: err}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	tmpOut := filepath.Join(dir, "out"+ArtifactExt)
	cmd := exec.CommandContext(ctx, g.goBin, "build", "-buildmode=plugin", "-o", tmpOut, ".")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1", "GOFLAGS=-mod=mod", "GOWORK=off")
	cmd.Env = append(cmd.Env, g.env...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return &BuildError{Key: req.Key, Output: string(output), Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return &BuildError{Key: req.Key, Err: fmt.Errorf("create output dir: %w", err)}
	}
	if err := os.Rename(tmpOut, req.Output); err != nil {
		return &BuildError{Key: req.Key, Err: fmt.Errorf("install artifact: %w", err)}
	}

	g.logger.Debug("plugin built", "key", req.Key, "output", req.Output, "duration", time.Since(start))
	return nil
}
