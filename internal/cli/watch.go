package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/lemonlambda/grug-sys/internal/engine"
	"github.com/lemonlambda/grug-sys/internal/metrics"
	"github.com/lemonlambda/grug-sys/internal/registry"
	"github.com/lemonlambda/grug-sys/internal/scan"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Hot-reload mods as they change",
		Long: `Run reload cycles until interrupted.

A cycle runs every poll interval and immediately after filesystem events
under the mods root. With --listen, an HTTP server exposes /healthz, /mods
and Prometheus /metrics.

Examples:
  grug watch
  grug watch --poll 250ms --listen :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}

	cmd.Flags().DurationVar(&rootOpts.flags.Watch.Poll, "poll", 500*time.Millisecond, "interval between reload cycles")
	cmd.Flags().StringVar(&rootOpts.flags.Watch.Listen, "listen", "", "address for /healthz, /mods and /metrics")

	return cmd
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewWithRegistry(reg)
	e, err := startEngine(opts, logger, engine.WithMetrics(collector))
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeEngine, err.Error(), nil)
	}
	defer e.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	watcher, err := scan.NewWatcher(e.ModsDir(), []string{e.BuildDir()}, logger)
	if err != nil {
		logger.Warn("filesystem events unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("watcher stopped", "error", err)
			}
		}()
	}

	if addr := opts.Project.Watch.Listen; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metrics.NewRouter(collector, routerConfig(e)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving introspection", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("introspection server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s. Press Ctrl-C to stop.\n", e.ModsDir())

	ticker := time.NewTicker(opts.Project.Watch.Poll)
	defer ticker.Stop()
	var changes <-chan struct{}
	if watcher != nil {
		changes = watcher.Changes()
	}

	cycle(ctx, e, f, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case <-ticker.C:
		case <-changes:
			logger.Debug("filesystem change")
		}
		cycle(ctx, e, f, logger)
	}
}

// cycle runs one reload cycle and prints it when something happened. A
// failure that persists unchanged is printed only once.
func cycle(ctx context.Context, e *engine.Engine, f *OutputFormatter, logger *slog.Logger) {
	report, err := e.Regenerate(ctx)
	if report == nil {
		if err != nil && !errors.Is(err, engine.ErrClosed) {
			logger.Error("reload cycle did not run", "error", err)
		}
		return
	}
	quiet := !report.Swapped && len(report.ResourceReloads) == 0
	if ee, ok := engine.AsEngineError(err); ok && ee.HasChanged {
		quiet = false
	}
	if quiet {
		return
	}
	if err := f.Success(summarize(report)); err != nil {
		logger.Warn("write cycle summary", "error", err)
	}
}

func routerConfig(e *engine.Engine) metrics.RouterConfig {
	return metrics.RouterConfig{
		Health: func() error {
			if ee := e.Error(); ee != nil {
				return ee
			}
			return nil
		},
		Mods: func() any { return modsView(e.Snapshot()) },
	}
}

// ModView is the JSON form of one mod in /mods.
type ModView struct {
	Name       string     `json:"name"`
	Generation uint64     `json:"generation"`
	Files      []FileView `json:"files"`
}

// FileView is the JSON form of one loaded mod file.
type FileView struct {
	Path        string   `json:"path"`
	Entity      string   `json:"entity"`
	EntityType  string   `json:"entity_type"`
	OnFunctions []string `json:"on_functions"`
	Resources   []string `json:"resources"`
	CodegenHash string   `json:"codegen_hash"`
}

func modsView(s *registry.Snapshot) []ModView {
	mods := make([]ModView, 0, len(s.Dirs))
	for _, d := range s.Dirs {
		mv := ModView{Name: d.Name, Generation: s.Generation, Files: make([]FileView, 0, len(d.Files))}
		for _, file := range d.Files {
			fv := FileView{
				Path:        file.RelPath,
				Entity:      file.Entity,
				EntityType:  file.EntityType,
				OnFunctions: []string{},
				Resources:   orEmpty(file.Resources),
				CodegenHash: file.CodegenHash,
			}
			for _, fn := range file.OnFunctions {
				fv.OnFunctions = append(fv.OnFunctions, fn.Name)
			}
			mv.Files = append(mv.Files, fv)
		}
		mods = append(mods, mv)
	}
	return mods
}
