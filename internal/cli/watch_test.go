package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonlambda/grug-sys/internal/engine"
	"github.com/lemonlambda/grug-sys/internal/metrics"
)

func TestWatch_RunsUntilCancelled(t *testing.T) {
	p := newProject(t)
	p.Write(t, worldRel, worldSrc)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := executeContext(t, ctx, p.options(), p.flags("watch", "--poll", "20ms")...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Watching "), out)
	assert.Contains(t, out, "✓ cycle 1 (generation 1): 1 compiled")
	// Idle cycles print nothing.
	assert.Equal(t, 1, strings.Count(out, "✓ cycle"))
}

func TestWatch_InvalidPoll(t *testing.T) {
	p := newProject(t)
	_, err := execute(t, p.options(), p.flags("watch", "--poll", "0s")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorContains(t, err, "poll interval must be positive")
}

// startTestEngine starts an engine for p the way the CLI does.
func startTestEngine(t *testing.T, p *project) *engine.Engine {
	t.Helper()
	opts := p.options()
	opts.Project = defaultProject()
	opts.Project.Schema = p.ModAPI
	opts.Project.Mods = p.Mods
	opts.Project.Build = p.Build
	opts.Project.Cache = p.Cache
	opts.Project.Workers = 1

	e, err := startEngine(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestRouter_ModsAndHealth(t *testing.T) {
	p := newProject(t)
	p.Write(t, dogRel, dogSrc)
	e := startTestEngine(t, p)

	_, err := e.Regenerate(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(metrics.NewRouter(metrics.NewWithRegistry(prometheus.NewRegistry()), routerConfig(e)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/mods")
	require.NoError(t, err)
	defer resp.Body.Close()
	var mods []ModView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mods))
	require.Len(t, mods, 1)
	assert.Equal(t, "example", mods[0].Name)
	assert.Equal(t, uint64(1), mods[0].Generation)
	require.Len(t, mods[0].Files, 1)
	f := mods[0].Files[0]
	assert.Equal(t, dogRel, f.Path)
	assert.Equal(t, "example:dog", f.Entity)
	assert.Equal(t, "Dog", f.EntityType)
	assert.Equal(t, []string{"on_bark"}, f.OnFunctions)
	assert.Equal(t, []string{}, f.Resources)
}

func TestRouter_HealthReportsReloadError(t *testing.T) {
	p := newProject(t)
	p.Write(t, worldRel, "on_tick(dt: f32) {\n    1 + 2\n}\n")
	e := startTestEngine(t, p)

	_, err := e.Regenerate(context.Background())
	require.Error(t, err)

	srv := httptest.NewServer(metrics.NewRouter(metrics.NewWithRegistry(prometheus.NewRegistry()), routerConfig(e)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "failing", body["status"])
	assert.Contains(t, body["error"], "[E102]")
}
