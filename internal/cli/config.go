package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lemonlambda/grug-sys/internal/engine"
	"github.com/lemonlambda/grug-sys/internal/scan"
)

// DefaultConfigFile is read from the working directory when --config is
// not given. It is optional.
const DefaultConfigFile = "grug.yaml"

// ProjectConfig is the grug.yaml layout. Relative paths in the file are
// resolved against the file's directory.
type ProjectConfig struct {
	Schema        string      `yaml:"schema"`
	Mods          string      `yaml:"mods"`
	Build         string      `yaml:"build"`
	Cache         string      `yaml:"cache"`
	ArenaCapacity int64       `yaml:"arena_capacity"`
	Verify        string      `yaml:"verify"`
	Workers       int         `yaml:"workers"`
	Watch         WatchConfig `yaml:"watch"`
}

// WatchConfig configures "grug watch".
type WatchConfig struct {
	Poll   time.Duration `yaml:"poll"`
	Listen string        `yaml:"listen"`
}

// defaultProject mirrors the layout grug projects start with.
func defaultProject() ProjectConfig {
	return ProjectConfig{
		Schema: "mod_api.json",
		Mods:   "mods",
		Build:  "mod_build",
		Verify: scan.VerifyContent.String(),
		Watch:  WatchConfig{Poll: 500 * time.Millisecond},
	}
}

// LoadConfig decodes a grug.yaml file over the defaults. Unknown keys are
// errors.
func LoadConfig(path string) (ProjectConfig, error) {
	cfg := defaultProject()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for _, p := range []*string{&cfg.Schema, &cfg.Mods, &cfg.Build, &cfg.Cache} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	return cfg, nil
}

// resolveProject loads the config file, then applies every flag the user
// set. A missing default config file is not an error; a missing explicit
// one is.
func resolveProject(path string, explicit bool, flags ProjectConfig, changed func(string) bool) (ProjectConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = defaultProject()
	}

	if changed("schema") {
		cfg.Schema = flags.Schema
	}
	if changed("mods") {
		cfg.Mods = flags.Mods
	}
	if changed("build") {
		cfg.Build = flags.Build
	}
	if changed("cache") {
		cfg.Cache = flags.Cache
	}
	if changed("arena-capacity") {
		cfg.ArenaCapacity = flags.ArenaCapacity
	}
	if changed("verify") {
		cfg.Verify = flags.Verify
	}
	if changed("workers") {
		cfg.Workers = flags.Workers
	}
	if changed("poll") {
		cfg.Watch.Poll = flags.Watch.Poll
	}
	if changed("listen") {
		cfg.Watch.Listen = flags.Watch.Listen
	}

	if cfg.Cache == "" {
		cfg.Cache = filepath.Join(cfg.Build, "grug.db")
	}
	if _, ok := scan.ParseVerifyMode(cfg.Verify); !ok {
		return cfg, NewExitError(ExitCommandError, fmt.Sprintf("invalid verify mode %q: must be metadata or content", cfg.Verify))
	}
	if cfg.ArenaCapacity < 0 {
		return cfg, NewExitError(ExitCommandError, "arena_capacity must be non-negative")
	}
	if cfg.Watch.Poll <= 0 {
		return cfg, NewExitError(ExitCommandError, "watch poll interval must be positive")
	}
	return cfg, nil
}

// EngineConfig converts the project configuration for engine.New.
func (c ProjectConfig) EngineConfig() engine.Config {
	verify, _ := scan.ParseVerifyMode(c.Verify)
	return engine.Config{
		SchemaPath:    c.Schema,
		ModsDir:       c.Mods,
		BuildDir:      c.Build,
		ArenaCapacity: c.ArenaCapacity,
		Verify:        verify,
		CachePath:     c.Cache,
	}
}
