package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonlambda/grug-sys/internal/ir"
)

const testAPI = `{
	"entities": {
		"World": {
			"description": "The world",
			"on_functions": {
				"on_spawn": {},
				"on_tick": {
					"arguments": [{"name": "dt", "type": "f32"}]
				}
			}
		},
		"Dog": {
			"on_functions": {
				"on_bark": {
					"arguments": [
						{"name": "volume", "type": "i32"},
						{"name": "target", "type": "id"}
					]
				}
			}
		}
	},
	"game_functions": {
		"println": {"arguments": [{"name": "message", "type": "string"}]},
		"get_health": {"return_type": "i32", "arguments": [{"name": "who", "type": "id"}]},
		"play_sound": {"arguments": [{"name": "path", "type": "resource", "resource_extension": ".wav"}]}
	}
}`

func TestParseJSON(t *testing.T) {
	s, err := Parse("mod_api.json", []byte(testAPI))
	require.NoError(t, err)

	entities := s.Entities()
	require.Len(t, entities, 2)
	assert.Equal(t, "World", entities[0].Name)
	assert.Equal(t, "Dog", entities[1].Name)
	assert.Equal(t, "The world", entities[0].Description)

	world, ok := s.Entity("World")
	require.True(t, ok)
	require.Len(t, world.OnFunctions, 2)
	assert.Equal(t, "on_spawn", world.OnFunctions[0].Name)
	assert.Equal(t, "on_tick", world.OnFunctions[1].Name)

	tick, idx, ok := world.OnFunction("on_tick")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []Argument{{Name: "dt", Type: ir.F32}}, tick.Arguments)

	_, _, ok = world.OnFunction("on_bark")
	assert.False(t, ok)

	fn, ok := s.HostFunction("get_health")
	require.True(t, ok)
	assert.Equal(t, ir.I32, fn.Return)
	assert.Equal(t, "func(uint64) int32", fn.GoSignature())

	sound, ok := s.HostFunction("play_sound")
	require.True(t, ok)
	assert.Equal(t, ".wav", sound.Arguments[0].ResourceExtension)

	names := []string{}
	for _, h := range s.HostFunctions() {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"println", "get_health", "play_sound"}, names)
	assert.Len(t, s.Hash, 64)
}

func TestParseYAML(t *testing.T) {
	src := `
entities:
  World:
    on_functions:
      on_tick:
        arguments:
          - name: dt
            type: f32
game_functions:
  println:
    arguments:
      - name: message
        type: string
`
	s, err := Parse("mod_api.yaml", []byte(src))
	require.NoError(t, err)

	world, ok := s.Entity("World")
	require.True(t, ok)
	assert.Len(t, world.OnFunctions, 1)

	fn, ok := s.HostFunction("println")
	require.True(t, ok)
	assert.Equal(t, "func(string)", fn.GoSignature())
}

func TestParseRejectsUnknownType(t *testing.T) {
	src := `{"entities": {"World": {"on_functions": {"on_tick": {"arguments": [{"name": "dt", "type": "f64"}]}}}}}`
	_, err := Parse("mod_api.json", []byte(src))
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	require.True(t, le.Pos.IsValid())
	assert.Equal(t, "mod_api.json", le.Pos.Filename())
	assert.True(t, strings.HasPrefix(err.Error(), "mod_api.json:1:"), err.Error())
}

func TestParseRejectsUnknownField(t *testing.T) {
	src := `{"entities": {}, "extra": true}`
	_, err := Parse("mod_api.json", []byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra")
}

func TestParseRejectsBadOnFunctionName(t *testing.T) {
	src := `{"entities": {"World": {"on_functions": {"tick": {}}}}}`
	_, err := Parse("mod_api.json", []byte(src))
	require.Error(t, err)
}

func TestParseRejectsDuplicateArgument(t *testing.T) {
	src := `{"entities": {"World": {"on_functions": {"on_tick": {"arguments": [
		{"name": "dt", "type": "f32"},
		{"name": "dt", "type": "i32"}
	]}}}}}`
	_, err := Parse("mod_api.json", []byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate argument")
}

func TestParseRejectsEntityReturn(t *testing.T) {
	src := `{"entities": {}, "game_functions": {"spawn": {"return_type": "entity"}}}`
	_, err := Parse("mod_api.json", []byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot return")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read mod api")
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod_api.json")
	require.NoError(t, os.WriteFile(path, []byte(testAPI), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path)
}
