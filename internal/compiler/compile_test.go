package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/schema"
)

const testAPI = `{
	"entities": {
		"World": {
			"on_functions": {
				"on_spawn": {},
				"on_tick": {"arguments": [{"name": "dt", "type": "f32"}]}
			}
		},
		"Dog": {
			"on_functions": {
				"on_bark": {"arguments": [{"name": "target", "type": "entity"}]}
			}
		}
	},
	"game_functions": {
		"println": {"arguments": [{"name": "message", "type": "string"}]},
		"get_health": {"return_type": "i32", "arguments": [{"name": "who", "type": "id"}]},
		"play_sound": {"arguments": [{"name": "path", "type": "resource", "resource_extension": ".wav"}]},
		"follow": {"arguments": [{"name": "target", "type": "entity"}]}
	}
}`

func testSchema(t *testing.T) *schema.ApiSchema {
	t.Helper()
	s, err := schema.Parse("mod_api.json", []byte(testAPI))
	require.NoError(t, err)
	return s
}

// compileString compiles src as <modsRoot>/example/<name>.
func compileString(t *testing.T, name, src string) (*Unit, error) {
	t.Helper()
	modDir := filepath.Join(t.TempDir(), "example")
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "bark.wav"), []byte("RIFF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "notes.txt"), []byte("hi"), 0o644))

	return New(testSchema(t)).Compile(Source{
		Path:    filepath.Join(modDir, name),
		RelPath: "example/" + name,
		Mod:     "example",
		ModDir:  modDir,
		Data:    []byte(src),
	})
}

const worldSource = `# counts ticks
ticks: i32 = 0
speed: f32 = 1.5

on_spawn() {
    println("spawned")
}

on_tick(dt: f32) {
    ticks = ticks + 1
    if helper_is_even(ticks) {
        play_sound("bark.wav")
    } else if ticks > 10 and not (dt < 0.5) {
        speed = speed * dt
    } else {
        i: i32 = 0
        while i < 3 {
            i = i + 1
            if i == 2 {
                continue
            }
        }
    }
}

helper_is_even(n: i32) bool {
    return n % 2 == 0
}
`

func TestCompileWorld(t *testing.T) {
	u, err := compileString(t, "world-World.grug", worldSource)
	require.NoError(t, err)

	f := u.File
	assert.Equal(t, "example:world", f.Entity)
	assert.Equal(t, "world", f.Name)
	assert.Equal(t, "World", f.EntityType)
	require.Len(t, f.OnFns, 2)
	assert.Equal(t, "on_spawn", f.OnFns[0].Name)
	assert.Equal(t, "on_tick", f.OnFns[1].Name)
	require.Len(t, f.Helpers, 1)
	assert.Equal(t, ir.Bool, f.Helpers[0].Return)
	assert.Equal(t, []string{"example/bark.wav"}, f.Resources)

	hosts := []string{}
	for _, h := range f.HostFns {
		hosts = append(hosts, h.Name)
	}
	assert.Equal(t, []string{"play_sound", "println"}, hosts)

	assert.Equal(t, ir.SourceHash([]byte(worldSource)), u.SourceHash)
	assert.Equal(t, ir.CodegenHash(u.Generated), u.CodegenHash)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "codegen_world", u.Generated)
}

func TestCompileIsDeterministic(t *testing.T) {
	a, err := compileString(t, "world-World.grug", worldSource)
	require.NoError(t, err)
	b, err := compileString(t, "world-World.grug", worldSource)
	require.NoError(t, err)
	assert.Equal(t, a.Generated, b.Generated)
	assert.Equal(t, a.CodegenHash, b.CodegenHash)
}

func TestCompileEmptyFile(t *testing.T) {
	u, err := compileString(t, "quiet-World.grug", "# nothing here\n")
	require.NoError(t, err)
	assert.Empty(t, u.File.OnFns)
	assert.Contains(t, string(u.Generated), `func Grug_bind(host map[string]any) string { return "" }`)
}

func TestCompileEntityLiterals(t *testing.T) {
	src := `on_bark(target: entity) {
    follow("cat")
    follow("other:cat")
    follow(target)
    if target == "cat" {
        println("same")
    }
}
`
	u, err := compileString(t, "dog-Dog.grug", src)
	require.NoError(t, err)
	out := string(u.Generated)
	assert.Contains(t, out, `host_follow("example:cat")`)
	assert.Contains(t, out, `host_follow("other:cat")`)
	assert.Contains(t, out, `(v_target == "example:cat")`)
}

func TestCompileMinInt32(t *testing.T) {
	u, err := compileString(t, "n-World.grug", "x: i32 = -2147483648\n")
	require.NoError(t, err)
	assert.Contains(t, string(u.Generated), "g.g_x = int32(-2147483648)")
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		src  string
		code string
		line int
	}{
		{"lex error", "a-World.grug", "x: i32 = 1 $ 2\n", ErrLex, 1},
		{"unterminated string", "a-World.grug", "x: string = \"abc\n", ErrLex, 1},
		{"missing brace", "a-World.grug", "on_spawn() {\n    println(\"x\")\n", ErrParse, 3},
		{"non-call statement", "a-World.grug", "on_spawn() {\n    1 + 2\n}\n", ErrParse, 2},
		{"else on new line", "a-World.grug", "on_spawn() {\n    if true {\n    }\n    else {\n    }\n}\n", ErrParse, 4},
		{"unknown identifier", "a-World.grug", "on_spawn() {\n    println(nope)\n}\n", ErrUnknownIdentifier, 2},
		{"type mismatch", "a-World.grug", "x: i32 = 1.5\n", ErrTypeMismatch, 1},
		{"no implicit float", "a-World.grug", "on_tick(dt: f32) {\n    x: f32 = dt + 1\n}\n", ErrTypeMismatch, 2},
		{"duplicate global", "a-World.grug", "x: i32 = 1\nx: i32 = 2\n", ErrRedeclared, 2},
		{"shadowing", "a-World.grug", "x: i32 = 1\non_spawn() {\n    x: i32 = 2\n}\n", ErrRedeclared, 3},
		{"param shadows global", "a-World.grug", "dt: f32 = 1.0\non_tick(dt: f32) {\n}\n", ErrRedeclared, 2},
		{"duplicate function", "a-World.grug", "on_spawn() {\n}\non_spawn() {\n}\n", ErrRedeclared, 3},
		{"unknown function", "a-World.grug", "on_spawn() {\n    explode()\n}\n", ErrUnknownFunction, 2},
		{"calling on-fn", "a-World.grug", "on_spawn() {\n    on_spawn()\n}\n", ErrUnknownFunction, 2},
		{"argument count", "a-World.grug", "on_spawn() {\n    println()\n}\n", ErrArgumentCount, 2},
		{"argument type", "a-World.grug", "on_spawn() {\n    println(1)\n}\n", ErrTypeMismatch, 2},
		{"undeclared on-fn", "a-World.grug", "on_bark(target: entity) {\n}\n", ErrUndeclaredOnFn, 1},
		{"on-fn params", "a-World.grug", "on_tick(delta: f32) {\n}\n", ErrOnFnSignature, 1},
		{"on-fn return", "a-World.grug", "on_spawn() i32 {\n    return 1\n}\n", ErrOnFnSignature, 1},
		{"on-fn order", "a-World.grug", "on_tick(dt: f32) {\n}\non_spawn() {\n}\n", ErrOnFnOrder, 3},
		{"missing return", "a-World.grug", "helper_x() i32 {\n    if true {\n        return 1\n    }\n}\n", ErrReturn, 1},
		{"return value from void", "a-World.grug", "on_spawn() {\n    return 1\n}\n", ErrReturn, 2},
		{"bare return in value helper", "a-World.grug", "helper_x() i32 {\n    return\n}\n", ErrReturn, 2},
		{"break outside loop", "a-World.grug", "on_spawn() {\n    break\n}\n", ErrOutsideLoop, 2},
		{"assign me", "a-World.grug", "on_spawn() {\n    me = me\n}\n", ErrAssignMe, 2},
		{"helper in global", "a-World.grug", "x: i32 = helper_one()\nhelper_one() i32 {\n    return 1\n}\n", ErrGlobalHelperCall, 1},
		{"unknown type", "a-World.grug", "x: i64 = 1\n", ErrUnknownType, 1},
		{"function prefix", "a-World.grug", "spawn() {\n}\n", ErrFunctionName, 1},
		{"i32 range", "a-World.grug", "x: i32 = 2147483648\n", ErrNumberLiteral, 1},
		{"resource missing", "a-World.grug", "on_spawn() {\n    play_sound(\"meow.wav\")\n}\n", ErrResource, 2},
		{"resource extension", "a-World.grug", "on_spawn() {\n    play_sound(\"notes.txt\")\n}\n", ErrResource, 2},
		{"resource escape", "a-World.grug", "r: resource = \"../bark.wav\"\n", ErrResource, 1},
		{"resource variable", "a-World.grug", "on_spawn() {\n    s: string = \"bark.wav\"\n    play_sound(s)\n}\n", ErrTypeMismatch, 3},
		{"entity literal", "a-World.grug", "e: entity = \"a:b:c\"\n", ErrEntityLiteral, 1},
		{"void value", "a-World.grug", "on_spawn() {\n    x: i32 = println(\"a\")\n}\n", ErrVoidValue, 2},
		{"bad file name", "world.grug", "", ErrFileName, 0},
		{"unknown entity type", "a-Cat.grug", "", ErrUnknownEntityType, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, tt.file, tt.src)
			require.Error(t, err)

			ce, ok := AsCompileError(err)
			require.True(t, ok, "expected *CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.code, ce.Code, ce.Error())
			assert.Equal(t, tt.line, ce.Line, ce.Error())
			assert.Contains(t, ce.Path, tt.file)
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		rel                    string
		mod, name, entityType string
		ok                     bool
	}{
		{"animals/dog-Dog.grug", "animals", "dog", "Dog", true},
		{"animals/sub/big-dog-Dog.grug", "animals", "big-dog", "Dog", true},
		{"dog-Dog.grug", "", "", "", false},
		{"animals/dog.grug", "", "", "", false},
		{"animals/-Dog.grug", "", "", "", false},
		{"animals/dog-.grug", "", "", "", false},
		{"animals/dog-Dog.txt", "", "", "", false},
	}
	for _, tt := range tests {
		mod, name, et, ok := FileName(tt.rel)
		assert.Equal(t, tt.ok, ok, tt.rel)
		assert.Equal(t, tt.mod, mod, tt.rel)
		assert.Equal(t, tt.name, name, tt.rel)
		assert.Equal(t, tt.entityType, et, tt.rel)
	}
}

func TestCompileErrorFormat(t *testing.T) {
	e := &CompileError{Code: ErrParse, Path: "m/a-World.grug", Line: 3, Col: 5, Message: "boom"}
	assert.Equal(t, "m/a-World.grug:3:5: [E102] boom", e.Error())

	e = FileError(ErrFileName, "m/a.grug", "bad %s", "name")
	assert.Equal(t, "m/a.grug: [E301] bad name", e.Error())
}
