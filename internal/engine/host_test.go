package engine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonlambda/grug-sys/internal/schema"
	"github.com/lemonlambda/grug-sys/internal/testutil"
)

func TestStubHostFunctions(t *testing.T) {
	s, err := schema.Parse("mod_api.json", []byte(testutil.ModAPI))
	require.NoError(t, err)

	var seen []string
	var seenArgs [][]any
	fns := StubHostFunctions(s, func(name string, args []any) {
		seen = append(seen, name)
		seenArgs = append(seenArgs, args)
	})
	require.Len(t, fns, 2)

	for _, fn := range s.HostFunctions() {
		assert.Equal(t, fn.GoSignature(), reflect.TypeOf(fns[fn.Name]).String())
	}

	say, ok := fns["println"].(func(string))
	require.True(t, ok)
	say("hi")

	health, ok := fns["get_health"].(func(uint64) int32)
	require.True(t, ok)
	assert.Equal(t, int32(0), health(7))

	assert.Equal(t, []string{"println", "get_health"}, seen)
	assert.Equal(t, [][]any{{"hi"}, {uint64(7)}}, seenArgs)
}

func TestStubHostFunctionsWithoutObserver(t *testing.T) {
	s, err := schema.Parse("mod_api.json", []byte(testutil.ModAPI))
	require.NoError(t, err)

	fns := StubHostFunctions(s, nil)
	assert.NotPanics(t, func() { fns["println"].(func(string))("quiet") })
}
