package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func TestFromLua_Scalars(t *testing.T) {
	tests := []struct {
		in   lua.LValue
		want any
	}{
		{lua.LNil, nil},
		{lua.LTrue, true},
		{lua.LString("x"), "x"},
		{lua.LNumber(3), 3},
		{lua.LNumber(-2), -2},
		{lua.LNumber(1.25), 1.25},
	}
	for _, tt := range tests {
		got, err := fromLua(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFromLua_Tables(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	seq := L.NewTable()
	seq.Append(lua.LString("a"))
	seq.Append(lua.LString("b"))
	got, err := fromLua(seq)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	sparse := L.NewTable()
	sparse.RawSetInt(1, lua.LString("a"))
	sparse.RawSetInt(3, lua.LString("c"))
	got, err = fromLua(sparse)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": "a", "3": "c"}, got)

	empty := L.NewTable()
	got, err = fromLua(empty)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)
}

func TestFromLua_CyclicTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tbl := L.NewTable()
	tbl.RawSetString("self", tbl)
	_, err := fromLua(tbl)
	require.Error(t, err)
}

func TestToLua_TypedCollections(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	v := toLua(L, []map[string]any{{"id": int64(1)}})
	back, err := fromLua(v)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": 1}}, back)

	v = toLua(L, map[string]string{"k": "v"})
	back, err = fromLua(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, back)
}

func TestLimits_WithDefaults(t *testing.T) {
	l := Limits{RegistrySize: 100, RegistryMaxSize: 10}.withDefaults()
	assert.Equal(t, DefaultTimeout, l.Timeout)
	assert.Equal(t, DefaultCallStackSize, l.CallStackSize)
	assert.Equal(t, 100, l.RegistryMaxSize)
	assert.Equal(t, DefaultMaxSourceBytes, l.MaxSourceBytes)
	assert.Equal(t, int64(DefaultMaxMemoryBytes), l.MaxMemoryBytes)
}
