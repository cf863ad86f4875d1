package sandbox

import (
	"fmt"
	"math"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts a plain Go value into a Lua value. Unknown scalar types
// are passed as their string form.
func toLua(L *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return v
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int8:
		return lua.LNumber(v)
	case int16:
		return lua.LNumber(v)
	case int32:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint:
		return lua.LNumber(v)
	case uint8:
		return lua.LNumber(v)
	case uint16:
		return lua.LNumber(v)
	case uint32:
		return lua.LNumber(v)
	case uint64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case []any:
		tbl := L.CreateTable(len(v), 0)
		for i, item := range v {
			tbl.RawSetInt(i+1, toLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(v))
		for k, item := range v {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		tbl := L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			tbl.RawSetInt(i+1, toLua(L, rv.Index(i).Interface()))
		}
		return tbl
	case reflect.Map:
		tbl := L.CreateTable(0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			tbl.RawSetString(fmt.Sprint(iter.Key().Interface()), toLua(L, iter.Value().Interface()))
		}
		return tbl
	case reflect.Pointer:
		if rv.IsNil() {
			return lua.LNil
		}
		return toLua(L, rv.Elem().Interface())
	default:
		return lua.LString(fmt.Sprint(value))
	}
}

// fromLua converts a Lua value into a plain Go value. Integral numbers become
// int, tables whose keys are exactly 1..n become []any and any other table
// becomes map[string]any. Functions and userdata convert to nil.
func fromLua(value lua.LValue) (any, error) {
	return fromLuaSeen(value, map[*lua.LTable]bool{})
}

func fromLuaSeen(value lua.LValue, seen map[*lua.LTable]bool) (any, error) {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		return luaNumberToGo(v), nil
	case *lua.LTable:
		if seen[v] {
			return nil, fmt.Errorf("cannot convert a table that contains itself")
		}
		seen[v] = true
		defer delete(seen, v)
		return luaTableToGo(v, seen)
	default:
		return nil, nil
	}
}

func luaNumberToGo(n lua.LNumber) any {
	f := float64(n)
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

func luaTableToGo(tbl *lua.LTable, seen map[*lua.LTable]bool) (any, error) {
	count := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n := tbl.MaxN(); n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			item, err := fromLuaSeen(tbl.RawGetInt(i), seen)
			if err != nil {
				return nil, err
			}
			arr[i-1] = item
		}
		return arr, nil
	}

	out := make(map[string]any, count)
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		if num, ok := k.(lua.LNumber); ok {
			key = fmt.Sprint(luaNumberToGo(num))
		} else {
			key = k.String()
		}
		out[key], convErr = fromLuaSeen(v, seen)
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}
