package sandbox

import (
	"fmt"
	"math"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// Per-value overheads charged for containers, in bytes.
const (
	entryOverhead  = 16
	scalarOverhead = 8
)

// memBudget counts the bytes a handler materializes through the budgeted
// built-ins, its props, capability results and its own result. A state
// runs on one goroutine, so no locking is needed.
type memBudget struct {
	limit int64
	used  int64
}

// charge adds n bytes and reports whether the budget still holds. Once
// spent, the budget stays spent.
func (b *memBudget) charge(n int64) bool {
	if n > b.limit-b.used {
		b.used = b.limit + 1
		return false
	}
	b.used += n
	return true
}

func (s *LuaSandbox) memoryViolation() string {
	return fmt.Sprintf("handler exceeded its memory limit of %d bytes", s.limits.MaxMemoryBytes)
}

// chargeLua charges n bytes from inside a Lua call and raises a violation
// once the budget is spent. The violation flag survives a pcall.
func (s *LuaSandbox) chargeLua(L *lua.LState, n int64) {
	if s.budget.charge(n) {
		return
	}
	s.violation = s.memoryViolation()
	L.RaiseError("%s", s.violation)
}

// budgetedBuiltins replaces string-producing library functions with wrappers
// that charge their output. string.rep is charged before it allocates.
var budgetedBuiltins = [...]struct {
	lib, name string
	estimate  func(L *lua.LState) int64
}{
	{lua.StringLibName, "rep", estimateRep},
	{lua.StringLibName, "format", nil},
	{lua.StringLibName, "gsub", nil},
	{lua.StringLibName, "upper", nil},
	{lua.StringLibName, "lower", nil},
	{lua.StringLibName, "reverse", nil},
	{lua.TabLibName, "concat", nil},
}

func (s *LuaSandbox) installBudgeted(L *lua.LState) {
	for _, b := range budgetedBuiltins {
		lib, ok := L.GetGlobal(b.lib).(*lua.LTable)
		if !ok {
			continue
		}
		orig, ok := lib.RawGetString(b.name).(*lua.LFunction)
		if !ok {
			continue
		}
		lib.RawSetString(b.name, L.NewFunction(s.budgeted(orig, b.estimate)))
	}
}

// budgeted calls orig with the caller's arguments. With an estimate the
// cost is charged up front; otherwise every string result is charged.
func (s *LuaSandbox) budgeted(orig *lua.LFunction, estimate func(L *lua.LState) int64) lua.LGFunction {
	return func(L *lua.LState) int {
		top := L.GetTop()
		if estimate != nil {
			s.chargeLua(L, estimate(L))
		}

		L.Push(orig)
		for i := 1; i <= top; i++ {
			L.Push(L.Get(i))
		}
		L.Call(top, lua.MultRet)

		n := L.GetTop() - top
		if estimate == nil {
			for i := top + 1; i <= L.GetTop(); i++ {
				if str, ok := L.Get(i).(lua.LString); ok {
					s.chargeLua(L, int64(len(str)))
				}
			}
		}
		return n
	}
}

// estimateRep sizes string.rep(s, n) without building it.
func estimateRep(L *lua.LState) int64 {
	n := int64(L.CheckInt(2))
	if n <= 0 {
		return 0
	}
	size := int64(len(L.CheckString(1)))
	if size > 0 && n > math.MaxInt64/size {
		return math.MaxInt64
	}
	return size * n
}

// valueSize approximates the bytes held by a plain Go value.
func valueSize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	case []any:
		n := int64(entryOverhead * len(x))
		for _, item := range x {
			n += valueSize(item)
		}
		return n
	case map[string]any:
		n := int64(entryOverhead * len(x))
		for k, item := range x {
			n += int64(len(k)) + valueSize(item)
		}
		return n
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return int64(rv.Len())
	case reflect.Slice, reflect.Array:
		n := int64(entryOverhead * rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n += valueSize(rv.Index(i).Interface())
		}
		return n
	case reflect.Map:
		n := int64(entryOverhead * rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n += valueSize(iter.Key().Interface()) + valueSize(iter.Value().Interface())
		}
		return n
	case reflect.Pointer:
		if rv.IsNil() {
			return 0
		}
		return valueSize(rv.Elem().Interface())
	default:
		return scalarOverhead
	}
}
