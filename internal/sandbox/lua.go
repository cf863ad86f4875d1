package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/sinteflow/sinte/pkg/schema"
)

// HandlerFunc is the global a handler source must define.
const HandlerFunc = "handler"

// luaExclude lists base-library globals removed from every sandbox.
var luaExclude = [...]string{
	"dofile", "loadfile", "load", "loadstring", "print", "module",
	"collectgarbage", "getfenv", "setfenv", "_printregs", "newproxy",
}

var luaLibs = [...]struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// LuaSandbox runs one handler invocation in an isolated Lua state. Only the
// base, table, string and math libraries are available plus the capabilities
// given at construction. A LuaSandbox is single use.
type LuaSandbox struct {
	limits Limits
	caps   []Capability

	used      atomic.Bool
	violation string
	budget    memBudget
}

// NewLuaSandbox creates a sandbox with the given limits and capabilities.
// Zero limits fall back to DefaultLimits.
func NewLuaSandbox(limits Limits, caps []Capability) *LuaSandbox {
	limits = limits.withDefaults()
	return &LuaSandbox{limits: limits, caps: caps, budget: memBudget{limit: limits.MaxMemoryBytes}}
}

// RunHandler executes source, then calls its global handler(props) and
// returns the converted result.
func (s *LuaSandbox) RunHandler(ctx context.Context, source string, props map[string]any) (any, error) {
	if !s.used.CompareAndSwap(false, true) {
		return nil, schema.NewError(schema.ErrCodeExecution, "sandbox already used")
	}
	if len(source) > s.limits.MaxSourceBytes {
		return nil, schema.NewErrorf(schema.ErrCodeSandbox,
			"handler source is %d bytes, limit is %d", len(source), s.limits.MaxSourceBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeCancelled, "handler not started").WithCause(err)
	}

	if !s.budget.charge(valueSize(props)) {
		return nil, schema.NewError(schema.ErrCodeSandbox, s.memoryViolation()+" (props)")
	}

	runCtx, cancel := context.WithTimeout(ctx, s.limits.Timeout)
	defer cancel()

	L, err := s.newState(runCtx)
	if err != nil {
		return nil, err
	}
	defer L.Close()

	chunk, err := L.LoadString(source)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "handler does not compile: %s", errMessage(err)).
			WithCause(err)
	}
	if err := L.CallByParam(lua.P{Fn: chunk, NRet: 0, Protect: true}); err != nil {
		return nil, s.classify(ctx, runCtx, err)
	}

	fn, ok := L.GetGlobal(HandlerFunc).(*lua.LFunction)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"handler source does not define a global %s function", HandlerFunc)
	}

	arg := toLua(L, props)
	if props == nil {
		arg = L.NewTable()
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg); err != nil {
		return nil, s.classify(ctx, runCtx, err)
	}

	if s.violation != "" {
		return nil, schema.NewError(schema.ErrCodeSandbox, s.violation)
	}

	ret := L.Get(-1)
	L.Pop(1)

	out, err := fromLua(ret)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "handler result: %s", err.Error()).WithCause(err)
	}
	if !s.budget.charge(valueSize(out)) {
		return nil, schema.NewError(schema.ErrCodeSandbox, s.memoryViolation()+" (result)")
	}
	return out, nil
}

func (s *LuaSandbox) newState(runCtx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       s.limits.CallStackSize,
		RegistrySize:        s.limits.RegistrySize,
		RegistryMaxSize:     s.limits.RegistryMaxSize,
		MinimizeStackMemory: true,
	})

	for _, lib := range luaLibs {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true},
			lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua library %q: %w", lib.name, err)
		}
	}

	for _, name := range luaExclude {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("require", L.NewFunction(s.denyRequire))
	s.installBudgeted(L)

	for _, c := range s.caps {
		L.SetGlobal(c.Name(), L.NewFunction(s.capabilityFunc(runCtx, c)))
	}

	L.SetContext(runCtx)
	return L, nil
}

// denyRequire marks the run as a violation. The flag survives a pcall
// around require, so a caught import still fails the handler.
func (s *LuaSandbox) denyRequire(L *lua.LState) int {
	name := L.OptString(1, "")
	s.violation = fmt.Sprintf("module import %q is not allowed", name)
	L.RaiseError("%s", s.violation)
	return 0
}

func (s *LuaSandbox) capabilityFunc(runCtx context.Context, c Capability) lua.LGFunction {
	return func(L *lua.LState) int {
		top := L.GetTop()
		args := make([]any, 0, top)
		for i := 1; i <= top; i++ {
			v, err := fromLua(L.Get(i))
			if err != nil {
				L.ArgError(i, err.Error())
				return 0
			}
			args = append(args, v)
		}

		out, err := c.Call(runCtx, args)
		if err != nil {
			L.RaiseError("%s: %s", c.Name(), err.Error())
			return 0
		}
		s.chargeLua(L, valueSize(out))
		L.Push(toLua(L, out))
		return 1
	}
}

// classify maps a failed call to a SinteError code.
func (s *LuaSandbox) classify(ctx, runCtx context.Context, err error) error {
	switch {
	case s.violation != "":
		return schema.NewError(schema.ErrCodeSandbox, s.violation).WithCause(err)
	case ctx.Err() != nil:
		return schema.NewError(schema.ErrCodeCancelled, "handler cancelled").WithCause(ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return schema.NewErrorf(schema.ErrCodeTimeout, "handler exceeded %s", s.limits.Timeout).WithCause(err)
	case isOverflow(err):
		return schema.NewErrorf(schema.ErrCodeSandbox, "handler exceeded its stack limit: %s", errMessage(err)).WithCause(err)
	default:
		return schema.NewErrorf(schema.ErrCodeExecution, "handler failed: %s", errMessage(err)).WithCause(err)
	}
}

// isOverflow reports whether the Lua data or call stack hit its ceiling.
func isOverflow(err error) bool {
	msg := errMessage(err)
	return strings.Contains(msg, "registry overflow") || strings.Contains(msg, "stack overflow")
}

// errMessage returns the Lua error value without the stack trace.
func errMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}
