package engine

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/sinteflow/sinte/internal/logging"
	"github.com/sinteflow/sinte/pkg/schema"
)

// Control construct props.
const (
	LoopItemsProp   = "items"
	LoopKeyProp     = "key"
	LoopActionsProp = "actions"

	CondIfProp        = "if"
	CondThenProp      = "then"
	CondOtherwiseProp = "otherwise"
)

// runControl dispatches a control step to its construct. Each construct
// writes its own results into local.
func (e *Engine) runControl(ctx context.Context, step *schema.ControlStep, visible Context, local *Steps, input map[string]any, auth AuthMap) error {
	switch step.Kind {
	case schema.ControlLoop:
		return e.runLoop(ctx, step, visible, local, input, auth)
	case schema.ControlCondition:
		return e.runCondition(ctx, step, visible, local, input, auth)
	default:
		return schema.NewErrorf(schema.ErrCodeUnknownControl,
			"unknown control action %q under provider %q", step.Kind, schema.FlowProvider).WithStep(step.ID)
	}
}

// runLoop runs the actions block once per item, serially and in item order.
// Each iteration sees a copy of visible with key bound to the item and
// key_index to its position as a decimal string. local[step.id] receives one
// Steps per iteration. Missing or nil items run no iterations.
func (e *Engine) runLoop(ctx context.Context, step *schema.ControlStep, visible Context, local *Steps, input map[string]any, auth AuthMap) error {
	props, err := e.resolveProps(ctx, step, visible, input, auth)
	if err != nil {
		return err
	}

	items, ok := toSlice(props[LoopItemsProp])
	if !ok && props[LoopItemsProp] != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"loop %q must be a list, got %T", LoopItemsProp, props[LoopItemsProp]).WithStep(step.ID)
	}
	key, _ := props[LoopKeyProp].(string)
	if key == "" {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"loop %q must be a non-empty string", LoopKeyProp).WithStep(step.ID)
	}
	body, serr := blockProp(props, LoopActionsProp, false)
	if serr != nil {
		return serr.WithStep(step.ID)
	}

	iterations := make([]*Steps, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return schema.NewError(schema.ErrCodeCancelled, "loop cancelled").WithStep(step.ID).WithCause(err)
		}

		child := visible.With(key, item).With(key+IndexSuffix, strconv.Itoa(i))
		iterCtx := logging.WithChainPath(ctx, subPath(ctx, fmt.Sprintf("%s[%d]", step.ID, i)))

		res, err := e.RunChain(iterCtx, body, child, input, auth)
		if err != nil {
			return err
		}
		iterations = append(iterations, res.Local.Steps)
	}

	local.Set(step.ID, iterations)
	return nil
}

// runCondition runs then when if is truthy, otherwise when not, on a copy of
// visible. The branch's results merge into local unnamespaced.
func (e *Engine) runCondition(ctx context.Context, step *schema.ControlStep, visible Context, local *Steps, input map[string]any, auth AuthMap) error {
	props, err := e.resolveProps(ctx, step, visible, input, auth)
	if err != nil {
		return err
	}

	branch := CondOtherwiseProp
	if truthy(props[CondIfProp]) {
		branch = CondThenProp
	}
	body, serr := blockProp(props, branch, true)
	if serr != nil {
		return serr.WithStep(step.ID)
	}

	branchCtx := logging.WithChainPath(ctx, subPath(ctx, step.ID+"."+branch))
	res, err := e.RunChain(branchCtx, body, visible.Copy(), input, auth)
	if err != nil {
		return err
	}

	local.Merge(res.Local.Steps)
	return nil
}

// blockProp returns the chain held by a block prop. A missing prop is an
// empty chain when optional is set.
func blockProp(props map[string]any, name string, optional bool) (schema.Chain, *schema.SinteError) {
	v, present := props[name]
	if !present || v == nil {
		if optional {
			return schema.Chain{}, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "missing block prop %q", name)
	}
	chain, ok := v.(schema.Chain)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "prop %q must be a block, got %T", name, v)
	}
	return chain, nil
}

func subPath(ctx context.Context, segment string) string {
	if parent := logging.ChainPath(ctx); parent != "" {
		return parent + "/" + segment
	}
	return segment
}

// truthy reports whether v counts as true for condition.if: false, nil,
// zero and NaN numbers and "" are false. Collections are true even when
// empty.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.Slice, reflect.Map, reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}

// toSlice converts any list value to []any.
func toSlice(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
