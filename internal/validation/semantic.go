package validation

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/sinteflow/sinte/pkg/schema"
)

// Issue codes for findings that have no runtime error code of their own.
const (
	CodeDuplicateStep = "DUPLICATE_STEP_ID"
	CodeShadowedStep  = "SHADOWED_STEP_ID"
	CodeUnusedProp    = "UNUSED_PROP"
	CodeForwardRef    = "FORWARD_REFERENCE"
)

// HandlerLookup reports whether a handler is registered for provider/action.
type HandlerLookup interface {
	Has(provider, action string) bool
}

var controlProps = map[schema.ControlKind][]string{
	schema.ControlLoop:      {"items", "key", "actions"},
	schema.ControlCondition: {"if", "then", "otherwise"},
}

// semanticChecker walks a parsed chain and records what the engine would
// reject at run time, plus warnings for legal but suspicious shapes.
type semanticChecker struct {
	lookup    HandlerLookup
	languages map[string]bool
	result    *schema.ValidationResult
}

func validateSemantic(chain schema.Chain, lookup HandlerLookup, languages []string) *schema.ValidationResult {
	c := &semanticChecker{lookup: lookup, result: &schema.ValidationResult{}}
	if len(languages) > 0 {
		c.languages = make(map[string]bool, len(languages))
		for _, l := range languages {
			c.languages[l] = true
		}
	}
	c.checkChain(chain, "steps", nil)
	return c.result
}

// checkChain checks one chain scope. outer holds the ids a condition branch
// would overwrite when its results merge into the enclosing scope; it is nil
// for scopes that are namespaced (top level, loop bodies).
func (c *semanticChecker) checkChain(chain schema.Chain, path string, outer map[string]bool) {
	seen := make(map[string]bool, len(chain))
	for i, step := range chain {
		stepPath := fmt.Sprintf("%s[%d]", path, i)
		id := step.StepID()

		if seen[id] {
			c.result.AddWarning(stepPath, id, CodeDuplicateStep,
				fmt.Sprintf("step id %q is used more than once; the later result replaces the earlier one", id))
		}
		if outer[id] {
			c.result.AddWarning(stepPath, id, CodeShadowedStep,
				fmt.Sprintf("step %q inside a condition branch overwrites the enclosing step with the same id", id))
		}
		seen[id] = true

		c.checkProps(step, stepPath)

		switch s := step.(type) {
		case *schema.ActionStep:
			c.checkAction(s, stepPath)
		case *schema.ControlStep:
			c.checkControl(s, stepPath, seen)
		}
	}
}

func (c *semanticChecker) checkProps(step schema.Step, path string) {
	props := step.StepProps()
	for _, name := range propNames(props) {
		spec := props[name]
		if spec.Type != schema.PropTemplate || c.languages == nil || spec.Lang == "" {
			continue
		}
		if !c.languages[spec.Lang] {
			c.result.AddError(path+".props."+name, step.StepID(), schema.ErrCodeExpression,
				fmt.Sprintf("unknown template language %q", spec.Lang))
		}
	}
}

func (c *semanticChecker) checkAction(step *schema.ActionStep, path string) {
	if c.lookup == nil {
		return
	}
	if !c.lookup.Has(step.Provider, step.Action) {
		c.result.AddError(path, step.ID, schema.ErrCodeResolution,
			fmt.Sprintf("no handler registered for %s/%s", step.Provider, step.Action))
	}
}

func (c *semanticChecker) checkControl(step *schema.ControlStep, path string, scope map[string]bool) {
	known, ok := controlProps[step.Kind]
	if !ok {
		c.result.AddError(path+".action", step.ID, schema.ErrCodeUnknownControl,
			fmt.Sprintf("unknown control action %q under provider %q", step.Kind, schema.FlowProvider))
		return
	}
	for _, name := range propNames(step.Props) {
		if !contains(known, name) {
			c.result.AddWarning(path+".props."+name, step.ID, CodeUnusedProp,
				fmt.Sprintf("%s ignores prop %q", step.Kind, name))
		}
	}

	switch step.Kind {
	case schema.ControlLoop:
		c.checkLoop(step, path)
	case schema.ControlCondition:
		c.checkCondition(step, path, scope)
	}
}

func (c *semanticChecker) checkLoop(step *schema.ControlStep, path string) {
	items, ok := step.Props["items"]
	switch {
	case !ok:
		c.result.AddWarning(path+".props.items", step.ID, schema.ErrCodeValidation, "loop has no items prop and will run no iterations")
	case items.Type == schema.PropBlock:
		c.result.AddError(path+".props.items", step.ID, schema.ErrCodeValidation, "loop items cannot be a block")
	case items.Type == schema.PropLiteral:
		if items.Value != nil && !isList(items.Value) {
			c.result.AddError(path+".props.items", step.ID, schema.ErrCodeValidation,
				fmt.Sprintf("loop items must be a list, got %T", items.Value))
		}
	}

	key, ok := step.Props["key"]
	switch {
	case !ok:
		c.result.AddError(path+".props.key", step.ID, schema.ErrCodeValidation, "loop requires a key prop")
	case key.Type == schema.PropBlock:
		c.result.AddError(path+".props.key", step.ID, schema.ErrCodeValidation, "loop key cannot be a block")
	case key.Type == schema.PropLiteral:
		if s, _ := key.Value.(string); s == "" {
			c.result.AddError(path+".props.key", step.ID, schema.ErrCodeValidation,
				"loop key must be a non-empty string")
		}
	}

	body, ok := step.Props["actions"]
	if !ok || body.Type != schema.PropBlock {
		c.result.AddError(path+".props.actions", step.ID, schema.ErrCodeValidation,
			"loop requires an actions block")
		return
	}
	if chain, ok := body.Value.(schema.Chain); ok {
		c.checkChain(chain, path+".props.actions", nil)
	}
}

func (c *semanticChecker) checkCondition(step *schema.ControlStep, path string, scope map[string]bool) {
	if _, ok := step.Props["if"]; !ok {
		c.result.AddWarning(path+".props.if", step.ID, schema.ErrCodeValidation,
			"condition has no if prop; only the otherwise branch can run")
	}

	for _, branch := range []string{"then", "otherwise"} {
		spec, ok := step.Props[branch]
		if !ok {
			continue
		}
		if spec.Type != schema.PropBlock {
			c.result.AddError(path+".props."+branch, step.ID, schema.ErrCodeValidation,
				fmt.Sprintf("condition %s must be a block", branch))
			continue
		}
		if chain, ok := spec.Value.(schema.Chain); ok {
			c.checkChain(chain, path+".props."+branch, copySet(scope))
		}
	}

	// Both branches merge into the enclosing scope.
	for _, branch := range []string{"then", "otherwise"} {
		if chain, ok := step.Props[branch].Value.(schema.Chain); ok {
			for _, s := range chain {
				scope[s.StepID()] = true
			}
		}
	}
}

func propNames(props schema.Props) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copySet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
