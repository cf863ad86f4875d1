package validation

import (
	"fmt"
	"regexp"

	"github.com/sinteflow/sinte/pkg/schema"
)

// stepRefPattern finds ctx.steps.<id> and steps["<id>"] style references in
// template sources of every dialect.
var stepRefPattern = regexp.MustCompile(`steps(?:\.([A-Za-z_][A-Za-z0-9_]*)|\[\s*["']([^"']+)["']\s*\])`)

// validateRefs warns about templates that read a step result which cannot
// exist yet when the template is resolved: steps are strictly sequential, so
// only ancestors and earlier siblings are visible.
func validateRefs(chain schema.Chain) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	walkRefs(chain, "steps", map[string]bool{}, result)
	return result
}

// walkRefs checks one chain scope and returns the ids it contributes to its
// enclosing scope.
func walkRefs(chain schema.Chain, path string, visible map[string]bool, result *schema.ValidationResult) []string {
	known := copySet(visible)
	declared := make(map[string]bool, len(chain))
	for _, s := range chain {
		declared[s.StepID()] = true
	}

	var produced []string
	for i, step := range chain {
		stepPath := fmt.Sprintf("%s[%d]", path, i)
		checkTemplates(step, stepPath, known, declared, result)

		ids := []string{step.StepID()}
		if cs, ok := step.(*schema.ControlStep); ok {
			switch cs.Kind {
			case schema.ControlLoop:
				if body, ok := cs.Props["actions"].Value.(schema.Chain); ok {
					walkRefs(body, stepPath+".props.actions", known, result)
				}
			case schema.ControlCondition:
				// The condition itself records nothing; its branch results merge here.
				ids = ids[:0]
				for _, branch := range []string{"then", "otherwise"} {
					if body, ok := cs.Props[branch].Value.(schema.Chain); ok {
						ids = append(ids, walkRefs(body, stepPath+".props."+branch, known, result)...)
					}
				}
			}
		}

		for _, id := range ids {
			known[id] = true
		}
		produced = append(produced, ids...)
	}
	return produced
}

func checkTemplates(step schema.Step, path string, known, declared map[string]bool, result *schema.ValidationResult) {
	props := step.StepProps()
	for _, name := range propNames(props) {
		spec := props[name]
		if spec.Type != schema.PropTemplate {
			continue
		}
		source, _ := spec.Value.(string)
		for _, m := range stepRefPattern.FindAllStringSubmatch(source, -1) {
			id := m[1]
			if id == "" {
				id = m[2]
			}
			if known[id] {
				continue
			}
			msg := fmt.Sprintf("template reads step %q, which is not declared before this step", id)
			if declared[id] {
				msg = fmt.Sprintf("template reads step %q before it has run", id)
			}
			result.AddWarning(path+".props."+name, step.StepID(), CodeForwardRef, msg)
		}
	}
}
