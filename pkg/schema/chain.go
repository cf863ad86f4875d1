package schema

// FlowProvider is the provider name that selects a built-in control construct.
const FlowProvider = "flow"

// Chain is an ordered sequence of steps executed one after another.
type Chain []Step

// Step is one unit of work in a chain: an *ActionStep delegated to an
// integration handler, or a *ControlStep handled by the engine itself.
type Step interface {
	StepID() string
	StepProps() Props
	isStep()
}

// ActionStep delegates its work to the handler registered for Provider/Action.
type ActionStep struct {
	ID       string `json:"id" yaml:"id"`
	Provider string `json:"provider" yaml:"provider"`
	Action   string `json:"action" yaml:"action"`
	Props    Props  `json:"props,omitempty" yaml:"props,omitempty"`
}

// ControlStep is a built-in control construct (loop, condition).
type ControlStep struct {
	ID    string      `json:"id" yaml:"id"`
	Kind  ControlKind `json:"action" yaml:"action"`
	Props Props       `json:"props,omitempty" yaml:"props,omitempty"`
}

func (s *ActionStep) StepID() string   { return s.ID }
func (s *ActionStep) StepProps() Props { return s.Props }
func (*ActionStep) isStep()            {}

func (s *ControlStep) StepID() string   { return s.ID }
func (s *ControlStep) StepProps() Props { return s.Props }
func (*ControlStep) isStep()            {}

// ControlKind enumerates the built-in control constructs.
type ControlKind string

const (
	ControlLoop      ControlKind = "loop"
	ControlCondition ControlKind = "condition"
)

// Known reports whether k is one of the recognized control constructs.
func (k ControlKind) Known() bool {
	switch k {
	case ControlLoop, ControlCondition:
		return true
	default:
		return false
	}
}

// PropType selects how a prop value is resolved before dispatch.
type PropType string

const (
	PropLiteral  PropType = ""
	PropTemplate PropType = "template"
	PropBlock    PropType = "block"
)

// Props maps prop names to their declarations.
type Props map[string]PropSpec

// PropSpec declares a single prop. Template values are expression sources,
// block values are nested chains and literals pass through untouched.
// Lang optionally names the expression dialect of a template.
type PropSpec struct {
	Type  PropType `json:"type,omitempty" yaml:"type,omitempty"`
	Lang  string   `json:"lang,omitempty" yaml:"lang,omitempty"`
	Value any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Literal returns a PropSpec that passes v through unchanged.
func Literal(v any) PropSpec {
	return PropSpec{Value: v}
}

// Template returns a PropSpec evaluated as an expression in the default dialect.
func Template(source string) PropSpec {
	return PropSpec{Type: PropTemplate, Value: source}
}

// Block returns a PropSpec carrying a nested chain.
func Block(chain Chain) PropSpec {
	return PropSpec{Type: PropBlock, Value: chain}
}
