package diagram

// NodeKind classifies a diagram node by the step it draws.
type NodeKind string

const (
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
	NodeKindLoop      NodeKind = "loop"
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// Run statuses overlaid on nodes.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single step in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Status   string
	Children []*SubGraph // condition branches, loop body
}

// SubGraph holds the nested chain of a block prop.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// Edge connects two nodes in execution order.
type Edge struct {
	From  string
	To    string
	Label string
}
