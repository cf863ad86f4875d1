package diagram

import (
	"errors"
	"fmt"

	"github.com/sinteflow/sinte/internal/engine"
	"github.com/sinteflow/sinte/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// Build constructs a DiagramModel from a chain. Steps run in declaration
// order, so the top level is a single path from start to end with one step
// per level. Control steps get a SubGraph per block prop. statuses is
// optional and keyed by step ID (see RunStatuses).
func Build(title string, chain schema.Chain, statuses map[string]string) *DiagramModel {
	if title == "" {
		title = "Chain"
	}

	nodes := make([]*Node, 0, len(chain)+2)
	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})

	levels := make([][]string, 0, len(chain)+2)
	levels = append(levels, []string{startID})

	ids := make([]string, 0, len(chain)+2)
	ids = append(ids, startID)

	seen := make(map[string]bool, len(chain))
	for i, step := range chain {
		id := nodeID(step.StepID(), i, seen)
		node := stepToNode(id, step, statuses)
		nodes = append(nodes, node)
		levels = append(levels, []string{id})
		ids = append(ids, id)
	}

	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})
	levels = append(levels, []string{endID})
	ids = append(ids, endID)

	return &DiagramModel{
		Title:  title,
		Nodes:  nodes,
		Edges:  sequence(ids),
		Levels: levels,
	}
}

// nodeID keeps duplicate step IDs apart: a repeated ID is suffixed with its
// position so each declaration gets its own node.
func nodeID(id string, pos int, seen map[string]bool) string {
	if id == "" || seen[id] {
		id = fmt.Sprintf("%s_%d", id, pos)
	}
	seen[id] = true
	return id
}

func stepToNode(id string, step schema.Step, statuses map[string]string) *Node {
	node := &Node{ID: id, Status: statuses[step.StepID()]}

	switch s := step.(type) {
	case *schema.ActionStep:
		node.Kind = NodeKindAction
		node.Label = fmt.Sprintf("%s\n(%s.%s)", s.ID, s.Provider, s.Action)
	case *schema.ControlStep:
		node.Label = controlLabel(s)
		switch s.Kind {
		case schema.ControlLoop:
			node.Kind = NodeKindLoop
			node.Children = blockChildren(id, s, statuses, engine.LoopActionsProp)
		case schema.ControlCondition:
			node.Kind = NodeKindCondition
			node.Children = blockChildren(id, s, statuses, engine.CondThenProp, engine.CondOtherwiseProp)
		default:
			node.Kind = NodeKindAction
		}
	}
	return node
}

// controlLabel names the control step and, when the driving prop is a
// template, shows its source.
func controlLabel(s *schema.ControlStep) string {
	driver := engine.LoopItemsProp
	if s.Kind == schema.ControlCondition {
		driver = engine.CondIfProp
	}
	if p, ok := s.Props[driver]; ok && p.Type == schema.PropTemplate {
		return fmt.Sprintf("%s\n(%s %s: %v)", s.ID, s.Kind, driver, p.Value)
	}
	return fmt.Sprintf("%s\n(%s)", s.ID, s.Kind)
}

// blockChildren builds one SubGraph per named block prop, in the order given.
// Missing or non-block props are skipped.
func blockChildren(parentID string, s *schema.ControlStep, statuses map[string]string, names ...string) []*SubGraph {
	var out []*SubGraph
	for _, name := range names {
		p, ok := s.Props[name]
		if !ok || p.Type != schema.PropBlock {
			continue
		}
		chain, _ := p.Value.(schema.Chain)
		out = append(out, buildSubGraph(name, parentID, chain, statuses))
	}
	return out
}

// buildSubGraph creates a SubGraph for a nested chain. Sub-step IDs are
// qualified as parentID.block.stepID so they stay unique in the diagram.
func buildSubGraph(label, parentID string, chain schema.Chain, statuses map[string]string) *SubGraph {
	sg := &SubGraph{Label: label}
	ids := make([]string, 0, len(chain))
	seen := make(map[string]bool, len(chain))

	for i, step := range chain {
		qualifiedID := fmt.Sprintf("%s.%s.%s", parentID, label, nodeID(step.StepID(), i, seen))
		node := stepToNode(qualifiedID, step, statuses)
		node.Label = subNodeLabel(node.Label)
		sg.Nodes = append(sg.Nodes, node)
		ids = append(ids, qualifiedID)
	}
	sg.Edges = sequence(ids)
	return sg
}

// subNodeLabel flattens a two-line label onto one line.
func subNodeLabel(label string) string {
	if first := firstLine(label); first != label {
		return first + " " + label[len(first)+1:]
	}
	return label
}

// sequence links ids in order.
func sequence(ids []string) []Edge {
	if len(ids) < 2 {
		return nil
	}
	edges := make([]Edge, 0, len(ids)-1)
	for i := 1; i < len(ids); i++ {
		edges = append(edges, Edge{From: ids[i-1], To: ids[i]})
	}
	return edges
}

// RunStatuses derives node statuses from the outcome of a run of chain. On
// success every top-level step is completed, and a nested block counts as
// run when any of its steps recorded a result; steps of blocks that did not
// run (an untaken branch, a loop over no items) are skipped. On failure only
// the failing step is known and is marked failed.
func RunStatuses(chain schema.Chain, res *engine.Result, runErr error) map[string]string {
	statuses := make(map[string]string)

	if runErr != nil {
		var se *schema.SinteError
		if errors.As(runErr, &se) && se.StepID != "" {
			statuses[se.StepID] = StatusFailed
		}
		return statuses
	}
	if res == nil {
		return statuses
	}

	recorded := make(map[string]bool)
	collectRecorded(res.Local.Steps, recorded)
	markChain(chain, true, recorded, statuses)
	return statuses
}

func collectRecorded(steps *engine.Steps, recorded map[string]bool) {
	for _, id := range steps.Keys() {
		recorded[id] = true
		v, _ := steps.Get(id)
		if iterations, ok := v.([]*engine.Steps); ok {
			for _, it := range iterations {
				collectRecorded(it, recorded)
			}
		}
	}
}

func markChain(chain schema.Chain, ran bool, recorded map[string]bool, statuses map[string]string) {
	for _, step := range chain {
		status := StatusSkipped
		if ran {
			status = StatusCompleted
		}
		if _, ok := statuses[step.StepID()]; !ok {
			statuses[step.StepID()] = status
		}
		for _, p := range step.StepProps() {
			if nested, ok := p.Value.(schema.Chain); ok && p.Type == schema.PropBlock {
				markChain(nested, ran && anyRecorded(nested, recorded), recorded, statuses)
			}
		}
	}
}

func anyRecorded(chain schema.Chain, recorded map[string]bool) bool {
	for _, step := range chain {
		if recorded[step.StepID()] {
			return true
		}
		for _, p := range step.StepProps() {
			if nested, ok := p.Value.(schema.Chain); ok && p.Type == schema.PropBlock && anyRecorded(nested, recorded) {
				return true
			}
		}
	}
	return false
}
