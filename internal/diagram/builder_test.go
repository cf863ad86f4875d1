package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinteflow/sinte/internal/engine"
	"github.com/sinteflow/sinte/pkg/schema"
)

// --- Test chain builders ---

func linearChain() schema.Chain {
	return schema.Chain{
		&schema.ActionStep{ID: "fetch", Provider: "http", Action: "get"},
		&schema.ActionStep{ID: "transform", Provider: "data", Action: "map"},
		&schema.ActionStep{ID: "store", Provider: "db", Action: "write"},
	}
}

func conditionChain() schema.Chain {
	return schema.Chain{
		&schema.ActionStep{ID: "check", Provider: "http", Action: "get"},
		&schema.ControlStep{ID: "decide", Kind: schema.ControlCondition, Props: schema.Props{
			"if": schema.Template("ctx.steps.check.ok"),
			"then": schema.Block(schema.Chain{
				&schema.ActionStep{ID: "deploy", Provider: "shell", Action: "exec"},
			}),
			"otherwise": schema.Block(schema.Chain{
				&schema.ActionStep{ID: "notify", Provider: "chat", Action: "send"},
			}),
		}},
	}
}

func loopChain() schema.Chain {
	return schema.Chain{
		&schema.ControlStep{ID: "each", Kind: schema.ControlLoop, Props: schema.Props{
			"items": schema.Template("input.items"),
			"key":   schema.Literal("item"),
			"actions": schema.Block(schema.Chain{
				&schema.ActionStep{ID: "process", Provider: "test", Action: "log"},
				&schema.ControlStep{ID: "inner", Kind: schema.ControlCondition, Props: schema.Props{
					"if":   schema.Template("ctx.item.ok"),
					"then": schema.Block(schema.Chain{&schema.ActionStep{ID: "mark", Provider: "test", Action: "log"}}),
				}},
			}),
		}},
	}
}

func TestBuildLinear(t *testing.T) {
	model := Build("ETL Pipeline", linearChain(), nil)

	assert.Equal(t, "ETL Pipeline", model.Title)
	require.Len(t, model.Nodes, 5)
	assert.Equal(t, NodeKindStart, model.Nodes[0].Kind)
	assert.Equal(t, NodeKindEnd, model.Nodes[4].Kind)
	assert.Equal(t, "fetch\n(http.get)", model.Nodes[1].Label)

	assert.Equal(t, []Edge{
		{From: startID, To: "fetch"},
		{From: "fetch", To: "transform"},
		{From: "transform", To: "store"},
		{From: "store", To: endID},
	}, model.Edges)
	assert.Equal(t, [][]string{{startID}, {"fetch"}, {"transform"}, {"store"}, {endID}}, model.Levels)
}

func TestBuildEmptyChain(t *testing.T) {
	model := Build("", nil, nil)

	assert.Equal(t, "Chain", model.Title)
	require.Len(t, model.Nodes, 2)
	assert.Equal(t, []Edge{{From: startID, To: endID}}, model.Edges)
}

func TestBuildCondition(t *testing.T) {
	model := Build("", conditionChain(), nil)

	decide := findNode(model.Nodes, "decide")
	require.NotNil(t, decide)
	assert.Equal(t, NodeKindCondition, decide.Kind)
	assert.Equal(t, "decide\n(condition if: ctx.steps.check.ok)", decide.Label)

	require.Len(t, decide.Children, 2)
	assert.Equal(t, "then", decide.Children[0].Label)
	assert.Equal(t, "otherwise", decide.Children[1].Label)
	require.Len(t, decide.Children[0].Nodes, 1)
	assert.Equal(t, "decide.then.deploy", decide.Children[0].Nodes[0].ID)
	assert.Equal(t, "deploy (shell.exec)", decide.Children[0].Nodes[0].Label)
}

func TestBuildLoopNested(t *testing.T) {
	model := Build("", loopChain(), nil)

	each := findNode(model.Nodes, "each")
	require.NotNil(t, each)
	assert.Equal(t, NodeKindLoop, each.Kind)
	require.Len(t, each.Children, 1)

	body := each.Children[0]
	assert.Equal(t, "actions", body.Label)
	require.Len(t, body.Nodes, 2)
	assert.Equal(t, []Edge{{From: "each.actions.process", To: "each.actions.inner"}}, body.Edges)

	inner := body.Nodes[1]
	require.Len(t, inner.Children, 1, "missing otherwise is not drawn")
	assert.Equal(t, "each.actions.inner.then.mark", inner.Children[0].Nodes[0].ID)
}

func TestBuildDuplicateIDs(t *testing.T) {
	chain := schema.Chain{
		&schema.ActionStep{ID: "a", Provider: "p", Action: "x"},
		&schema.ActionStep{ID: "a", Provider: "p", Action: "y"},
	}

	model := Build("", chain, nil)

	require.Len(t, model.Nodes, 4)
	assert.Equal(t, "a", model.Nodes[1].ID)
	assert.Equal(t, "a_1", model.Nodes[2].ID)
}

func TestRunStatusesSuccess(t *testing.T) {
	local := engine.NewSteps()
	local.Set("check", map[string]any{"ok": false})
	local.Set("notify", "sent")

	statuses := RunStatuses(conditionChain(), &engine.Result{Local: engine.LocalContext{Steps: local}}, nil)

	assert.Equal(t, map[string]string{
		"check":  StatusCompleted,
		"decide": StatusCompleted,
		"deploy": StatusSkipped,
		"notify": StatusCompleted,
	}, statuses)
}

func TestRunStatusesLoopIterations(t *testing.T) {
	iter := engine.NewSteps()
	iter.Set("process", true)
	local := engine.NewSteps()
	local.Set("each", []*engine.Steps{iter})

	statuses := RunStatuses(loopChain(), &engine.Result{Local: engine.LocalContext{Steps: local}}, nil)

	assert.Equal(t, StatusCompleted, statuses["each"])
	assert.Equal(t, StatusCompleted, statuses["process"])
	assert.Equal(t, StatusCompleted, statuses["inner"])
	assert.Equal(t, StatusSkipped, statuses["mark"])
}

func TestRunStatusesEmptyLoop(t *testing.T) {
	local := engine.NewSteps()
	local.Set("each", []*engine.Steps{})

	statuses := RunStatuses(loopChain(), &engine.Result{Local: engine.LocalContext{Steps: local}}, nil)

	assert.Equal(t, StatusCompleted, statuses["each"])
	assert.Equal(t, StatusSkipped, statuses["process"])
	assert.Equal(t, StatusSkipped, statuses["inner"])
}

func TestRunStatusesFailure(t *testing.T) {
	runErr := schema.NewError(schema.ErrCodeExecution, "boom").WithStep("deploy")

	statuses := RunStatuses(conditionChain(), nil, runErr)

	assert.Equal(t, map[string]string{"deploy": StatusFailed}, statuses)
}

func TestBuildWithStatuses(t *testing.T) {
	model := Build("", conditionChain(), map[string]string{"check": StatusCompleted, "deploy": StatusFailed})

	assert.Equal(t, StatusCompleted, findNode(model.Nodes, "check").Status)
	decide := findNode(model.Nodes, "decide")
	assert.Equal(t, "", decide.Status)
	assert.Equal(t, StatusFailed, decide.Children[0].Nodes[0].Status)
}
