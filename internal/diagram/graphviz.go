package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// ImageFormat selects the graphviz output encoding.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
	FormatDOT ImageFormat = "dot"
)

func (f ImageFormat) graphviz() (graphviz.Format, error) {
	switch f {
	case FormatPNG, "":
		return graphviz.PNG, nil
	case FormatSVG:
		return graphviz.SVG, nil
	case FormatDOT:
		return graphviz.XDOT, nil
	default:
		return "", fmt.Errorf("diagram: unsupported image format %q", f)
	}
}

// RenderImage lays out a DiagramModel with graphviz and encodes it in format.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gvFormat, err := format.graphviz()
	if err != nil {
		return nil, err
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		addEdge(graph, gvNodes, edge)
	}

	for _, node := range model.Nodes {
		if err := addClusters(graph, gvNodes, node); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// addClusters draws each block of node as a dashed cluster, recursing into
// nested control steps, and links node to the first step of every block.
func addClusters(graph *cgraph.Graph, gvNodes map[string]*cgraph.Node, node *Node) error {
	for _, sg := range node.Children {
		clusterName := "cluster_" + node.ID + "_" + sg.Label
		sub, err := graph.CreateSubGraphByName(clusterName)
		if err != nil {
			return fmt.Errorf("diagram: create cluster %s: %w", clusterName, err)
		}
		sub.SetLabel(sg.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)

		for _, subNode := range sg.Nodes {
			gvSub, nErr := sub.CreateNodeByName(subNode.ID)
			if nErr != nil {
				return fmt.Errorf("diagram: create node %s: %w", subNode.ID, nErr)
			}
			gvSub.SetLabel(subNode.Label)
			applyNodeStyle(gvSub, subNode)
			gvNodes[subNode.ID] = gvSub
		}
		for _, edge := range sg.Edges {
			addEdge(graph, gvNodes, edge)
		}
		if len(sg.Nodes) > 0 {
			addEdge(graph, gvNodes, Edge{From: node.ID, To: sg.Nodes[0].ID, Label: sg.Label})
		}
		for _, subNode := range sg.Nodes {
			if err := addClusters(graph, gvNodes, subNode); err != nil {
				return err
			}
		}
	}
	return nil
}

func addEdge(graph *cgraph.Graph, gvNodes map[string]*cgraph.Node, edge Edge) {
	from, to := gvNodes[edge.From], gvNodes[edge.To]
	if from == nil || to == nil {
		return
	}
	e, err := graph.CreateEdgeByName("", from, to)
	if err == nil && edge.Label != "" {
		e.SetLabel(edge.Label)
	}
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindAction:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindCondition:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindLoop:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	}

	if node.Status != "" {
		applyStatusColor(gvNode, node.Status)
	}
}

func applyStatusColor(gvNode *cgraph.Node, status string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch status {
	case StatusCompleted:
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case StatusFailed:
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case StatusSkipped:
		gvNode.SetFillColor("#e8e8e8")
		gvNode.SetFontColor("#888888")
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	}
}
