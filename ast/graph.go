package ast

import (
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/tarstars/tree_codegen/tcerr"
)

func (b *Builder) drawNode(g *cgraph.Graph, id NodeID, parent *cgraph.Node) error {
	node := b.Node(id)
	current, err := g.CreateNode(fmt.Sprint(id))
	if err != nil {
		return err
	}
	current.Set("label", b.dumpLine(node))
	if _, ok := node.Payload.(*Output); ok {
		current.Set("shape", "box")
	}
	if parent != nil {
		if _, err := g.CreateEdge("", parent, current); err != nil {
			return err
		}
	}
	for _, child := range node.Children {
		if err := b.drawNode(g, child, current); err != nil {
			return err
		}
	}
	return nil
}

//DrawGraph renders the AST as a graphviz graph, one graph node per AST node
//labeled with its dump line.
func (b *Builder) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph, error) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		return nil, nil, tcerr.Wrap(tcerr.KindIO, err, "can't create graphviz graph")
	}
	if err := b.drawNode(graph, b.root, nil); err != nil {
		return nil, nil, tcerr.Wrap(tcerr.KindIO, err, "can't populate graphviz graph")
	}
	return graphViz, graph, nil
}

//RenderGraph renders the AST into an image file. figureType is one of "png",
//"svg" and "jpg".
func (b *Builder) RenderGraph(figureType, filename string) error {
	format, ok := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]
	if !ok {
		return tcerr.Errorf(tcerr.KindInvalidParam, "unsupported figure type %q", figureType)
	}
	graphViz, graph, err := b.DrawGraph()
	if err != nil {
		return err
	}
	defer func() {
		graph.Close()
		graphViz.Close()
	}()
	return tcerr.Wrapf(tcerr.KindIO, graphViz.RenderFilename(graph, format, filename),
		"can't render AST graph to %s", filename)
}
