package forest

import (
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// Graph returns the nodes still held by the forest as a directed graph keyed
// by block hash, with edges running from parent to child.
func (f *Forest) Graph() (graph.Graph[string, *BranchNode], error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	g := graph.New(func(bn *BranchNode) string { return bn.Hash.Hex() }, graph.Directed(), graph.Acyclic())

	for _, node := range f.nodes {
		_, leaf := f.frontier[node.ID]

		attrs := []func(*graph.VertexProperties){
			graph.VertexAttribute("label", fmt.Sprintf("%s\\nheight %d", node.Hash.TerminalString(), node.Height)),
		}
		if leaf {
			attrs = append(attrs, graph.VertexAttribute("shape", "box"))
		}

		if err := g.AddVertex(node, attrs...); err != nil {
			return nil, fmt.Errorf("adding node %s: %w", node.Hash.TerminalString(), err)
		}
	}

	for _, node := range f.nodes {
		parent, exists := f.nodes[node.ParentID]
		if !exists {
			continue
		}

		if err := g.AddEdge(parent.Hash.Hex(), node.Hash.Hex()); err != nil {
			return nil, fmt.Errorf("linking %s to %s: %w", parent.Hash.TerminalString(), node.Hash.TerminalString(), err)
		}
	}

	return g, nil
}

// WriteDOT renders the forest in the DOT language.
func (f *Forest) WriteDOT(w io.Writer) error {
	g, err := f.Graph()
	if err != nil {
		return err
	}

	return draw.DOT(g, w)
}
