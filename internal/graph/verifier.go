package graph

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// Verify checks the whole graph's shape consistency without touching tensor
// data: shapes are propagated through every node in id order and each
// operation's inference re-run. The builder already checks shapes eagerly,
// so Verify matters for graphs that arrived by deserialization or were
// rewritten by a pass. Returns the first *ShapeError found, or a structural
// error for inputs that do not precede their consumers.
func (g *Graph) Verify() error {
	shapes := make([]tensor.Shape, len(g.nodes))

	for id, n := range g.nodes {
		switch n.Kind {
		case KindInput, KindParam:
			if n.Tensor == nil {
				return fmt.Errorf("verify: node %d (%s): missing tensor", id, n.Kind)
			}
			if err := n.Tensor.Shape().Validate(); err != nil {
				return fmt.Errorf("verify: node %d (%s): %w", id, n.Kind, err)
			}
			shapes[id] = n.Tensor.Shape()

		case KindOp:
			inShapes := make([]tensor.Shape, len(n.Inputs))
			for i, in := range n.Inputs {
				if int(in) < 0 || int(in) >= id {
					return fmt.Errorf("verify: node %d (%s): input %d does not precede it", id, n.name(), in)
				}
				inShapes[i] = shapes[in]
			}
			out, err := n.Op.OutputShape(inShapes)
			if err != nil {
				return fmt.Errorf("verify: node %d: %w", id, err)
			}
			shapes[id] = out
		}
	}

	g.log.Debug("graph verified", "nodes", len(g.nodes))
	return nil
}
