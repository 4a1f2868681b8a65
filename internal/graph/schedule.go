package graph

// topologicalOrder returns the node ids that must execute, in dependency
// order, to produce target. The traversal is an iterative DFS with an
// explicit stack: each node is pushed twice, first to expand its inputs and
// then to emit it once they are all placed. Nodes seen while still on the
// traversal path indicate a cycle, which cannot arise through the builder
// API but is checked so corrupted or hand-edited graphs fail loudly instead
// of hanging.
func (g *Graph) topologicalOrder(target NodeID) ([]NodeID, error) {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[NodeID]int, len(g.nodes))
	order := make([]NodeID, 0, len(g.nodes))

	type frame struct {
		id     NodeID
		expand bool
	}
	stack := []frame{{id: target, expand: true}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !f.expand {
			state[f.id] = done
			order = append(order, f.id)
			continue
		}

		switch state[f.id] {
		case done:
			continue
		case onStack:
			return nil, &CycleError{Node: f.id}
		}
		state[f.id] = onStack

		stack = append(stack, frame{id: f.id})
		node := g.nodes[f.id]
		// Inputs pushed in reverse so they pop in declaration order.
		for i := len(node.Inputs) - 1; i >= 0; i-- {
			in := node.Inputs[i]
			switch state[in] {
			case onStack:
				return nil, &CycleError{Node: in}
			case unvisited:
				stack = append(stack, frame{id: in, expand: true})
			}
		}
	}

	return order, nil
}
