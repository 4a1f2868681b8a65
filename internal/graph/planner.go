package graph

// MemoryPlan maps Op nodes to logical buffer indices so that intermediates
// with disjoint lifetimes share storage. Leaves own their tensors and never
// appear in the plan.
type MemoryPlan struct {
	Assignments map[NodeID]int
	NumBuffers  int
}

// PlanMemory runs a linear scan over an execution order. A node's value is
// live from its position to its last use as an input; the final node in the
// order uses its own value, so its buffer is never recycled within the run.
// Freed buffer indices are reused most-recently-freed first, which keeps the
// assignment deterministic for a given order.
func (g *Graph) PlanMemory(order []NodeID) (*MemoryPlan, error) {
	lastUse := make(map[NodeID]int, len(order))
	for i, id := range order {
		lastUse[id] = i
		for _, in := range g.nodes[id].Inputs {
			lastUse[in] = i
		}
	}

	type live struct {
		id  NodeID
		buf int
	}
	var active []live
	var free []int
	plan := &MemoryPlan{Assignments: make(map[NodeID]int)}

	for i, id := range order {
		// Release buffers dead strictly before this position; a node's
		// inputs stay live while its kernel runs, so an in-place output
		// can never alias a still-needed operand.
		kept := active[:0]
		for _, a := range active {
			if lastUse[a.id] < i {
				free = append(free, a.buf)
			} else {
				kept = append(kept, a)
			}
		}
		active = kept

		if g.nodes[id].Kind != KindOp {
			continue
		}

		var buf int
		if len(free) > 0 {
			buf = free[len(free)-1]
			free = free[:len(free)-1]
		} else {
			buf = plan.NumBuffers
			plan.NumBuffers++
		}
		plan.Assignments[id] = buf
		active = append(active, live{id: id, buf: buf})
	}

	g.log.Debug("memory plan",
		"nodes", len(order),
		"op_nodes", len(plan.Assignments),
		"buffers", plan.NumBuffers)

	return plan, nil
}
