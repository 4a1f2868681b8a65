package graph

// FuseKernels rewrites ReLU(Add(a, b)) chains into the fused AddReLU(a, b)
// kernel and returns the number of rewrites. A chain is fused only when the
// ReLU is the Add's sole consumer; otherwise the Add's value is observable
// and must stay. The rewrite happens in place on the ReLU node, leaving the
// Add unreferenced — results are bit-identical to the unfused graph, only
// the number of kernel launches and intermediates changes.
//
// Call before Execute: rewritten nodes have their cached values dropped.
func (g *Graph) FuseKernels() int {
	consumers := make(map[NodeID]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, in := range n.Inputs {
			consumers[in]++
		}
	}

	fused := 0
	for id, n := range g.nodes {
		if n.Kind != KindOp || n.Op.Kind != OpReLU {
			continue
		}
		addID := n.Inputs[0]
		add := g.nodes[addID]
		if add.Kind != KindOp || add.Op.Kind != OpAdd || consumers[addID] != 1 {
			continue
		}

		n.Op = AddReLU()
		n.Inputs = append([]NodeID(nil), add.Inputs...)
		delete(g.values, NodeID(id))
		delete(g.values, addID)
		fused++

		g.log.Debug("fused kernel",
			"relu", id,
			"add", addID,
			"op", n.Op.Name())
	}

	return fused
}
