package graph

import (
	"fmt"
	"log/slog"

	"github.com/loom-ml/loom/internal/tensor"
)

// Graph is a dynamically built dataflow DAG. Nodes are appended through
// Input, Param, and Op and never removed; computed values and gradients
// live in caches parallel to the node list, so structure and data evolve
// independently.
//
// A Graph is not safe for concurrent use.
type Graph struct {
	nodes   []*Node
	values  map[NodeID]*tensor.Tensor
	grads   map[NodeID]*tensor.Tensor
	backend tensor.Backend
	log     *slog.Logger

	planning bool
	pool     *BufferPool
}

// New returns an empty graph with no backend attached.
func New() *Graph {
	return &Graph{
		values: make(map[NodeID]*tensor.Tensor),
		grads:  make(map[NodeID]*tensor.Tensor),
		log:    slog.Default(),
	}
}

// SetBackend attaches the kernel backend used by Execute and Backward.
// Required after deserialization, which never persists backend state.
func (g *Graph) SetBackend(b tensor.Backend) {
	g.backend = b
}

// SetLogger replaces the graph's logger.
func (g *Graph) SetLogger(l *slog.Logger) {
	if l != nil {
		g.log = l
	}
}

// EnableMemoryPlanning toggles liveness-based buffer reuse for intermediate
// results. Takes effect on the next Execute.
//
// Planning targets forward evaluation: intermediate values computed into
// pooled buffers are not retained across the call, so Backward on a graph
// executed this way reports the missing values instead of reading recycled
// storage. Train with planning off; plan for inference.
func (g *Graph) EnableMemoryPlanning(on bool) {
	g.planning = on
	if !on {
		g.pool = nil
	}
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, error) {
	if int(id) < 0 || int(id) >= len(g.nodes) {
		return nil, fmt.Errorf("graph: node %d out of range [0, %d)", id, len(g.nodes))
	}
	return g.nodes[id], nil
}

// Input appends an input leaf holding externally supplied data and returns
// its id.
func (g *Graph) Input(t *tensor.Tensor) NodeID {
	return g.append(&Node{Kind: KindInput, Tensor: t})
}

// Param appends a trainable parameter leaf and returns its id.
func (g *Graph) Param(t *tensor.Tensor) NodeID {
	return g.append(&Node{Kind: KindParam, Tensor: t})
}

// Op appends an operation node over existing nodes. Input ids must refer to
// already-appended nodes, so graphs are acyclic by construction. Shapes are
// checked eagerly: an incompatible combination fails here, not at Execute.
func (g *Graph) Op(op *Operation, inputs ...NodeID) (NodeID, error) {
	if op == nil {
		return 0, fmt.Errorf("graph: nil operation")
	}
	if want := op.arity(); want >= 0 && len(inputs) != want {
		return 0, fmt.Errorf("graph: %s expects %d inputs, got %d", op.Name(), want, len(inputs))
	}
	shapes := make([]tensor.Shape, len(inputs))
	for i, in := range inputs {
		if int(in) < 0 || int(in) >= len(g.nodes) {
			return 0, fmt.Errorf("graph: %s input %d: node %d out of range", op.Name(), i, in)
		}
		s, err := g.nodeShape(in)
		if err != nil {
			return 0, err
		}
		shapes[i] = s
	}
	if _, err := op.OutputShape(shapes); err != nil {
		return 0, err
	}
	ids := make([]NodeID, len(inputs))
	copy(ids, inputs)
	return g.append(&Node{Kind: KindOp, Op: op, Inputs: ids}), nil
}

func (g *Graph) append(n *Node) NodeID {
	g.nodes = append(g.nodes, n)
	return NodeID(len(g.nodes) - 1)
}

// nodeShape infers a node's output shape from structure alone. Inputs always
// carry smaller ids, so one forward sweep covers all ancestors.
func (g *Graph) nodeShape(id NodeID) (tensor.Shape, error) {
	shapes := make([]tensor.Shape, int(id)+1)
	for i := 0; i <= int(id); i++ {
		n := g.nodes[i]
		if n.Kind != KindOp {
			shapes[i] = n.Tensor.Shape()
			continue
		}
		inShapes := make([]tensor.Shape, len(n.Inputs))
		for j, in := range n.Inputs {
			inShapes[j] = shapes[in]
		}
		out, err := n.Op.OutputShape(inShapes)
		if err != nil {
			return nil, err
		}
		shapes[i] = out
	}
	return shapes[id], nil
}

// Execute evaluates the graph up to target and returns its value. Cached
// values are reused: an Op node whose value survives from a previous run is
// not recomputed. Leaves are refreshed from their stored tensors, so Param
// updates and SetParam are always visible.
func (g *Graph) Execute(target NodeID) (*tensor.Tensor, error) {
	if g.backend == nil {
		return nil, ErrBackendNotInitialized
	}
	if int(target) < 0 || int(target) >= len(g.nodes) {
		return nil, fmt.Errorf("graph: execute: node %d out of range", target)
	}

	// SetParam and UpdateParameters invalidate downstream entries, so a
	// surviving target value is never stale.
	if v, ok := g.values[target]; ok && g.nodes[target].Kind == KindOp {
		return v, nil
	}

	order, err := g.topologicalOrder(target)
	if err != nil {
		return nil, err
	}

	var plan *MemoryPlan
	if g.planning {
		plan, err = g.PlanMemory(order)
		if err != nil {
			return nil, err
		}
		if g.pool == nil {
			g.pool = NewBufferPool(g.backend.Device())
		}
	}

	var pooled []NodeID
	for _, id := range order {
		n := g.nodes[id]
		switch n.Kind {
		case KindInput, KindParam:
			// Leaves alias their stored tensor, so in-place parameter
			// updates flow through without copies.
			g.values[id] = n.Tensor
			continue
		}

		if _, ok := g.values[id]; ok {
			continue // cache hit
		}

		inputs := make([]*tensor.Tensor, len(n.Inputs))
		for i, in := range n.Inputs {
			v, ok := g.values[in]
			if !ok {
				return nil, &ValueNotFoundError{Node: in}
			}
			inputs[i] = v
		}

		out, inPool, err := g.runNode(id, n, inputs, plan)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", id, n.name(), err)
		}
		g.values[id] = out
		if inPool {
			pooled = append(pooled, id)
		}
	}

	v, ok := g.values[target]
	if !ok {
		return nil, &ValueNotFoundError{Node: target}
	}
	// Pooled buffers are recycled by the next run, so values living in
	// them must not outlast it: the target keeps a private copy, the rest
	// are dropped from the cache.
	for _, id := range pooled {
		if id == target {
			v = v.Clone()
			g.values[id] = v
			continue
		}
		delete(g.values, id)
	}
	return v, nil
}

// runNode computes one Op node, writing into a planned buffer when the
// operation has an in-place kernel. The second result reports whether the
// returned tensor lives in the pool.
func (g *Graph) runNode(id NodeID, n *Node, inputs []*tensor.Tensor, plan *MemoryPlan) (*tensor.Tensor, bool, error) {
	// Nullary operations (possible through CustomOp) have no input to
	// derive a buffer dtype from; they always allocate through Forward.
	if plan != nil && len(inputs) > 0 {
		if buf, ok := plan.Assignments[id]; ok {
			inShapes := make([]tensor.Shape, len(inputs))
			for i, in := range inputs {
				inShapes[i] = in.Shape()
			}
			shape, err := n.Op.OutputShape(inShapes)
			if err != nil {
				return nil, false, err
			}
			dst, err := g.pool.GetBuffer(buf, shape, inputs[0].DType())
			if err != nil {
				return nil, false, err
			}
			done, err := n.Op.forwardInto(dst, inputs, g.backend)
			if err != nil {
				return nil, false, err
			}
			if done {
				return dst, true, nil
			}
		}
	}
	out, err := n.Op.Forward(inputs, g.backend)
	return out, false, err
}

// Value returns the cached value of a node, if it has been computed.
func (g *Graph) Value(id NodeID) (*tensor.Tensor, error) {
	v, ok := g.values[id]
	if !ok {
		return nil, &ValueNotFoundError{Node: id}
	}
	return v, nil
}

// Backward runs reverse-mode differentiation from target, which must have
// been executed. gradOutput seeds the target's gradient; nil means a tensor
// of ones. The seed is accumulated into the target's slot, like every other
// contribution, so consecutive calls sum rather than reset. Every node
// contributing to the target receives a gradient, with contributions summed
// across fan-out.
func (g *Graph) Backward(target NodeID, gradOutput *tensor.Tensor) error {
	if g.backend == nil {
		return ErrBackendNotInitialized
	}
	tv, ok := g.values[target]
	if !ok {
		return &ValueNotFoundError{Node: target}
	}

	var seed *tensor.Tensor
	if gradOutput == nil {
		var err error
		seed, err = tensor.Ones(tv.Shape(), tv.DType(), tv.Device())
		if err != nil {
			return err
		}
	} else {
		if !gradOutput.Shape().Equal(tv.Shape()) {
			return &ShapeError{Op: "Backward", Expected: tv.Shape(), Found: gradOutput.Shape()}
		}
		if gradOutput.DType() != tv.DType() {
			return fmt.Errorf("graph: backward: gradient dtype %s does not match value dtype %s",
				gradOutput.DType(), tv.DType())
		}
		// Private copy: the slot is mutated by later accumulation.
		seed = gradOutput.Clone()
	}

	order, err := g.topologicalOrder(target)
	if err != nil {
		return err
	}

	if err := g.accumulateGrad(target, seed); err != nil {
		return err
	}

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		n := g.nodes[id]
		if n.Kind != KindOp {
			continue
		}
		grad, ok := g.grads[id]
		if !ok {
			continue // not on any path to target
		}

		inputs := make([]*tensor.Tensor, len(n.Inputs))
		for j, in := range n.Inputs {
			v, ok := g.values[in]
			if !ok {
				return &ValueNotFoundError{Node: in}
			}
			inputs[j] = v
		}

		inputGrads, err := n.Op.Backward(inputs, grad, g.backend)
		if err != nil {
			return fmt.Errorf("node %d (%s): backward: %w", id, n.name(), err)
		}
		if len(inputGrads) != len(n.Inputs) {
			return fmt.Errorf("node %d (%s): backward returned %d gradients for %d inputs",
				id, n.name(), len(inputGrads), len(n.Inputs))
		}

		for j, in := range n.Inputs {
			if inputGrads[j] == nil {
				continue
			}
			if err := g.accumulateGrad(in, inputGrads[j]); err != nil {
				return err
			}
		}
	}

	return nil
}

// accumulateGrad adds a contribution to a node's gradient, summing with any
// contribution already recorded from another consumer.
func (g *Graph) accumulateGrad(id NodeID, grad *tensor.Tensor) error {
	existing, ok := g.grads[id]
	if !ok {
		g.grads[id] = grad
		return nil
	}
	return g.backend.AddInto(existing, existing, grad)
}

// Gradient returns the gradient computed for a node by the last Backward.
func (g *Graph) Gradient(id NodeID) (*tensor.Tensor, error) {
	gr, ok := g.grads[id]
	if !ok {
		return nil, &ValueNotFoundError{Node: id}
	}
	return gr, nil
}

// UpdateParameters applies one SGD step, param -= lr * grad, in place to
// every Param node that received a gradient. Cached Op values downstream of
// the updated parameters are invalidated so the next Execute recomputes
// them.
func (g *Graph) UpdateParameters(lr float32) error {
	if g.backend == nil {
		return ErrBackendNotInitialized
	}
	var updated []NodeID
	for id, n := range g.nodes {
		if n.Kind != KindParam {
			continue
		}
		grad, ok := g.grads[NodeID(id)]
		if !ok {
			continue
		}
		if err := g.backend.UpdateParameter(n.Tensor, grad, lr); err != nil {
			return fmt.Errorf("node %d: update: %w", id, err)
		}
		updated = append(updated, NodeID(id))
	}
	for _, id := range updated {
		g.invalidate(id)
	}
	return nil
}

// SetParam replaces a Param node's tensor and invalidates the cached values
// of the node and everything downstream of it.
func (g *Graph) SetParam(id NodeID, t *tensor.Tensor) error {
	if int(id) < 0 || int(id) >= len(g.nodes) {
		return fmt.Errorf("graph: set param: node %d out of range", id)
	}
	n := g.nodes[id]
	if n.Kind != KindParam {
		return fmt.Errorf("graph: set param: node %d is %s, not Param", id, n.Kind)
	}
	if !n.Tensor.Shape().Equal(t.Shape()) {
		return &ShapeError{Op: "SetParam", Expected: n.Tensor.Shape(), Found: t.Shape()}
	}
	n.Tensor = t
	g.invalidate(id)
	return nil
}

// invalidate drops the cached value of id and of every transitive
// dependent. Ids are dense and inputs always precede consumers, so one
// forward sweep suffices.
func (g *Graph) invalidate(id NodeID) {
	stale := map[NodeID]bool{id: true}
	delete(g.values, id)
	for i := int(id) + 1; i < len(g.nodes); i++ {
		n := g.nodes[i]
		if n.Kind != KindOp {
			continue
		}
		for _, in := range n.Inputs {
			if stale[in] {
				stale[NodeID(i)] = true
				delete(g.values, NodeID(i))
				break
			}
		}
	}
}

// ClearValues drops all cached values and releases pooled buffers. The next
// Execute recomputes everything.
func (g *Graph) ClearValues() {
	g.values = make(map[NodeID]*tensor.Tensor)
	if g.pool != nil {
		g.pool.Reset()
	}
}

// ClearGradients drops all gradients, typically between training steps.
func (g *Graph) ClearGradients() {
	g.grads = make(map[NodeID]*tensor.Tensor)
}
