// Package graph implements the dataflow execution engine: a dynamically
// built DAG of tensor operations with forward evaluation, reverse-mode
// automatic differentiation, static shape verification, liveness-based
// memory planning, and a kernel-fusion rewrite pass.
package graph

import "github.com/loom-ml/loom/internal/tensor"

// NodeID identifies a node in the graph. IDs are dense and monotonically
// increasing; an Op node's inputs always have strictly smaller ids.
type NodeID int

// NodeKind discriminates the node variants.
type NodeKind int

// Node variants.
const (
	// KindInput is a leaf holding externally supplied data, refreshed
	// from its stored tensor on every execution.
	KindInput NodeKind = iota
	// KindParam is a trainable leaf, materialized into the value cache
	// once and updated in place by UpdateParameters.
	KindParam
	// KindOp computes its value from earlier nodes; it owns only its
	// operation configuration and input references, never tensor data.
	KindOp
)

// String returns the kind name.
func (k NodeKind) String() string {
	switch k {
	case KindInput:
		return "Input"
	case KindParam:
		return "Param"
	case KindOp:
		return "Op"
	default:
		return "Unknown"
	}
}

// Node is one entry in the graph's append-only node list.
type Node struct {
	Kind   NodeKind
	Tensor *tensor.Tensor // Input/Param payload, nil for Op nodes
	Op     *Operation     // Op nodes only
	Inputs []NodeID       // Op nodes only
}

// name returns a short label for error messages and logs.
func (n *Node) name() string {
	if n.Kind == KindOp {
		return n.Op.Name()
	}
	return n.Kind.String()
}
