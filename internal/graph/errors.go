package graph

import (
	"errors"
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// ErrBackendNotInitialized is returned when Execute or Backward is invoked
// before a backend is attached, typically right after deserialization.
var ErrBackendNotInitialized = errors.New("graph: backend not initialized (call SetBackend before execution)")

// ShapeError reports incompatible shapes, raised by operation shape
// inference or the verifier.
type ShapeError struct {
	Op       string
	Expected tensor.Shape
	Found    tensor.Shape
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: incompatible shapes: expected %v, found %v", e.Op, e.Expected, e.Found)
}

// CycleError reports structural corruption: the scheduler encountered a node
// that is already on the traversal stack.
type CycleError struct {
	Node NodeID
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected at node %d: graph is not a DAG", e.Node)
}

// ValueNotFoundError reports that a node's value was required but never
// computed: a builder bug, an out-of-order execution, or corrupted state.
type ValueNotFoundError struct {
	Node NodeID
}

// Error implements the error interface.
func (e *ValueNotFoundError) Error() string {
	return fmt.Sprintf("value not found for node %d", e.Node)
}

// DeviceError reports that a tensor is not in the storage an operation
// expects.
type DeviceError struct {
	Node NodeID
	Want tensor.Device
	Got  tensor.Device
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("node %d: tensor on %s, backend requires %s", e.Node, e.Got, e.Want)
}
