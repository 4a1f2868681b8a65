package graph

import (
	"github.com/loom-ml/loom/internal/tensor"
)

// Builder offers a chainable layer over Graph construction. Errors are
// sticky: after the first failing operation every later call is a no-op and
// Err returns the original cause, so a network can be assembled without
// per-call error handling.
type Builder struct {
	g   *Graph
	err error
}

// NewBuilder returns a builder over a fresh graph with the given backend
// attached.
func NewBuilder(b tensor.Backend) *Builder {
	g := New()
	g.SetBackend(b)
	return &Builder{g: g}
}

// Graph returns the underlying graph.
func (b *Builder) Graph() *Graph { return b.g }

// Err returns the first error recorded by any builder call.
func (b *Builder) Err() error { return b.err }

// Val adds an input leaf.
func (b *Builder) Val(t *tensor.Tensor) NodeID {
	if b.err != nil {
		return 0
	}
	return b.g.Input(t)
}

// Param adds a trainable parameter leaf.
func (b *Builder) Param(t *tensor.Tensor) NodeID {
	if b.err != nil {
		return 0
	}
	return b.g.Param(t)
}

func (b *Builder) op(op *Operation, inputs ...NodeID) NodeID {
	if b.err != nil {
		return 0
	}
	id, err := b.g.Op(op, inputs...)
	if err != nil {
		b.err = err
		return 0
	}
	return id
}

// MatMul adds a @ b.
func (b *Builder) MatMul(a, c NodeID) NodeID { return b.op(MatMul(), a, c) }

// Add adds element-wise a + b with broadcasting.
func (b *Builder) Add(a, c NodeID) NodeID { return b.op(Add(), a, c) }

// ReLU adds max(0, x).
func (b *Builder) ReLU(x NodeID) NodeID { return b.op(ReLU(), x) }

// Sigmoid adds 1 / (1 + e^-x).
func (b *Builder) Sigmoid(x NodeID) NodeID { return b.op(Sigmoid(), x) }

// Conv2D adds a 2D convolution of x with kernel.
func (b *Builder) Conv2D(x, kernel NodeID, stride, padding int) NodeID {
	return b.op(Conv2D(stride, padding), x, kernel)
}

// MaxPool2D adds 2D max pooling over x.
func (b *Builder) MaxPool2D(x NodeID, kernelSize, stride int) NodeID {
	return b.op(MaxPool2D(kernelSize, stride), x)
}

// Reshape adds a metadata-only reshape of x.
func (b *Builder) Reshape(x NodeID, shape tensor.Shape) NodeID {
	return b.op(Reshape(shape), x)
}

// Linear adds x @ w + bias, the fully-connected layer.
func (b *Builder) Linear(x, w, bias NodeID) NodeID {
	return b.Add(b.MatMul(x, w), bias)
}

// Custom adds a user-defined operation.
func (b *Builder) Custom(op CustomOp, inputs ...NodeID) NodeID {
	return b.op(Custom(op), inputs...)
}
