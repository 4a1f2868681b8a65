// Package cpu implements the reference CPU backend for the Loom engine.
//
// Matrix multiplication goes through gonum's float32 BLAS; the remaining
// kernels are pure Go loops that partition the output across workers for
// large tensors.
package cpu

import (
	"fmt"
	"sync/atomic"

	"github.com/loom-ml/loom/internal/parallel"
	"github.com/loom-ml/loom/internal/tensor"
)

// Backend implements tensor.Backend on the CPU. All kernels operate on
// Float32 tensors; other dtypes return an error.
type Backend struct {
	device tensor.Device
	cfg    parallel.Config
	calls  atomic.Int64
}

// New creates a new CPU backend.
func New() *Backend {
	return &Backend{
		device: tensor.CPU,
		cfg:    parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (c *Backend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (c *Backend) Device() tensor.Device {
	return c.device
}

// Calls returns the number of kernel invocations since the last reset.
// Used by callers to observe whether an execution actually recomputed.
func (c *Backend) Calls() int64 {
	return c.calls.Load()
}

// ResetCalls zeroes the kernel invocation counter.
func (c *Backend) ResetCalls() {
	c.calls.Store(0)
}

func (c *Backend) count() {
	c.calls.Add(1)
}

// checkFloat32 validates that every operand is a Float32 tensor on this
// backend's device.
func (c *Backend) checkFloat32(name string, ts ...*tensor.Tensor) error {
	for _, t := range ts {
		if t.Device() != c.device {
			return fmt.Errorf("%s: tensor on %s, backend requires %s", name, t.Device(), c.device)
		}
		if t.DType() != tensor.Float32 {
			return fmt.Errorf("%s: unsupported dtype %s (CPU kernels are float32)", name, t.DType())
		}
	}
	return nil
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (c *Backend) Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkFloat32("add", a, b); err != nil {
		return nil, err
	}
	outShape, err := tensor.Broadcast(a.Shape(), b.Shape())
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	dst, err := tensor.New(outShape, tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	if err := c.AddInto(dst, a, b); err != nil {
		return nil, err
	}
	return dst, nil
}

// AddInto writes a + b into dst. dst must already have the broadcast shape.
func (c *Backend) AddInto(dst, a, b *tensor.Tensor) error {
	if err := c.checkFloat32("add", dst, a, b); err != nil {
		return err
	}
	outShape, err := tensor.Broadcast(a.Shape(), b.Shape())
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if !dst.Shape().Equal(outShape) {
		return fmt.Errorf("add: output shape %v does not match broadcast shape %v", dst.Shape(), outShape)
	}
	c.count()

	out := dst.AsFloat32()
	if a.Shape().Equal(b.Shape()) {
		av, bv := a.AsFloat32(), b.AsFloat32()
		parallel.For(len(out), func(i int) {
			out[i] = av[i] + bv[i]
		}, c.cfg)
		return nil
	}

	broadcastBinary(out, a, b, outShape, func(x, y float32) float32 { return x + y })
	return nil
}

// Mul performs element-wise multiplication with broadcasting.
func (c *Backend) Mul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkFloat32("mul", a, b); err != nil {
		return nil, err
	}
	outShape, err := tensor.Broadcast(a.Shape(), b.Shape())
	if err != nil {
		return nil, fmt.Errorf("mul: %w", err)
	}
	dst, err := tensor.New(outShape, tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("mul: %w", err)
	}
	c.count()

	out := dst.AsFloat32()
	if a.Shape().Equal(b.Shape()) {
		av, bv := a.AsFloat32(), b.AsFloat32()
		parallel.For(len(out), func(i int) {
			out[i] = av[i] * bv[i]
		}, c.cfg)
		return dst, nil
	}

	broadcastBinary(out, a, b, outShape, func(x, y float32) float32 { return x * y })
	return dst, nil
}

// broadcastBinary evaluates op element-wise over the broadcast index space.
// Each output element reads its operands through broadcast-aware strides.
func broadcastBinary(out []float32, a, b *tensor.Tensor, outShape tensor.Shape, op func(x, y float32) float32) {
	av, bv := a.AsFloat32(), b.AsFloat32()
	aStride := broadcastStrides(a.Shape(), outShape)
	bStride := broadcastStrides(b.Shape(), outShape)
	outStride := outShape.ComputeStrides()

	for i := range out {
		ai, bi := 0, 0
		rem := i
		for d := 0; d < len(outShape); d++ {
			coord := rem / outStride[d]
			rem %= outStride[d]
			ai += coord * aStride[d]
			bi += coord * bStride[d]
		}
		out[i] = op(av[ai], bv[bi])
	}
}

// broadcastStrides aligns shape to outShape from the right and returns
// per-output-dimension strides, 0 for broadcast dimensions.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	own := shape.ComputeStrides()
	offset := len(outShape) - len(shape)
	for d := range outShape {
		if d < offset {
			continue // missing leading dimension, stride 0
		}
		if shape[d-offset] == 1 && outShape[d] > 1 {
			continue // size-1 dimension stretched, stride 0
		}
		strides[d] = own[d-offset]
	}
	return strides
}

// UpdateParameter applies param -= lr * grad in place via BLAS axpy.
func (c *Backend) UpdateParameter(param, grad *tensor.Tensor, lr float32) error {
	if err := c.checkFloat32("update_parameter", param, grad); err != nil {
		return err
	}
	if !param.Shape().Equal(grad.Shape()) {
		return fmt.Errorf("update_parameter: shape mismatch: param %v vs grad %v", param.Shape(), grad.Shape())
	}
	c.count()
	axpy(-lr, grad.AsFloat32(), param.AsFloat32())
	return nil
}
