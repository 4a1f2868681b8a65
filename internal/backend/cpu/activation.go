package cpu

import (
	"fmt"
	"math"

	"github.com/loom-ml/loom/internal/parallel"
	"github.com/loom-ml/loom/internal/tensor"
)

// ReLU computes max(0, x) element-wise.
func (c *Backend) ReLU(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkFloat32("relu", x); err != nil {
		return nil, err
	}
	dst, err := tensor.New(x.Shape(), tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("relu: %w", err)
	}
	if err := c.ReLUInto(dst, x); err != nil {
		return nil, err
	}
	return dst, nil
}

// ReLUInto writes max(0, x) into dst.
func (c *Backend) ReLUInto(dst, x *tensor.Tensor) error {
	if err := c.checkFloat32("relu", dst, x); err != nil {
		return err
	}
	if !dst.Shape().Equal(x.Shape()) {
		return fmt.Errorf("relu: output shape %v does not match input shape %v", dst.Shape(), x.Shape())
	}
	c.count()

	in, out := x.AsFloat32(), dst.AsFloat32()
	parallel.For(len(out), func(i int) {
		if in[i] > 0 {
			out[i] = in[i]
		} else {
			out[i] = 0
		}
	}, c.cfg)
	return nil
}

// ReLUBackward computes grad * (x > 0) element-wise.
func (c *Backend) ReLUBackward(x, gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkFloat32("relu_backward", x, gradOutput); err != nil {
		return nil, err
	}
	if !x.Shape().Equal(gradOutput.Shape()) {
		return nil, fmt.Errorf("relu_backward: shape mismatch: %v vs %v", x.Shape(), gradOutput.Shape())
	}
	dst, err := tensor.New(x.Shape(), tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("relu_backward: %w", err)
	}
	c.count()

	in, grad, out := x.AsFloat32(), gradOutput.AsFloat32(), dst.AsFloat32()
	parallel.For(len(out), func(i int) {
		if in[i] > 0 {
			out[i] = grad[i]
		}
	}, c.cfg)
	return dst, nil
}

// Sigmoid computes 1 / (1 + exp(-x)) element-wise.
func (c *Backend) Sigmoid(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkFloat32("sigmoid", x); err != nil {
		return nil, err
	}
	dst, err := tensor.New(x.Shape(), tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("sigmoid: %w", err)
	}
	c.count()

	in, out := x.AsFloat32(), dst.AsFloat32()
	parallel.For(len(out), func(i int) {
		out[i] = float32(1.0 / (1.0 + math.Exp(float64(-in[i]))))
	}, c.cfg)
	return dst, nil
}

// SigmoidBackward computes grad * y * (1 - y), where y = Sigmoid(x).
func (c *Backend) SigmoidBackward(y, gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkFloat32("sigmoid_backward", y, gradOutput); err != nil {
		return nil, err
	}
	if !y.Shape().Equal(gradOutput.Shape()) {
		return nil, fmt.Errorf("sigmoid_backward: shape mismatch: %v vs %v", y.Shape(), gradOutput.Shape())
	}
	dst, err := tensor.New(y.Shape(), tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("sigmoid_backward: %w", err)
	}
	c.count()

	yv, grad, out := y.AsFloat32(), gradOutput.AsFloat32(), dst.AsFloat32()
	parallel.For(len(out), func(i int) {
		out[i] = grad[i] * yv[i] * (1 - yv[i])
	}, c.cfg)
	return dst, nil
}

// AddReLU computes max(0, a+b) in a single pass, with broadcasting.
func (c *Backend) AddReLU(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if err := c.checkFloat32("add_relu", a, b); err != nil {
		return nil, err
	}
	outShape, err := tensor.Broadcast(a.Shape(), b.Shape())
	if err != nil {
		return nil, fmt.Errorf("add_relu: %w", err)
	}
	dst, err := tensor.New(outShape, tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("add_relu: %w", err)
	}
	if err := c.AddReLUInto(dst, a, b); err != nil {
		return nil, err
	}
	return dst, nil
}

// AddReLUInto writes max(0, a+b) into dst.
func (c *Backend) AddReLUInto(dst, a, b *tensor.Tensor) error {
	if err := c.checkFloat32("add_relu", dst, a, b); err != nil {
		return err
	}
	outShape, err := tensor.Broadcast(a.Shape(), b.Shape())
	if err != nil {
		return fmt.Errorf("add_relu: %w", err)
	}
	if !dst.Shape().Equal(outShape) {
		return fmt.Errorf("add_relu: output shape %v does not match broadcast shape %v", dst.Shape(), outShape)
	}
	c.count()

	out := dst.AsFloat32()
	if a.Shape().Equal(b.Shape()) {
		av, bv := a.AsFloat32(), b.AsFloat32()
		parallel.For(len(out), func(i int) {
			if s := av[i] + bv[i]; s > 0 {
				out[i] = s
			} else {
				out[i] = 0
			}
		}, c.cfg)
		return nil
	}

	broadcastBinary(out, a, b, outShape, func(x, y float32) float32 {
		if s := x + y; s > 0 {
			return s
		}
		return 0
	})
	return nil
}
