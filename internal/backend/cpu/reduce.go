package cpu

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// ReduceSum sums x over the given axes. With keepDims the reduced axes stay
// in the output shape with size 1; otherwise they are removed.
func (c *Backend) ReduceSum(x *tensor.Tensor, axes []int, keepDims bool) (*tensor.Tensor, error) {
	if err := c.checkFloat32("reduce_sum", x); err != nil {
		return nil, err
	}
	shape := x.Shape()
	reduce := make([]bool, len(shape))
	for _, ax := range axes {
		if ax < 0 || ax >= len(shape) {
			return nil, fmt.Errorf("reduce_sum: axis %d out of range for shape %v", ax, shape)
		}
		reduce[ax] = true
	}

	kept := shape.Clone()
	for d, r := range reduce {
		if r {
			kept[d] = 1
		}
	}

	out, err := tensor.New(kept, tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("reduce_sum: %w", err)
	}
	c.count()

	in := x.AsFloat32()
	sum := out.AsFloat32()
	inStride := shape.ComputeStrides()
	outStride := kept.ComputeStrides()

	for i := range in {
		oi := 0
		rem := i
		for d := 0; d < len(shape); d++ {
			coord := rem / inStride[d]
			rem %= inStride[d]
			if !reduce[d] {
				oi += coord * outStride[d]
			}
		}
		sum[oi] += in[i]
	}

	if keepDims {
		return out, nil
	}

	squeezed := make(tensor.Shape, 0, len(shape))
	for d, r := range reduce {
		if !r {
			squeezed = append(squeezed, shape[d])
		}
	}
	if len(squeezed) == 0 {
		squeezed = tensor.Shape{1}
	}
	return out.Reshape(squeezed)
}
