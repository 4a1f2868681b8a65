package cpu

import (
	"fmt"

	"github.com/loom-ml/loom/internal/parallel"
	"github.com/loom-ml/loom/internal/tensor"
)

// MaxPool2D performs 2D max pooling in NCHW layout.
func (c *Backend) MaxPool2D(input *tensor.Tensor, kernelSize, stride int) (*tensor.Tensor, error) {
	if err := c.checkFloat32("max_pool2d", input); err != nil {
		return nil, err
	}
	if len(input.Shape()) != 4 {
		return nil, fmt.Errorf("max_pool2d: expected 4-D tensor, got %v", input.Shape())
	}
	if kernelSize < 1 || stride < 1 {
		return nil, fmt.Errorf("max_pool2d: kernel size and stride must be >= 1, got %d and %d", kernelSize, stride)
	}

	n, ch, h, w := input.Shape()[0], input.Shape()[1], input.Shape()[2], input.Shape()[3]
	oh := (h-kernelSize)/stride + 1
	ow := (w-kernelSize)/stride + 1
	if oh < 1 || ow < 1 {
		return nil, fmt.Errorf("max_pool2d: window %d does not fit input %dx%d with stride %d", kernelSize, h, w, stride)
	}

	out, err := tensor.New(tensor.Shape{n, ch, oh, ow}, tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("max_pool2d: %w", err)
	}
	c.count()

	in := input.AsFloat32()
	res := out.AsFloat32()

	parallel.ForBatch(n, ch, func(b, ic int) {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				best := in[((b*ch+ic)*h+oy*stride)*w+ox*stride]
				for ky := 0; ky < kernelSize; ky++ {
					for kx := 0; kx < kernelSize; kx++ {
						v := in[((b*ch+ic)*h+oy*stride+ky)*w+ox*stride+kx]
						if v > best {
							best = v
						}
					}
				}
				res[((b*ch+ic)*oh+oy)*ow+ox] = best
			}
		}
	}, c.cfg)

	return out, nil
}

// MaxPool2DBackward routes each output gradient to the position that held
// the maximum during the forward pass.
func (c *Backend) MaxPool2DBackward(input, gradOutput *tensor.Tensor, kernelSize, stride int) (*tensor.Tensor, error) {
	if err := c.checkFloat32("max_pool2d_backward", input, gradOutput); err != nil {
		return nil, err
	}
	if len(input.Shape()) != 4 {
		return nil, fmt.Errorf("max_pool2d_backward: expected 4-D tensor, got %v", input.Shape())
	}

	n, ch, h, w := input.Shape()[0], input.Shape()[1], input.Shape()[2], input.Shape()[3]
	oh := (h-kernelSize)/stride + 1
	ow := (w-kernelSize)/stride + 1
	if want := (tensor.Shape{n, ch, oh, ow}); !gradOutput.Shape().Equal(want) {
		return nil, fmt.Errorf("max_pool2d_backward: gradient shape %v does not match output shape %v",
			gradOutput.Shape(), want)
	}

	gradInput, err := tensor.New(input.Shape(), tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("max_pool2d_backward: %w", err)
	}
	c.count()

	in := input.AsFloat32()
	grad := gradOutput.AsFloat32()
	gIn := gradInput.AsFloat32()

	// Windows may overlap when stride < kernelSize, so accumulation into
	// gradInput stays sequential per (batch, channel) plane.
	parallel.ForBatch(n, ch, func(b, ic int) {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				bestIdx := ((b*ch+ic)*h+oy*stride)*w + ox*stride
				best := in[bestIdx]
				for ky := 0; ky < kernelSize; ky++ {
					for kx := 0; kx < kernelSize; kx++ {
						idx := ((b*ch+ic)*h+oy*stride+ky)*w + ox*stride + kx
						if in[idx] > best {
							best = in[idx]
							bestIdx = idx
						}
					}
				}
				gIn[bestIdx] += grad[((b*ch+ic)*oh+oy)*ow+ox]
			}
		}
	}, c.cfg)

	return gradInput, nil
}
