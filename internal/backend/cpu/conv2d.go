package cpu

import (
	"fmt"

	"github.com/loom-ml/loom/internal/parallel"
	"github.com/loom-ml/loom/internal/tensor"
)

// Conv2D performs a 2D convolution in NCHW layout.
// input is [N, Ci, H, W], kernel is [Co, Ci, kH, kW].
func (c *Backend) Conv2D(input, kernel *tensor.Tensor, stride, padding int) (*tensor.Tensor, error) {
	if err := c.checkFloat32("conv2d", input, kernel); err != nil {
		return nil, err
	}
	if len(input.Shape()) != 4 || len(kernel.Shape()) != 4 {
		return nil, fmt.Errorf("conv2d: expected 4-D tensors, got %v and %v", input.Shape(), kernel.Shape())
	}
	if stride < 1 {
		return nil, fmt.Errorf("conv2d: stride must be >= 1, got %d", stride)
	}

	n, ci, h, w := input.Shape()[0], input.Shape()[1], input.Shape()[2], input.Shape()[3]
	co, ciK, kh, kw := kernel.Shape()[0], kernel.Shape()[1], kernel.Shape()[2], kernel.Shape()[3]
	if ci != ciK {
		return nil, fmt.Errorf("conv2d: input channels %d do not match kernel channels %d", ci, ciK)
	}
	oh := (h+2*padding-kh)/stride + 1
	ow := (w+2*padding-kw)/stride + 1
	if oh < 1 || ow < 1 {
		return nil, fmt.Errorf("conv2d: kernel %dx%d does not fit input %dx%d with stride %d, padding %d",
			kh, kw, h, w, stride, padding)
	}

	out, err := tensor.New(tensor.Shape{n, co, oh, ow}, tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}
	c.count()

	in := input.AsFloat32()
	k := kernel.AsFloat32()
	res := out.AsFloat32()

	// Each (batch, out-channel) pair writes a disjoint oh*ow region.
	parallel.ForBatch(n, co, func(b, oc int) {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				var acc float32
				for ic := 0; ic < ci; ic++ {
					for ky := 0; ky < kh; ky++ {
						iy := oy*stride + ky - padding
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							ix := ox*stride + kx - padding
							if ix < 0 || ix >= w {
								continue
							}
							acc += in[((b*ci+ic)*h+iy)*w+ix] * k[((oc*ci+ic)*kh+ky)*kw+kx]
						}
					}
				}
				res[((b*co+oc)*oh+oy)*ow+ox] = acc
			}
		}
	}, c.cfg)

	return out, nil
}

// Conv2DBackward computes the gradients of Conv2D with respect to the input
// and the kernel.
func (c *Backend) Conv2DBackward(input, kernel, gradOutput *tensor.Tensor, stride, padding int) (*tensor.Tensor, *tensor.Tensor, error) {
	if err := c.checkFloat32("conv2d_backward", input, kernel, gradOutput); err != nil {
		return nil, nil, err
	}
	if len(input.Shape()) != 4 || len(kernel.Shape()) != 4 {
		return nil, nil, fmt.Errorf("conv2d_backward: expected 4-D tensors, got %v and %v", input.Shape(), kernel.Shape())
	}

	n, ci, h, w := input.Shape()[0], input.Shape()[1], input.Shape()[2], input.Shape()[3]
	co, _, kh, kw := kernel.Shape()[0], kernel.Shape()[1], kernel.Shape()[2], kernel.Shape()[3]
	oh := (h+2*padding-kh)/stride + 1
	ow := (w+2*padding-kw)/stride + 1
	if want := (tensor.Shape{n, co, oh, ow}); !gradOutput.Shape().Equal(want) {
		return nil, nil, fmt.Errorf("conv2d_backward: gradient shape %v does not match output shape %v",
			gradOutput.Shape(), want)
	}

	gradInput, err := tensor.New(input.Shape(), tensor.Float32, c.device)
	if err != nil {
		return nil, nil, fmt.Errorf("conv2d_backward: %w", err)
	}
	gradKernel, err := tensor.New(kernel.Shape(), tensor.Float32, c.device)
	if err != nil {
		return nil, nil, fmt.Errorf("conv2d_backward: %w", err)
	}
	c.count()

	in := input.AsFloat32()
	k := kernel.AsFloat32()
	grad := gradOutput.AsFloat32()
	gIn := gradInput.AsFloat32()
	gK := gradKernel.AsFloat32()

	// Sequential accumulation: gradInput and gradKernel receive overlapping
	// contributions across output positions.
	for b := 0; b < n; b++ {
		for oc := 0; oc < co; oc++ {
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					g := grad[((b*co+oc)*oh+oy)*ow+ox]
					if g == 0 {
						continue
					}
					for ic := 0; ic < ci; ic++ {
						for ky := 0; ky < kh; ky++ {
							iy := oy*stride + ky - padding
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*stride + kx - padding
								if ix < 0 || ix >= w {
									continue
								}
								gIn[((b*ci+ic)*h+iy)*w+ix] += g * k[((oc*ci+ic)*kh+ky)*kw+kx]
								gK[((oc*ci+ic)*kh+ky)*kw+kx] += g * in[((b*ci+ic)*h+iy)*w+ix]
							}
						}
					}
				}
			}
		}
	}

	return gradInput, gradKernel, nil
}
