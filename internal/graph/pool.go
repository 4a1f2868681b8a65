package graph

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// BufferPool materializes the logical buffer indices of a MemoryPlan as
// concrete tensors, reusing allocations across executions. Buffers persist
// until Reset, so repeated runs of the same graph allocate nothing.
type BufferPool struct {
	device  tensor.Device
	buffers map[int]*tensor.Tensor
}

// NewBufferPool returns an empty pool allocating on the given device.
func NewBufferPool(device tensor.Device) *BufferPool {
	return &BufferPool{
		device:  device,
		buffers: make(map[int]*tensor.Tensor),
	}
}

// GetBuffer returns the tensor behind a logical buffer index, allocating on
// first use. A buffer whose byte size matches a new shape is rewrapped
// in place; otherwise it is replaced.
func (p *BufferPool) GetBuffer(index int, shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, error) {
	if index < 0 {
		return nil, fmt.Errorf("pool: negative buffer index %d", index)
	}

	buf, ok := p.buffers[index]
	if ok && buf.DType() == dtype {
		if buf.Shape().Equal(shape) {
			return buf, nil
		}
		if buf.NumElements() == shape.NumElements() {
			reshaped, err := buf.Reshape(shape)
			if err != nil {
				return nil, fmt.Errorf("pool: buffer %d: %w", index, err)
			}
			p.buffers[index] = reshaped
			return reshaped, nil
		}
	}

	fresh, err := tensor.New(shape, dtype, p.device)
	if err != nil {
		return nil, fmt.Errorf("pool: buffer %d: %w", index, err)
	}
	p.buffers[index] = fresh
	return fresh, nil
}

// Len returns the number of materialized buffers.
func (p *BufferPool) Len() int { return len(p.buffers) }

// Reset drops all buffers.
func (p *BufferPool) Reset() {
	p.buffers = make(map[int]*tensor.Tensor)
}
