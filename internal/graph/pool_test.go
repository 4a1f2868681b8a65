package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/tensor"
)

func TestBufferPoolAllocatesOnce(t *testing.T) {
	p := NewBufferPool(tensor.CPU)

	a, err := p.GetBuffer(0, tensor.Shape{2, 3}, tensor.Float32)
	require.NoError(t, err)
	b, err := p.GetBuffer(0, tensor.Shape{2, 3}, tensor.Float32)
	require.NoError(t, err)

	assert.Same(t, a, b, "same index and shape must reuse the buffer")
	assert.Equal(t, 1, p.Len())
}

func TestBufferPoolDistinctIndices(t *testing.T) {
	p := NewBufferPool(tensor.CPU)

	a, err := p.GetBuffer(0, tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)
	b, err := p.GetBuffer(1, tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)

	a.AsFloat32()[0] = 1
	assert.Equal(t, float32(0), b.AsFloat32()[0])
}

func TestBufferPoolRewrapsSameSize(t *testing.T) {
	p := NewBufferPool(tensor.CPU)

	a, err := p.GetBuffer(0, tensor.Shape{2, 3}, tensor.Float32)
	require.NoError(t, err)
	a.AsFloat32()[0] = 42

	b, err := p.GetBuffer(0, tensor.Shape{3, 2}, tensor.Float32)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, b.Shape())
	assert.Equal(t, float32(42), b.AsFloat32()[0], "same element count shares storage")
}

func TestBufferPoolReplacesOnSizeChange(t *testing.T) {
	p := NewBufferPool(tensor.CPU)

	_, err := p.GetBuffer(0, tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)
	b, err := p.GetBuffer(0, tensor.Shape{5}, tensor.Float32)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5}, b.Shape())
}

func TestBufferPoolReset(t *testing.T) {
	p := NewBufferPool(tensor.CPU)
	_, err := p.GetBuffer(0, tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)

	p.Reset()
	assert.Equal(t, 0, p.Len())
}

func TestBufferPoolNegativeIndex(t *testing.T) {
	p := NewBufferPool(tensor.CPU)
	_, err := p.GetBuffer(-1, tensor.Shape{2}, tensor.Float32)
	assert.Error(t, err)
}
