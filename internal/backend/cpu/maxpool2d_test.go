package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/tensor"
)

func TestMaxPool2D(t *testing.T) {
	c := New()
	input := fromF32(t, []float32{
		1, 2, 5, 6,
		3, 4, 7, 8,
		9, 10, 13, 14,
		11, 12, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})

	out, err := c.MaxPool2D(input, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{4, 8, 12, 16}, out.AsFloat32())
}

func TestMaxPool2DOverlapping(t *testing.T) {
	c := New()
	input := fromF32(t, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 1, 3, 3})

	out, err := c.MaxPool2D(input, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6, 8, 9}, out.AsFloat32())
}

func TestMaxPool2DBackward(t *testing.T) {
	c := New()
	input := fromF32(t, []float32{
		1, 2, 5, 6,
		3, 4, 7, 8,
		9, 10, 13, 14,
		11, 12, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})
	gradOut := fromF32(t, []float32{10, 20, 30, 40}, tensor.Shape{1, 1, 2, 2})

	gradInput, err := c.MaxPool2DBackward(input, gradOut, 2, 2)
	require.NoError(t, err)

	// Gradient flows only to each window's maximum.
	assert.Equal(t, []float32{
		0, 0, 0, 0,
		0, 10, 0, 20,
		0, 0, 0, 0,
		0, 30, 0, 40,
	}, gradInput.AsFloat32())
}

func TestMaxPool2DBackwardGradShapeMismatch(t *testing.T) {
	c := New()
	input, err := tensor.Ones(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)

	// kernel 2, stride 2 gives a 2x2 output; a 4x4 gradient must be
	// rejected before the scatter loops read out of bounds.
	gradOut, err := tensor.Ones(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)

	_, err = c.MaxPool2DBackward(input, gradOut, 2, 2)
	assert.Error(t, err)
}

func TestMaxPool2DWindowTooLarge(t *testing.T) {
	c := New()
	input, err := tensor.Ones(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	_, err = c.MaxPool2D(input, 3, 1)
	assert.Error(t, err)
}
