package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/tensor"
)

func TestReLU(t *testing.T) {
	c := New()
	x := fromF32(t, []float32{-1, 0, 2, -3.5}, tensor.Shape{4})

	out, err := c.ReLU(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 2, 0}, out.AsFloat32())
}

func TestReLUBackward(t *testing.T) {
	c := New()
	x := fromF32(t, []float32{-1, 0, 2, 3}, tensor.Shape{4})
	grad := fromF32(t, []float32{10, 10, 10, 10}, tensor.Shape{4})

	out, err := c.ReLUBackward(x, grad)
	require.NoError(t, err)
	// Zero is not in the active region.
	assert.Equal(t, []float32{0, 0, 10, 10}, out.AsFloat32())
}

func TestSigmoid(t *testing.T) {
	c := New()
	x := fromF32(t, []float32{0, 1, -1}, tensor.Shape{3})

	out, err := c.Sigmoid(x)
	require.NoError(t, err)

	s1 := float32(1.0 / (1.0 + math.Exp(-1)))
	assert.InDeltaSlice(t, []float32{0.5, s1, 1 - s1}, out.AsFloat32(), 1e-6)
}

func TestSigmoidBackward(t *testing.T) {
	c := New()
	x := fromF32(t, []float32{0, 1}, tensor.Shape{2})
	y, err := c.Sigmoid(x)
	require.NoError(t, err)
	grad := fromF32(t, []float32{1, 1}, tensor.Shape{2})

	out, err := c.SigmoidBackward(y, grad)
	require.NoError(t, err)

	s1 := 1.0 / (1.0 + math.Exp(-1))
	assert.InDeltaSlice(t, []float32{0.25, float32(s1 * (1 - s1))}, out.AsFloat32(), 1e-6)
}

func TestAddReLUMatchesAddThenReLU(t *testing.T) {
	c := New()
	a := fromF32(t, []float32{1, -2, 0.5, -0.5}, tensor.Shape{2, 2})
	b := fromF32(t, []float32{0.5, 0.5, -1, 0.6}, tensor.Shape{2, 2})

	fused, err := c.AddReLU(a, b)
	require.NoError(t, err)

	sum, err := c.Add(a, b)
	require.NoError(t, err)
	unfused, err := c.ReLU(sum)
	require.NoError(t, err)

	assert.Equal(t, unfused.AsFloat32(), fused.AsFloat32())
}

func TestAddReLUBroadcast(t *testing.T) {
	c := New()
	a := fromF32(t, []float32{1, -2}, tensor.Shape{1, 2})
	bias := fromF32(t, []float32{0.5}, tensor.Shape{1, 1})

	out, err := c.AddReLU(a, bias)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.Equal(t, []float32{1.5, 0}, out.AsFloat32())
}
