package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/tensor"
)

func TestFuseKernelsTransparency(t *testing.T) {
	g, _ := newTestGraph(t)

	a := g.Input(fromF32(t, []float32{1.0, -2.0}, tensor.Shape{1, 2}))
	b := g.Input(fromF32(t, []float32{0.5, 0.5}, tensor.Shape{1, 2}))
	sum, err := g.Op(Add(), a, b)
	require.NoError(t, err)
	out, err := g.Op(ReLU(), sum)
	require.NoError(t, err)

	before, err := g.Execute(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 0.0}, before.AsFloat32())

	assert.Equal(t, 1, g.FuseKernels())
	assert.Equal(t, OpAddReLU, g.nodes[out].Op.Kind)
	assert.Equal(t, []NodeID{a, b}, g.nodes[out].Inputs)

	after, err := g.Execute(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 0.0}, after.AsFloat32())
}

func TestFuseKernelsSkipsSharedAdd(t *testing.T) {
	g, _ := newTestGraph(t)

	a := g.Input(fromF32(t, []float32{1, 2}, tensor.Shape{2}))
	b := g.Input(fromF32(t, []float32{3, 4}, tensor.Shape{2}))
	sum, err := g.Op(Add(), a, b)
	require.NoError(t, err)
	_, err = g.Op(ReLU(), sum)
	require.NoError(t, err)
	// A second consumer makes the Add's value observable.
	_, err = g.Op(Sigmoid(), sum)
	require.NoError(t, err)

	assert.Equal(t, 0, g.FuseKernels())
}

func TestFuseKernelsChain(t *testing.T) {
	g, _ := newTestGraph(t)

	x := g.Input(fromF32(t, []float32{1, -1}, tensor.Shape{2}))
	bias1 := g.Param(fromF32(t, []float32{0.5, 0.5}, tensor.Shape{2}))
	bias2 := g.Param(fromF32(t, []float32{-2, 2}, tensor.Shape{2}))

	s1, err := g.Op(Add(), x, bias1)
	require.NoError(t, err)
	r1, err := g.Op(ReLU(), s1)
	require.NoError(t, err)
	s2, err := g.Op(Add(), r1, bias2)
	require.NoError(t, err)
	r2, err := g.Op(ReLU(), s2)
	require.NoError(t, err)

	want, err := g.Execute(r2)
	require.NoError(t, err)
	wantData := append([]float32(nil), want.AsFloat32()...)

	assert.Equal(t, 2, g.FuseKernels())
	require.NoError(t, g.Verify())

	g.ClearValues()
	got, err := g.Execute(r2)
	require.NoError(t, err)
	assert.Equal(t, wantData, got.AsFloat32())
}

func TestFuseKernelsGradientUnchanged(t *testing.T) {
	run := func(fuse bool) []float32 {
		g, _ := newTestGraph(t)
		x := g.Param(fromF32(t, []float32{1, -0.25}, tensor.Shape{1, 2}))
		bias := g.Param(fromF32(t, []float32{0.5}, tensor.Shape{1, 1}))
		sum, err := g.Op(Add(), x, bias)
		require.NoError(t, err)
		out, err := g.Op(ReLU(), sum)
		require.NoError(t, err)

		if fuse {
			require.Equal(t, 1, g.FuseKernels())
		}
		_, err = g.Execute(out)
		require.NoError(t, err)
		require.NoError(t, g.Backward(out, nil))

		grad, err := g.Gradient(bias)
		require.NoError(t, err)
		return grad.AsFloat32()
	}

	assert.InDeltaSlice(t, run(false), run(true), 1e-6)
}
