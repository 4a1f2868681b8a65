package graph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/tensor"
)

func TestPlanMemoryChainReusesBuffers(t *testing.T) {
	g, _ := newTestGraph(t)

	x := g.Input(fromF32(t, []float32{1, -2, 3, -4}, tensor.Shape{2, 2}))
	a, err := g.Op(ReLU(), x)
	require.NoError(t, err)
	b, err := g.Op(Sigmoid(), a)
	require.NoError(t, err)
	c, err := g.Op(ReLU(), b)
	require.NoError(t, err)
	d, err := g.Op(Sigmoid(), c)
	require.NoError(t, err)

	order, err := g.topologicalOrder(d)
	require.NoError(t, err)
	plan, err := g.PlanMemory(order)
	require.NoError(t, err)

	assert.Len(t, plan.Assignments, 4)
	// In a pure chain at most two values are live at once.
	assert.Equal(t, 2, plan.NumBuffers)
}

func TestPlanMemoryFanOutKeepsValuesLive(t *testing.T) {
	g, _ := newTestGraph(t)

	x := g.Input(fromF32(t, []float32{1, 1}, tensor.Shape{1, 2}))
	a, err := g.Op(ReLU(), x)
	require.NoError(t, err)
	b, err := g.Op(Sigmoid(), x)
	require.NoError(t, err)
	y, err := g.Op(Add(), a, b)
	require.NoError(t, err)

	order, err := g.topologicalOrder(y)
	require.NoError(t, err)
	plan, err := g.PlanMemory(order)
	require.NoError(t, err)

	// a and b are both live when y runs: three distinct buffers.
	assert.NotEqual(t, plan.Assignments[a], plan.Assignments[b])
	assert.NotEqual(t, plan.Assignments[a], plan.Assignments[y])
	assert.NotEqual(t, plan.Assignments[b], plan.Assignments[y])
}

// randomDAG grows a graph of rank-2 float32 ops with random fan-in drawn
// from everything built so far.
func randomDAG(t *testing.T, g *Graph, rng *rand.Rand, numOps int) NodeID {
	t.Helper()

	ids := []NodeID{
		g.Input(randSquare(t, rng)),
		g.Input(randSquare(t, rng)),
		g.Param(randSquare(t, rng)),
	}

	var last NodeID
	for i := 0; i < numOps; i++ {
		var (
			id  NodeID
			err error
		)
		pick := func() NodeID { return ids[rng.Intn(len(ids))] }
		switch rng.Intn(4) {
		case 0:
			id, err = g.Op(Add(), pick(), pick())
		case 1:
			id, err = g.Op(ReLU(), pick())
		case 2:
			id, err = g.Op(Sigmoid(), pick())
		case 3:
			id, err = g.Op(MatMul(), pick(), pick())
		}
		require.NoError(t, err)
		ids = append(ids, id)
		last = id
	}
	return last
}

func randSquare(t *testing.T, rng *rand.Rand) *tensor.Tensor {
	t.Helper()
	x, err := tensor.Randn(tensor.Shape{2, 2}, rng)
	require.NoError(t, err)
	return x
}

func TestPlanMemoryLivenessProperty(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			g, _ := newTestGraph(t)
			rng := rand.New(rand.NewSource(seed))
			target := randomDAG(t, g, rng, 12)

			order, err := g.topologicalOrder(target)
			require.NoError(t, err)
			plan, err := g.PlanMemory(order)
			require.NoError(t, err)

			pos := make(map[NodeID]int, len(order))
			lastUse := make(map[NodeID]int, len(order))
			for i, id := range order {
				pos[id] = i
				lastUse[id] = i
				for _, in := range g.nodes[id].Inputs {
					lastUse[in] = i
				}
			}

			// Nodes sharing a buffer must have disjoint live ranges.
			type rng2 struct{ lo, hi int }
			byBuffer := make(map[int][]rng2)
			for id, buf := range plan.Assignments {
				byBuffer[buf] = append(byBuffer[buf], rng2{pos[id], lastUse[id]})
			}
			for buf, ranges := range byBuffer {
				for i := 0; i < len(ranges); i++ {
					for j := i + 1; j < len(ranges); j++ {
						a, b := ranges[i], ranges[j]
						overlap := a.lo <= b.hi && b.lo <= a.hi
						assert.False(t, overlap,
							"buffer %d assigned to overlapping ranges [%d,%d] and [%d,%d]",
							buf, a.lo, a.hi, b.lo, b.hi)
					}
				}
			}
		})
	}
}

func TestPlanningTransparency(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			build := func() (*Graph, NodeID) {
				g, _ := newTestGraph(t)
				rng := rand.New(rand.NewSource(seed))
				return g, randomDAG(t, g, rng, 10)
			}

			plain, target := build()
			want, err := plain.Execute(target)
			require.NoError(t, err)

			planned, target2 := build()
			require.Equal(t, target, target2)
			planned.EnableMemoryPlanning(true)
			got, err := planned.Execute(target2)
			require.NoError(t, err)

			assert.Equal(t, want.Shape(), got.Shape())
			assert.InDeltaSlice(t, want.AsFloat32(), got.AsFloat32(), 1e-6)
		})
	}
}

func TestPlanningDropsIntermediatesForBackward(t *testing.T) {
	g, _ := newTestGraph(t)
	g.EnableMemoryPlanning(true)

	x := g.Param(fromF32(t, []float32{1, -2}, tensor.Shape{2}))
	bias := g.Param(fromF32(t, []float32{0.5, 0.5}, tensor.Shape{2}))
	sum, err := g.Op(Add(), x, bias)
	require.NoError(t, err)
	out, err := g.Op(ReLU(), sum)
	require.NoError(t, err)

	_, err = g.Execute(out)
	require.NoError(t, err)

	// ReLU's backward needs sum's value, which lived in a pooled buffer
	// and was dropped; the error is loud, never a wrong gradient.
	err = g.Backward(out, nil)
	var notFound *ValueNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

// onesOp is a source op: it takes no inputs and produces a constant
// tensor of ones.
type onesOp struct {
	shape tensor.Shape
}

func (o *onesOp) Name() string { return "OnesSource" }

func (o *onesOp) Forward(inputs []*tensor.Tensor, b tensor.Backend) (*tensor.Tensor, error) {
	return tensor.Ones(o.shape, tensor.Float32, b.Device())
}

func (o *onesOp) Backward(inputs []*tensor.Tensor, gradOutput *tensor.Tensor, b tensor.Backend) ([]*tensor.Tensor, error) {
	return nil, nil
}

func (o *onesOp) OutputShape(inputShapes []tensor.Shape) (tensor.Shape, error) {
	if len(inputShapes) != 0 {
		return nil, fmt.Errorf("ones: expected 0 inputs, got %d", len(inputShapes))
	}
	return o.shape.Clone(), nil
}

func TestPlanningNullaryCustomOp(t *testing.T) {
	g, _ := newTestGraph(t)
	g.EnableMemoryPlanning(true)

	c, err := g.Op(Custom(&onesOp{shape: tensor.Shape{2}}))
	require.NoError(t, err)
	x := g.Input(fromF32(t, []float32{1, -3}, tensor.Shape{2}))
	y, err := g.Op(Add(), c, x)
	require.NoError(t, err)

	out, err := g.Execute(y)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, -2}, out.AsFloat32())
}

func TestPlanningRepeatedExecution(t *testing.T) {
	g, _ := newTestGraph(t)
	g.EnableMemoryPlanning(true)

	x := g.Input(fromF32(t, []float32{1, -2, 3, -4}, tensor.Shape{2, 2}))
	a, err := g.Op(ReLU(), x)
	require.NoError(t, err)
	y, err := g.Op(Add(), a, a)
	require.NoError(t, err)

	first, err := g.Execute(y)
	require.NoError(t, err)
	want := append([]float32(nil), first.AsFloat32()...)

	second, err := g.Execute(y)
	require.NoError(t, err)
	assert.Equal(t, want, second.AsFloat32())

	// Scribbling on the returned tensor must not leak into pooled
	// storage used by later runs.
	first.AsFloat32()[0] = 999
	g.ClearValues()
	third, err := g.Execute(y)
	require.NoError(t, err)
	assert.Equal(t, want, third.AsFloat32())
}
