package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/loom-ml/loom/internal/tensor"
)

// MatMulT computes op(a) @ op(b) for 2-D tensors through BLAS sgemm,
// where op(x) = xᵀ when the corresponding transpose flag is set.
func (c *Backend) MatMulT(a, b *tensor.Tensor, transA, transB bool) (*tensor.Tensor, error) {
	if err := c.checkFloat32("matmul", a, b); err != nil {
		return nil, err
	}
	if len(a.Shape()) != 2 || len(b.Shape()) != 2 {
		return nil, fmt.Errorf("matmul: expected 2-D tensors, got %v and %v", a.Shape(), b.Shape())
	}

	m, ka := a.Shape()[0], a.Shape()[1]
	if transA {
		m, ka = ka, m
	}
	kb, n := b.Shape()[0], b.Shape()[1]
	if transB {
		kb, n = n, kb
	}
	if ka != kb {
		return nil, fmt.Errorf("matmul: inner dimensions disagree: %v @ %v (trans %v, %v)",
			a.Shape(), b.Shape(), transA, transB)
	}

	out, err := tensor.New(tensor.Shape{m, n}, tensor.Float32, c.device)
	if err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}
	c.count()

	tA, tB := blas.NoTrans, blas.NoTrans
	if transA {
		tA = blas.Trans
	}
	if transB {
		tB = blas.Trans
	}

	blas32.Gemm(tA, tB, 1,
		general(a), general(b), 0, general(out))
	return out, nil
}

// general wraps a 2-D tensor as a blas32.General without copying.
func general(t *tensor.Tensor) blas32.General {
	return blas32.General{
		Rows:   t.Shape()[0],
		Cols:   t.Shape()[1],
		Stride: t.Shape()[1],
		Data:   t.AsFloat32(),
	}
}

// axpy computes y += alpha * x through BLAS.
func axpy(alpha float32, x, y []float32) {
	blas32.Axpy(alpha,
		blas32.Vector{N: len(x), Inc: 1, Data: x},
		blas32.Vector{N: len(y), Inc: 1, Data: y})
}
