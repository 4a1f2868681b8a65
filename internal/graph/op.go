package graph

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// OpKind enumerates the built-in operations. Built-ins are dispatched by a
// switch on the kind rather than through an interface; OpCustom is the one
// open variant, wrapping a dynamically dispatched CustomOp.
type OpKind int

// Built-in operation kinds.
const (
	OpMatMul OpKind = iota
	OpAdd
	OpReLU
	OpSigmoid
	OpAddReLU
	OpConv2D
	OpMaxPool2D
	OpReshape
	OpCustom
)

// CustomOp is the open extension point: user kernels implement the same
// forward/backward/shape-inference contract as the built-ins and can be
// added without engine changes. Implementations that should survive a
// save/load round trip must be registered with RegisterCustomOp and be
// JSON-marshalable.
type CustomOp interface {
	// Name identifies the operation; it is also the registry key used
	// for persistence.
	Name() string

	// Forward computes the output from the input tensors. It must be a
	// deterministic function of its inputs.
	Forward(inputs []*tensor.Tensor, backend tensor.Backend) (*tensor.Tensor, error)

	// Backward computes one gradient per input, in input order, given
	// the input tensors and the gradient of the output.
	Backward(inputs []*tensor.Tensor, gradOutput *tensor.Tensor, backend tensor.Backend) ([]*tensor.Tensor, error)

	// OutputShape infers the output shape from the input shapes without
	// running any kernel.
	OutputShape(inputShapes []tensor.Shape) (tensor.Shape, error)
}

// Operation is a node's computation: a closed tagged variant with per-kind
// configuration. Op nodes hold configuration only — tensor data lives in
// leaf nodes and the value cache.
type Operation struct {
	Kind OpKind

	// Conv2D / MaxPool2D configuration.
	Stride     int
	Padding    int
	KernelSize int

	// Reshape configuration.
	TargetShape tensor.Shape

	// OpCustom payload.
	Custom CustomOp
}

// MatMul returns a matrix-multiplication operation: inputs [a, b] → a @ b.
func MatMul() *Operation { return &Operation{Kind: OpMatMul} }

// Add returns an element-wise addition with NumPy-style broadcasting.
func Add() *Operation { return &Operation{Kind: OpAdd} }

// ReLU returns a rectified-linear activation.
func ReLU() *Operation { return &Operation{Kind: OpReLU} }

// Sigmoid returns a sigmoid activation.
func Sigmoid() *Operation { return &Operation{Kind: OpSigmoid} }

// AddReLU returns the fused Add+ReLU operation produced by the fusion pass.
func AddReLU() *Operation { return &Operation{Kind: OpAddReLU} }

// Conv2D returns a 2D convolution: inputs [input, kernel], NCHW layout.
func Conv2D(stride, padding int) *Operation {
	return &Operation{Kind: OpConv2D, Stride: stride, Padding: padding}
}

// MaxPool2D returns a 2D max-pooling operation.
func MaxPool2D(kernelSize, stride int) *Operation {
	return &Operation{Kind: OpMaxPool2D, KernelSize: kernelSize, Stride: stride}
}

// Reshape returns a metadata-only reshape to the target shape.
func Reshape(shape tensor.Shape) *Operation {
	return &Operation{Kind: OpReshape, TargetShape: shape.Clone()}
}

// Custom wraps a user operation.
func Custom(op CustomOp) *Operation { return &Operation{Kind: OpCustom, Custom: op} }

// Name returns the operation name.
func (op *Operation) Name() string {
	switch op.Kind {
	case OpMatMul:
		return "MatMul"
	case OpAdd:
		return "Add"
	case OpReLU:
		return "ReLU"
	case OpSigmoid:
		return "Sigmoid"
	case OpAddReLU:
		return "AddReLU"
	case OpConv2D:
		return "Conv2D"
	case OpMaxPool2D:
		return "MaxPool2D"
	case OpReshape:
		return "Reshape"
	case OpCustom:
		return op.Custom.Name()
	default:
		return "Unknown"
	}
}

// Forward computes the operation's output, allocating the result.
func (op *Operation) Forward(inputs []*tensor.Tensor, b tensor.Backend) (*tensor.Tensor, error) {
	switch op.Kind {
	case OpMatMul:
		return b.MatMulT(inputs[0], inputs[1], false, false)
	case OpAdd:
		return b.Add(inputs[0], inputs[1])
	case OpReLU:
		return b.ReLU(inputs[0])
	case OpSigmoid:
		return b.Sigmoid(inputs[0])
	case OpAddReLU:
		return b.AddReLU(inputs[0], inputs[1])
	case OpConv2D:
		return b.Conv2D(inputs[0], inputs[1], op.Stride, op.Padding)
	case OpMaxPool2D:
		return b.MaxPool2D(inputs[0], op.KernelSize, op.Stride)
	case OpReshape:
		// Clone so the output does not alias the input's cache slot.
		return inputs[0].Clone().Reshape(op.TargetShape)
	case OpCustom:
		return op.Custom.Forward(inputs, b)
	default:
		return nil, fmt.Errorf("forward: unknown operation kind %d", op.Kind)
	}
}

// forwardInto writes the result into dst instead of allocating. Returns
// false when the operation has no in-place kernel; the executor then falls
// back to Forward.
func (op *Operation) forwardInto(dst *tensor.Tensor, inputs []*tensor.Tensor, b tensor.Backend) (bool, error) {
	switch op.Kind {
	case OpAdd:
		return true, b.AddInto(dst, inputs[0], inputs[1])
	case OpReLU:
		return true, b.ReLUInto(dst, inputs[0])
	case OpAddReLU:
		return true, b.AddReLUInto(dst, inputs[0], inputs[1])
	default:
		return false, nil
	}
}

// Backward computes one gradient per input, in input order.
func (op *Operation) Backward(inputs []*tensor.Tensor, gradOutput *tensor.Tensor, b tensor.Backend) ([]*tensor.Tensor, error) {
	switch op.Kind {
	case OpMatMul:
		// d(A@B)/dA = grad @ Bᵀ, d(A@B)/dB = Aᵀ @ grad
		gradA, err := b.MatMulT(gradOutput, inputs[1], false, true)
		if err != nil {
			return nil, err
		}
		gradB, err := b.MatMulT(inputs[0], gradOutput, true, false)
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{gradA, gradB}, nil

	case OpAdd:
		gradA, err := reduceToShape(gradOutput, inputs[0].Shape(), b)
		if err != nil {
			return nil, err
		}
		gradB, err := reduceToShape(gradOutput, inputs[1].Shape(), b)
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{gradA, gradB}, nil

	case OpReLU:
		grad, err := b.ReLUBackward(inputs[0], gradOutput)
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{grad}, nil

	case OpSigmoid:
		// SigmoidBackward wants y = sigmoid(x).
		y, err := b.Sigmoid(inputs[0])
		if err != nil {
			return nil, err
		}
		grad, err := b.SigmoidBackward(y, gradOutput)
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{grad}, nil

	case OpAddReLU:
		// Mask the gradient by the sign of a+b, then reduce each side
		// back to its pre-broadcast shape.
		sum, err := b.Add(inputs[0], inputs[1])
		if err != nil {
			return nil, err
		}
		masked, err := b.ReLUBackward(sum, gradOutput)
		if err != nil {
			return nil, err
		}
		gradA, err := reduceToShape(masked, inputs[0].Shape(), b)
		if err != nil {
			return nil, err
		}
		gradB, err := reduceToShape(masked, inputs[1].Shape(), b)
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{gradA, gradB}, nil

	case OpConv2D:
		gradInput, gradKernel, err := b.Conv2DBackward(inputs[0], inputs[1], gradOutput, op.Stride, op.Padding)
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{gradInput, gradKernel}, nil

	case OpMaxPool2D:
		grad, err := b.MaxPool2DBackward(inputs[0], gradOutput, op.KernelSize, op.Stride)
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{grad}, nil

	case OpReshape:
		grad, err := gradOutput.Clone().Reshape(inputs[0].Shape())
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{grad}, nil

	case OpCustom:
		return op.Custom.Backward(inputs, gradOutput, b)

	default:
		return nil, fmt.Errorf("backward: unknown operation kind %d", op.Kind)
	}
}

// OutputShape infers the output shape from input shapes without executing
// any kernel. Shape mismatches surface as *ShapeError.
func (op *Operation) OutputShape(inputShapes []tensor.Shape) (tensor.Shape, error) {
	switch op.Kind {
	case OpMatMul:
		a, b := inputShapes[0], inputShapes[1]
		if len(a) != 2 || len(b) != 2 {
			return nil, &ShapeError{Op: "MatMul", Expected: tensor.Shape{2}, Found: tensor.Shape{len(a), len(b)}}
		}
		if a[1] != b[0] {
			return nil, &ShapeError{Op: "MatMul", Expected: tensor.Shape{a[1]}, Found: tensor.Shape{b[0]}}
		}
		return tensor.Shape{a[0], b[1]}, nil

	case OpAdd, OpAddReLU:
		out, err := tensor.Broadcast(inputShapes[0], inputShapes[1])
		if err != nil {
			return nil, &ShapeError{Op: op.Name(), Expected: inputShapes[0], Found: inputShapes[1]}
		}
		return out, nil

	case OpReLU, OpSigmoid:
		return inputShapes[0].Clone(), nil

	case OpConv2D:
		in, k := inputShapes[0], inputShapes[1]
		if len(in) != 4 || len(k) != 4 {
			return nil, &ShapeError{Op: "Conv2D", Expected: tensor.Shape{4}, Found: tensor.Shape{len(in), len(k)}}
		}
		if in[1] != k[1] {
			return nil, &ShapeError{Op: "Conv2D", Expected: tensor.Shape{in[1]}, Found: tensor.Shape{k[1]}}
		}
		oh := (in[2]+2*op.Padding-k[2])/op.Stride + 1
		ow := (in[3]+2*op.Padding-k[3])/op.Stride + 1
		if oh < 1 || ow < 1 {
			return nil, &ShapeError{Op: "Conv2D", Expected: tensor.Shape{k[2], k[3]}, Found: tensor.Shape{in[2], in[3]}}
		}
		return tensor.Shape{in[0], k[0], oh, ow}, nil

	case OpMaxPool2D:
		in := inputShapes[0]
		if len(in) != 4 {
			return nil, &ShapeError{Op: "MaxPool2D", Expected: tensor.Shape{4}, Found: tensor.Shape{len(in)}}
		}
		oh := (in[2]-op.KernelSize)/op.Stride + 1
		ow := (in[3]-op.KernelSize)/op.Stride + 1
		if oh < 1 || ow < 1 {
			return nil, &ShapeError{Op: "MaxPool2D", Expected: tensor.Shape{op.KernelSize, op.KernelSize}, Found: tensor.Shape{in[2], in[3]}}
		}
		return tensor.Shape{in[0], in[1], oh, ow}, nil

	case OpReshape:
		if inputShapes[0].NumElements() != op.TargetShape.NumElements() {
			return nil, &ShapeError{Op: "Reshape", Expected: op.TargetShape, Found: inputShapes[0]}
		}
		return op.TargetShape.Clone(), nil

	case OpCustom:
		return op.Custom.OutputShape(inputShapes)

	default:
		return nil, fmt.Errorf("output_shape: unknown operation kind %d", op.Kind)
	}
}

// arity returns the expected input count, or -1 when variable.
func (op *Operation) arity() int {
	switch op.Kind {
	case OpMatMul, OpAdd, OpAddReLU, OpConv2D:
		return 2
	case OpReLU, OpSigmoid, OpMaxPool2D, OpReshape:
		return 1
	default:
		return -1
	}
}

// reduceToShape sums grad back to the pre-broadcast target shape: leading
// dimensions absent from the target are reduced, as is every dimension that
// is 1 in the target but >1 in grad — the exact inverse of the forward
// broadcast rule.
func reduceToShape(grad *tensor.Tensor, target tensor.Shape, b tensor.Backend) (*tensor.Tensor, error) {
	gradShape := grad.Shape()
	if gradShape.Equal(target) {
		return grad.Clone(), nil
	}

	var axes []int
	extra := len(gradShape) - len(target)
	for i := 0; i < extra; i++ {
		axes = append(axes, i)
	}
	for i := 0; i < len(target); i++ {
		g := len(gradShape) - 1 - i
		t := len(target) - 1 - i
		if target[t] == 1 && gradShape[g] > 1 {
			axes = append(axes, g)
		}
	}

	if len(axes) == 0 {
		// Same element count, different rank (e.g. [2] vs [1,2]).
		return grad.Clone().Reshape(target)
	}

	reduced, err := b.ReduceSum(grad, axes, true)
	if err != nil {
		return nil, err
	}
	if !reduced.Shape().Equal(target) {
		return reduced.Reshape(target)
	}
	return reduced, nil
}
