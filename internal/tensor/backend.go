package tensor

// Backend is the kernel capability surface the graph engine calls but never
// implements. Every kernel is a deterministic function of its inputs and
// returns an error instead of panicking, so a failing node surfaces to the
// caller of the engine.
//
// The *Into variants write into a caller-provided output tensor instead of
// allocating; the executor uses them whenever a buffer already exists for a
// node. A kernel may parallelize internally (partitioning the batch or row
// dimension across workers) as long as each worker writes a disjoint region
// of the output.
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *Tensor) (*Tensor, error)
	AddInto(dst, a, b *Tensor) error
	Mul(a, b *Tensor) (*Tensor, error)

	// MatMulT multiplies two matrices with optional transposition:
	// op(a) @ op(b) where op(x) = xᵀ when the flag is set.
	MatMulT(a, b *Tensor, transA, transB bool) (*Tensor, error)

	// Convolution and pooling with their gradients.
	Conv2D(input, kernel *Tensor, stride, padding int) (*Tensor, error)
	Conv2DBackward(input, kernel, gradOutput *Tensor, stride, padding int) (gradInput, gradKernel *Tensor, err error)
	MaxPool2D(input *Tensor, kernelSize, stride int) (*Tensor, error)
	MaxPool2DBackward(input, gradOutput *Tensor, kernelSize, stride int) (*Tensor, error)

	// Activations. SigmoidBackward takes y = Sigmoid(x), not x: the
	// derivative y·(1−y) is cheaper from the forward output.
	ReLU(x *Tensor) (*Tensor, error)
	ReLUInto(dst, x *Tensor) error
	ReLUBackward(x, gradOutput *Tensor) (*Tensor, error)
	Sigmoid(x *Tensor) (*Tensor, error)
	SigmoidBackward(y, gradOutput *Tensor) (*Tensor, error)

	// Fused Add+ReLU, one pass over memory.
	AddReLU(a, b *Tensor) (*Tensor, error)
	AddReLUInto(dst, a, b *Tensor) error

	// ReduceSum sums over the given axes. With keepDims the reduced axes
	// stay in the output shape with size 1.
	ReduceSum(x *Tensor, axes []int, keepDims bool) (*Tensor, error)

	// UpdateParameter applies an in-place gradient-descent step:
	// param -= lr * grad.
	UpdateParameter(param, grad *Tensor, lr float32) error

	// Metadata
	Name() string
	Device() Device
}
