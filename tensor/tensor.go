// Copyright 2025 The Loom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/loom-ml/loom/internal/tensor"
)

// Tensor is a dense multi-dimensional array. See the internal/tensor package
// for the full method set.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents runtime type information for tensors.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// Device represents the storage location of a tensor's data.
type Device = tensor.Device

// Supported storage devices.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	WebGPU = tensor.WebGPU
)

// Backend is the kernel capability surface implemented by compute backends.
type Backend = tensor.Backend

// New creates a zero-filled tensor with the given shape and type.
func New(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	return tensor.New(shape, dtype, device)
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	return tensor.Zeros(shape, dtype, device)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	return tensor.Ones(shape, dtype, device)
}

// Full creates a tensor filled with a single value.
func Full(shape Shape, value float64, dtype DataType, device Device) (*Tensor, error) {
	return tensor.Full(shape, value, dtype, device)
}

// FromFloat32 creates a Float32 CPU tensor from a Go slice.
func FromFloat32(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromFloat32(data, shape)
}

// FromFloat64 creates a Float64 CPU tensor from a Go slice.
func FromFloat64(data []float64, shape Shape) (*Tensor, error) {
	return tensor.FromFloat64(data, shape)
}

// Randn creates a Float32 CPU tensor with values drawn from N(0, 1).
func Randn(shape Shape, rng *rand.Rand) (*Tensor, error) {
	return tensor.Randn(shape, rng)
}

// Broadcast applies NumPy-style broadcasting rules to two shapes.
func Broadcast(a, b Shape) (Shape, error) {
	return tensor.Broadcast(a, b)
}
