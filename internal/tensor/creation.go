package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	return New(shape, dtype, device)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	return Full(shape, 1.0, dtype, device)
}

// Full creates a tensor filled with a single value.
func Full(shape Shape, value float64, dtype DataType, device Device) (*Tensor, error) {
	t, err := New(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		data := t.AsFloat32()
		v := float32(value)
		for i := range data {
			data[i] = v
		}
	case Float64:
		data := t.AsFloat64()
		for i := range data {
			data[i] = value
		}
	}
	return t, nil
}

// FromFloat32 creates a Float32 tensor on CPU from a Go slice.
// The slice is copied into the tensor's memory.
func FromFloat32(data []float32, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := New(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat32(), data)
	return t, nil
}

// FromFloat64 creates a Float64 tensor on CPU from a Go slice.
// The slice is copied into the tensor's memory.
func FromFloat64(data []float64, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := New(shape, Float64, CPU)
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat64(), data)
	return t, nil
}

// Randn creates a Float32 CPU tensor with values drawn from N(0, 1) using
// the given source. A nil source uses the shared global generator.
func Randn(shape Shape, rng *rand.Rand) (*Tensor, error) {
	t, err := New(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	data := t.AsFloat32()
	for i := range data {
		if rng != nil {
			data[i] = float32(rng.NormFloat64())
		} else {
			data[i] = float32(rand.NormFloat64())
		}
	}
	return t, nil
}
