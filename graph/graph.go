// Copyright 2025 The Loom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"io"

	"github.com/loom-ml/loom/internal/graph"
	"github.com/loom-ml/loom/tensor"
)

// Backend is the kernel surface graphs execute against.
type Backend = tensor.Backend

// Shape re-exports tensor.Shape for operation constructors.
type Shape = tensor.Shape

// Graph is a dynamically built dataflow DAG with value and gradient caches.
type Graph = graph.Graph

// NodeID identifies a node in a graph.
type NodeID = graph.NodeID

// Node is one entry in a graph's node list.
type Node = graph.Node

// NodeKind discriminates Input, Param and Op nodes.
type NodeKind = graph.NodeKind

// Node kinds.
const (
	KindInput = graph.KindInput
	KindParam = graph.KindParam
	KindOp    = graph.KindOp
)

// Operation is a node's computation.
type Operation = graph.Operation

// OpKind enumerates the built-in operations.
type OpKind = graph.OpKind

// Built-in operation kinds.
const (
	OpMatMul    = graph.OpMatMul
	OpAdd       = graph.OpAdd
	OpReLU      = graph.OpReLU
	OpSigmoid   = graph.OpSigmoid
	OpAddReLU   = graph.OpAddReLU
	OpConv2D    = graph.OpConv2D
	OpMaxPool2D = graph.OpMaxPool2D
	OpReshape   = graph.OpReshape
	OpCustom    = graph.OpCustom
)

// CustomOp is the extension point for user-defined operations.
type CustomOp = graph.CustomOp

// Builder offers chainable graph construction with sticky errors.
type Builder = graph.Builder

// MemoryPlan maps Op nodes to logical buffer indices.
type MemoryPlan = graph.MemoryPlan

// BufferPool materializes logical buffer indices as reusable tensors.
type BufferPool = graph.BufferPool

// Error types surfaced by the engine.
type (
	ShapeError         = graph.ShapeError
	CycleError         = graph.CycleError
	ValueNotFoundError = graph.ValueNotFoundError
	DeviceError        = graph.DeviceError
)

// ErrBackendNotInitialized is returned when Execute or Backward runs before
// SetBackend.
var ErrBackendNotInitialized = graph.ErrBackendNotInitialized

// New returns an empty graph with no backend attached.
func New() *Graph { return graph.New() }

// NewBuilder returns a builder over a fresh graph using the given backend.
func NewBuilder(b Backend) *Builder { return graph.NewBuilder(b) }

// Load reads a graph written by Graph.Save. The result has no backend
// attached.
func Load(r io.Reader) (*Graph, error) { return graph.Load(r) }

// LoadFile reads a graph from a file written by Graph.SaveFile.
func LoadFile(path string) (*Graph, error) { return graph.LoadFile(path) }

// RegisterCustomOp makes a custom operation loadable by name.
func RegisterCustomOp(name string, factory func() CustomOp) {
	graph.RegisterCustomOp(name, factory)
}

// Operation constructors.
var (
	MatMul  = graph.MatMul
	Add     = graph.Add
	ReLU    = graph.ReLU
	Sigmoid = graph.Sigmoid
	AddReLU = graph.AddReLU
	Custom  = graph.Custom
)

// Conv2D returns a 2D convolution operation.
func Conv2D(stride, padding int) *Operation { return graph.Conv2D(stride, padding) }

// MaxPool2D returns a 2D max-pooling operation.
func MaxPool2D(kernelSize, stride int) *Operation { return graph.MaxPool2D(kernelSize, stride) }

// Reshape returns a metadata-only reshape operation.
func Reshape(shape Shape) *Operation { return graph.Reshape(shape) }
