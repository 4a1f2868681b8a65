// Copyright 2025 The Loom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense tensor type used throughout Loom.
//
// A Tensor is a flat row-major buffer with runtime shape, dtype and device
// information. Tensors are created with the constructors in this package
// and consumed by graphs built with the graph package:
//
//	import (
//	    "github.com/loom-ml/loom/backend/cpu"
//	    "github.com/loom-ml/loom/graph"
//	    "github.com/loom-ml/loom/tensor"
//	)
//
//	x, _ := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{1, 2})
//	b := graph.NewBuilder(cpu.New())
//	out := b.ReLU(b.Val(x))
//	y, _ := b.Graph().Execute(out)
package tensor
