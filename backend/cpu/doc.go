// Copyright 2025 The Loom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the reference CPU backend for Loom graphs.
//
// Matrix multiplication is delegated to gonum's float32 BLAS routines; the
// remaining kernels are pure Go and partition large workloads across
// goroutines. All kernels operate on Float32 tensors.
//
//	backend := cpu.New()
//	b := graph.NewBuilder(backend)
package cpu
