// Copyright 2025 The Loom Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph is the public surface of Loom's dataflow engine.
//
// A Graph is a dynamically built DAG of tensor operations. Executing a node
// evaluates its dependencies in topological order with value caching;
// Backward runs reverse-mode automatic differentiation from any executed
// node. Optional passes rewrite the graph (kernel fusion) or reuse buffers
// across intermediates (memory planning).
//
//	b := graph.NewBuilder(cpu.New())
//	x := b.Val(input)
//	w := b.Param(weights)
//	out := b.Sigmoid(b.Linear(x, w, b.Param(bias)))
//	if err := b.Err(); err != nil {
//	    return err
//	}
//
//	g := b.Graph()
//	pred, err := g.Execute(out)
//	...
//	err = g.Backward(out, nil)
//	err = g.UpdateParameters(0.01)
package graph
