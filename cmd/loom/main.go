// Package main provides the Loom CLI.
package main

import (
	"fmt"
	"os"

	"github.com/loom-ml/loom/graph"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("Loom %s\n", version)
			return
		case "inspect":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: loom inspect <graph.json>")
				os.Exit(2)
			}
			if err := inspect(os.Args[2]); err != nil {
				fmt.Fprintf(os.Stderr, "loom: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Println("Loom - dataflow tensor engine for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version             Show version")
	fmt.Println("  inspect <file>      Summarize a saved graph")
}

// inspect loads a saved graph, verifies it, and prints a per-node summary.
func inspect(path string) error {
	g, err := graph.LoadFile(path)
	if err != nil {
		return err
	}
	if err := g.Verify(); err != nil {
		return err
	}

	fmt.Printf("%s: %d nodes\n", path, g.NumNodes())
	for id := 0; id < g.NumNodes(); id++ {
		n, err := g.Node(graph.NodeID(id))
		if err != nil {
			return err
		}
		switch n.Kind {
		case graph.KindOp:
			fmt.Printf("  %4d  %-10s inputs=%v\n", id, n.Op.Name(), n.Inputs)
		default:
			fmt.Printf("  %4d  %-10s shape=%v dtype=%s\n", id, n.Kind, n.Tensor.Shape(), n.Tensor.DType())
		}
	}
	return nil
}
