package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/loom-ml/loom/internal/tensor"
)

// formatVersion is bumped on incompatible changes to the on-disk layout.
const formatVersion = 1

var customOps = struct {
	sync.RWMutex
	factories map[string]func() CustomOp
}{factories: make(map[string]func() CustomOp)}

// RegisterCustomOp makes a custom operation loadable by name. The factory
// returns a zero-value instance; any persisted configuration is then
// unmarshaled into it. Registration typically happens in an init function
// of the package defining the operation.
func RegisterCustomOp(name string, factory func() CustomOp) {
	customOps.Lock()
	defer customOps.Unlock()
	customOps.factories[name] = factory
}

func lookupCustomOp(name string) (func() CustomOp, bool) {
	customOps.RLock()
	defer customOps.RUnlock()
	f, ok := customOps.factories[name]
	return f, ok
}

type jsonGraph struct {
	Version int        `json:"version"`
	Nodes   []jsonNode `json:"nodes"`
}

type jsonNode struct {
	Kind   string      `json:"kind"`
	Tensor *jsonTensor `json:"tensor,omitempty"`
	Op     *jsonOp     `json:"op,omitempty"`
	Inputs []NodeID    `json:"inputs,omitempty"`
}

type jsonTensor struct {
	Shape tensor.Shape `json:"shape"`
	DType string       `json:"dtype"`
	Data  []byte       `json:"data"` // raw little-endian bytes, base64 on the wire
}

type jsonOp struct {
	Kind        string          `json:"kind"`
	Stride      int             `json:"stride,omitempty"`
	Padding     int             `json:"padding,omitempty"`
	KernelSize  int             `json:"kernel_size,omitempty"`
	TargetShape tensor.Shape    `json:"target_shape,omitempty"`
	Custom      json.RawMessage `json:"custom,omitempty"`
}

// Save writes the graph's structure and leaf tensors as JSON. Cached values,
// gradients, and the backend are transient and never persisted; a loaded
// graph needs SetBackend before execution.
func (g *Graph) Save(w io.Writer) error {
	out := jsonGraph{Version: formatVersion, Nodes: make([]jsonNode, len(g.nodes))}

	for i, n := range g.nodes {
		jn := jsonNode{Kind: n.Kind.String(), Inputs: n.Inputs}
		if n.Kind != KindOp {
			jn.Tensor = &jsonTensor{
				Shape: n.Tensor.Shape(),
				DType: n.Tensor.DType().String(),
				Data:  n.Tensor.Data(),
			}
		} else {
			jop, err := marshalOp(n.Op)
			if err != nil {
				return fmt.Errorf("save: node %d: %w", i, err)
			}
			jn.Op = jop
		}
		out.Nodes[i] = jn
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// SaveFile writes the graph to a file, creating or truncating it.
func (g *Graph) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer f.Close()
	if err := g.Save(f); err != nil {
		return err
	}
	return f.Close()
}

// Load reads a graph written by Save. Custom operations must have been
// registered with RegisterCustomOp under the name they report. The loaded
// graph has no backend attached.
func Load(r io.Reader) (*Graph, error) {
	var in jsonGraph
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if in.Version != formatVersion {
		return nil, fmt.Errorf("load: unsupported format version %d (want %d)", in.Version, formatVersion)
	}

	g := New()
	for i, jn := range in.Nodes {
		n := &Node{Inputs: jn.Inputs}
		switch jn.Kind {
		case KindInput.String():
			n.Kind = KindInput
		case KindParam.String():
			n.Kind = KindParam
		case KindOp.String():
			n.Kind = KindOp
		default:
			return nil, fmt.Errorf("load: node %d: unknown kind %q", i, jn.Kind)
		}

		if n.Kind != KindOp {
			if jn.Tensor == nil {
				return nil, fmt.Errorf("load: node %d: leaf without tensor", i)
			}
			t, err := unmarshalTensor(jn.Tensor)
			if err != nil {
				return nil, fmt.Errorf("load: node %d: %w", i, err)
			}
			n.Tensor = t
		} else {
			if jn.Op == nil {
				return nil, fmt.Errorf("load: node %d: op node without operation", i)
			}
			op, err := unmarshalOp(jn.Op)
			if err != nil {
				return nil, fmt.Errorf("load: node %d: %w", i, err)
			}
			n.Op = op
		}
		g.nodes = append(g.nodes, n)
	}

	if err := g.Verify(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return g, nil
}

// LoadFile reads a graph from a file written by SaveFile.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func marshalOp(op *Operation) (*jsonOp, error) {
	jop := &jsonOp{
		Kind:        op.Name(),
		Stride:      op.Stride,
		Padding:     op.Padding,
		KernelSize:  op.KernelSize,
		TargetShape: op.TargetShape,
	}
	if op.Kind == OpCustom {
		jop.Kind = "Custom"
		cfg, err := json.Marshal(struct {
			Name   string   `json:"name"`
			Config CustomOp `json:"config"`
		}{Name: op.Custom.Name(), Config: op.Custom})
		if err != nil {
			return nil, fmt.Errorf("custom op %s: %w", op.Custom.Name(), err)
		}
		jop.Custom = cfg
	}
	return jop, nil
}

func unmarshalOp(jop *jsonOp) (*Operation, error) {
	switch jop.Kind {
	case "MatMul":
		return MatMul(), nil
	case "Add":
		return Add(), nil
	case "ReLU":
		return ReLU(), nil
	case "Sigmoid":
		return Sigmoid(), nil
	case "AddReLU":
		return AddReLU(), nil
	case "Conv2D":
		return Conv2D(jop.Stride, jop.Padding), nil
	case "MaxPool2D":
		return MaxPool2D(jop.KernelSize, jop.Stride), nil
	case "Reshape":
		return Reshape(jop.TargetShape), nil
	case "Custom":
		var wrapped struct {
			Name   string          `json:"name"`
			Config json.RawMessage `json:"config"`
		}
		if err := json.Unmarshal(jop.Custom, &wrapped); err != nil {
			return nil, fmt.Errorf("custom op: %w", err)
		}
		factory, ok := lookupCustomOp(wrapped.Name)
		if !ok {
			return nil, fmt.Errorf("custom op %q not registered", wrapped.Name)
		}
		c := factory()
		if len(wrapped.Config) > 0 {
			if err := json.Unmarshal(wrapped.Config, c); err != nil {
				return nil, fmt.Errorf("custom op %q: %w", wrapped.Name, err)
			}
		}
		return Custom(c), nil
	default:
		return nil, fmt.Errorf("unknown operation %q", jop.Kind)
	}
}

func unmarshalTensor(jt *jsonTensor) (*tensor.Tensor, error) {
	var dtype tensor.DataType
	switch jt.DType {
	case tensor.Float32.String():
		dtype = tensor.Float32
	case tensor.Float64.String():
		dtype = tensor.Float64
	default:
		return nil, fmt.Errorf("unknown dtype %q", jt.DType)
	}

	t, err := tensor.New(jt.Shape, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	if len(jt.Data) != t.ByteSize() {
		return nil, fmt.Errorf("tensor data is %d bytes, shape %v needs %d", len(jt.Data), jt.Shape, t.ByteSize())
	}
	copy(t.Data(), jt.Data)
	return t, nil
}
