// Package tensor provides dense CPU tensors with define-by-run automatic
// differentiation. Tensors that participate in gradient computation carry a
// reference to the operation that created them; Backward walks that graph in
// reverse topological order and accumulates gradients into the leaves.
package tensor

import (
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

// Operation is one node in the autograd graph. Inputs returns the tensors the
// operation consumed during the forward pass; Backward maps the gradient of
// the operation's output to gradients of each input, in the same order.
type Operation interface {
	Inputs() []*Tensor
	Backward(gradOut *Tensor) ([]*Tensor, error)
}

type Tensor struct {
	Shape        []int
	Strides      []int
	DType        DType
	Data         interface{}
	NumElems     int
	requiresGrad bool
	grad         *Tensor
	creator      Operation
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, elements=%d)", t.Shape, t.DType, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// Backward computes gradients of t with respect to every tensor in its
// creation graph that requires them. t must be a scalar (a single element).
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a scalar tensor, got shape %v", t.Shape)
	}
	if t.DType != Float32 {
		return fmt.Errorf("backward requires a Float32 tensor, got %s", t.DType)
	}

	// Reverse topological order over the creation graph.
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(*Tensor)
	visit = func(v *Tensor) {
		if visited[v] {
			return
		}
		visited[v] = true
		if v.creator != nil {
			for _, in := range v.creator.Inputs() {
				visit(in)
			}
		}
		order = append(order, v)
	}
	visit(t)

	seed, err := Ones(t.Shape, Float32)
	if err != nil {
		return err
	}
	t.grad = seed

	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		if v.creator == nil || v.grad == nil {
			continue
		}
		grads, err := v.creator.Backward(v.grad)
		if err != nil {
			return fmt.Errorf("backward through %T failed: %v", v.creator, err)
		}
		inputs := v.creator.Inputs()
		if len(grads) != len(inputs) {
			return fmt.Errorf("backward through %T returned %d gradients for %d inputs",
				v.creator, len(grads), len(inputs))
		}
		for j, in := range inputs {
			if grads[j] == nil {
				continue
			}
			if !in.requiresGrad && in.creator == nil {
				continue
			}
			if err := in.accumulateGrad(grads[j]); err != nil {
				return fmt.Errorf("gradient accumulation failed: %v", err)
			}
		}
	}

	return nil
}

func (t *Tensor) accumulateGrad(g *Tensor) error {
	if !shapesEqual(g.Shape, t.Shape) {
		return fmt.Errorf("gradient shape %v does not match tensor shape %v", g.Shape, t.Shape)
	}
	if t.grad == nil {
		clone, err := g.Clone()
		if err != nil {
			return err
		}
		t.grad = clone
		return nil
	}
	dst := t.grad.Data.([]float32)
	src := g.Data.([]float32)
	for i := range dst {
		dst[i] += src[i]
	}
	return nil
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
