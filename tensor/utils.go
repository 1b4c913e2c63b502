package tensor

import (
	"fmt"
)

// Clone returns a deep copy of the tensor's shape and data. The clone does
// not carry gradient state or a creation graph.
func (t *Tensor) Clone() (*Tensor, error) {
	switch t.DType {
	case Float32:
		data := make([]float32, t.NumElems)
		copy(data, t.Data.([]float32))
		return NewTensor(t.Shape, t.DType, data)
	case Int32:
		data := make([]int32, t.NumElems)
		copy(data, t.Data.([]int32))
		return NewTensor(t.Shape, t.DType, data)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// Item extracts the single value of a scalar tensor as float64.
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("item requires a scalar tensor, got shape %v", t.Shape)
	}
	switch t.DType {
	case Float32:
		return float64(t.Data.([]float32)[0]), nil
	case Int32:
		return float64(t.Data.([]int32)[0]), nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// GetFloat32Data returns the raw backing slice of a Float32 tensor.
func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor is %s, not Float32", t.DType)
	}
	return t.Data.([]float32), nil
}

// At returns the value at the given indices of a Float32 tensor.
func (t *Tensor) At(indices ...int) (float32, error) {
	if t.DType != Float32 {
		return 0, fmt.Errorf("tensor is %s, not Float32", t.DType)
	}
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}
	idx := 0
	for i, c := range indices {
		if c < 0 || c >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for dimension %d (size %d)", c, i, t.Shape[i])
		}
		idx += c * t.Strides[i]
	}
	return t.Data.([]float32)[idx], nil
}

// ZeroGrad clears the gradients of the given tensors.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		t.grad = nil
	}
}

// Detach returns a tensor sharing the same data but severed from the
// autograd graph.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{
		Shape:    append([]int(nil), t.Shape...),
		Strides:  append([]int(nil), t.Strides...),
		DType:    t.DType,
		Data:     t.Data,
		NumElems: t.NumElems,
	}
}
