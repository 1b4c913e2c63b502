package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor creates a tensor from existing data. The data slice must match
// the dtype and contain exactly the number of elements implied by shape.
func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	t := &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		NumElems: numElems,
	}

	if err := t.setData(data); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float32:
		d, ok := data.([]float32)
		if !ok {
			return fmt.Errorf("expected []float32 for Float32 tensor, got %T", data)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), t.Shape, t.NumElems)
		}
		t.Data = d
	case Int32:
		d, ok := data.([]int32)
		if !ok {
			return fmt.Errorf("expected []int32 for Int32 tensor, got %T", data)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), t.Shape, t.NumElems)
		}
		t.Data = d
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

// SetData replaces the tensor's backing data in place.
func (t *Tensor) SetData(data interface{}) error {
	return t.setData(data)
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape []int, dtype DType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		return NewTensor(shape, dtype, make([]float32, n))
	case Int32:
		return NewTensor(shape, dtype, make([]int32, n))
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// Ones creates a tensor filled with ones.
func Ones(shape []int, dtype DType) (*Tensor, error) {
	t, err := Zeros(shape, dtype)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		data := t.Data.([]float32)
		for i := range data {
			data[i] = 1
		}
	case Int32:
		data := t.Data.([]int32)
		for i := range data {
			data[i] = 1
		}
	}
	return t, nil
}

// Full creates a Float32 tensor filled with a constant value.
func Full(shape []int, value float32) (*Tensor, error) {
	t, err := Zeros(shape, Float32)
	if err != nil {
		return nil, err
	}
	data := t.Data.([]float32)
	for i := range data {
		data[i] = value
	}
	return t, nil
}

// FromScalar wraps a single value in a [1] tensor.
func FromScalar(value float64) *Tensor {
	t, _ := NewTensor([]int{1}, Float32, []float32{float32(value)})
	return t
}

// RandomNormal creates a Float32 tensor with normally distributed entries
// drawn from the supplied source.
func RandomNormal(shape []int, mean, std float64, rng *rand.Rand) (*Tensor, error) {
	t, err := Zeros(shape, Float32)
	if err != nil {
		return nil, err
	}
	data := t.Data.([]float32)
	for i := range data {
		data[i] = float32(rng.NormFloat64()*std + mean)
	}
	return t, nil
}

// RandomUniform creates a Float32 tensor with entries drawn uniformly from
// [-bound, bound).
func RandomUniform(shape []int, bound float64, rng *rand.Rand) (*Tensor, error) {
	t, err := Zeros(shape, Float32)
	if err != nil {
		return nil, err
	}
	data := t.Data.([]float32)
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	return t, nil
}
