package tensor

import (
	"fmt"
)

// MatMul multiplies two 2D Float32 tensors: [m,k] x [k,n] -> [m,n].
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("matmul requires Float32 tensors, got %s and %s", a.DType, b.DType)
	}
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got shapes %v and %v", a.Shape, b.Shape)
	}
	m, k := a.Shape[0], a.Shape[1]
	k2, n := b.Shape[0], b.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("matmul dimension mismatch: %v x %v", a.Shape, b.Shape)
	}

	out, err := Zeros([]int{m, n}, Float32)
	if err != nil {
		return nil, err
	}
	ad := a.Data.([]float32)
	bd := b.Data.([]float32)
	od := out.Data.([]float32)

	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			av := ad[i*k+p]
			if av == 0 {
				continue
			}
			row := bd[p*n : (p+1)*n]
			outRow := od[i*n : (i+1)*n]
			for j := range row {
				outRow[j] += av * row[j]
			}
		}
	}
	return out, nil
}

// Transpose swaps the two dimensions of a 2D tensor.
func Transpose(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("transpose requires a Float32 tensor, got %s", t.DType)
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("transpose requires a 2D tensor, got shape %v", t.Shape)
	}
	m, n := t.Shape[0], t.Shape[1]
	out, err := Zeros([]int{n, m}, Float32)
	if err != nil {
		return nil, err
	}
	in := t.Data.([]float32)
	od := out.Data.([]float32)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			od[j*m+i] = in[i*n+j]
		}
	}
	return out, nil
}

// Reshape returns a copy of the tensor with a new shape holding the same
// number of elements.
func Reshape(t *Tensor, shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if calculateNumElements(shape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape %v to %v: element count differs", t.Shape, shape)
	}
	clone, err := t.Clone()
	if err != nil {
		return nil, err
	}
	clone.Shape = append([]int(nil), shape...)
	clone.Strides = calculateStrides(shape)
	return clone, nil
}
