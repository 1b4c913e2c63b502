package tensor

import (
	"fmt"
)

// BroadcastShapes computes the result shape of broadcasting two shapes
// together using right-aligned dimension matching: each pair of dimensions
// must be equal, or one of them must be 1.
func BroadcastShapes(a, b []int) ([]int, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		switch {
		case da == db:
			out[n-1-i] = da
		case da == 1:
			out[n-1-i] = db
		case db == 1:
			out[n-1-i] = da
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable", a, b)
		}
	}
	return out, nil
}

// BroadcastTensor materializes a tensor expanded to the target shape.
// Returns the input unchanged when the shapes already match.
func BroadcastTensor(t *Tensor, target []int) (*Tensor, error) {
	if shapesEqual(t.Shape, target) {
		return t, nil
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("broadcasting only supports Float32 tensors, got %s", t.DType)
	}

	// Left-pad the source shape with 1s so both shapes have equal rank.
	src := make([]int, len(target))
	for i := range src {
		src[i] = 1
	}
	copy(src[len(target)-len(t.Shape):], t.Shape)
	for i := range target {
		if src[i] != target[i] && src[i] != 1 {
			return nil, fmt.Errorf("cannot broadcast shape %v to %v", t.Shape, target)
		}
	}

	out, err := Zeros(target, Float32)
	if err != nil {
		return nil, err
	}
	srcStrides := calculateStrides(src)
	srcData := t.Data.([]float32)
	outData := out.Data.([]float32)

	coords := make([]int, len(target))
	for i := 0; i < out.NumElems; i++ {
		rem := i
		for d := len(target) - 1; d >= 0; d-- {
			coords[d] = rem % target[d]
			rem /= target[d]
		}
		srcIdx := 0
		for d := range coords {
			c := coords[d]
			if src[d] == 1 {
				c = 0
			}
			srcIdx += c * srcStrides[d]
		}
		outData[i] = srcData[srcIdx]
	}
	return out, nil
}

// reduceGradientToShape sums a gradient over broadcast dimensions so that it
// matches the shape of the forward input that was broadcast.
func reduceGradientToShape(grad *Tensor, target []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, target) {
		return grad.Clone()
	}

	result := grad
	var err error

	// Sum away leading dimensions the target does not have.
	for len(result.Shape) > len(target) {
		result, err = sumOverDimension(result, 0)
		if err != nil {
			return nil, err
		}
	}

	// Sum dimensions that were expanded from size 1, keeping them in place.
	for d := 0; d < len(target); d++ {
		if result.Shape[d] != target[d] {
			if target[d] != 1 {
				return nil, fmt.Errorf("cannot reduce gradient shape %v to %v", grad.Shape, target)
			}
			summed, err := sumOverDimension(result, d)
			if err != nil {
				return nil, err
			}
			// Reinsert the size-1 dimension.
			newShape := make([]int, 0, len(target))
			newShape = append(newShape, summed.Shape[:d]...)
			newShape = append(newShape, 1)
			newShape = append(newShape, summed.Shape[d:]...)
			result, err = Reshape(summed, newShape)
			if err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// sumOverDimension sums a Float32 tensor over one dimension, dropping it.
// Summing the only dimension produces a [1] scalar.
func sumOverDimension(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("dimension %d out of bounds for tensor with %d dimensions", dim, len(t.Shape))
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("sum only supports Float32 tensors, got %s", t.DType)
	}

	outShape := make([]int, 0, len(t.Shape)-1)
	for i, size := range t.Shape {
		if i != dim {
			outShape = append(outShape, size)
		}
	}
	if len(outShape) == 0 {
		outShape = []int{1}
	}

	out, err := Zeros(outShape, Float32)
	if err != nil {
		return nil, err
	}

	inData := t.Data.([]float32)
	outData := out.Data.([]float32)

	inner := 1
	for i := dim + 1; i < len(t.Shape); i++ {
		inner *= t.Shape[i]
	}
	outer := t.NumElems / (inner * t.Shape[dim])

	for o := 0; o < outer; o++ {
		for k := 0; k < t.Shape[dim]; k++ {
			base := (o*t.Shape[dim] + k) * inner
			outBase := o * inner
			for j := 0; j < inner; j++ {
				outData[outBase+j] += inData[base+j]
			}
		}
	}
	return out, nil
}
