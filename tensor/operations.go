package tensor

import (
	"fmt"
	"math"
)

// binaryOp applies fn elementwise after broadcasting both operands to a
// common shape.
func binaryOp(a, b *Tensor, fn func(x, y float32) float32) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("elementwise operations require Float32 tensors, got %s and %s", a.DType, b.DType)
	}
	shape, err := BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, err
	}
	ab, err := BroadcastTensor(a, shape)
	if err != nil {
		return nil, err
	}
	bb, err := BroadcastTensor(b, shape)
	if err != nil {
		return nil, err
	}
	out, err := Zeros(shape, Float32)
	if err != nil {
		return nil, err
	}
	ad := ab.Data.([]float32)
	bd := bb.Data.([]float32)
	od := out.Data.([]float32)
	for i := range od {
		od[i] = fn(ad[i], bd[i])
	}
	return out, nil
}

func unaryOp(t *Tensor, fn func(x float32) float32) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("elementwise operations require Float32 tensors, got %s", t.DType)
	}
	out, err := Zeros(t.Shape, Float32)
	if err != nil {
		return nil, err
	}
	in := t.Data.([]float32)
	od := out.Data.([]float32)
	for i := range od {
		od[i] = fn(in[i])
	}
	return out, nil
}

// Add performs elementwise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs elementwise subtraction with broadcasting.
func Sub(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs elementwise multiplication with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x * y })
}

// Div performs elementwise division with broadcasting.
func Div(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x / y })
}

// Tanh applies the hyperbolic tangent elementwise.
func Tanh(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 { return float32(math.Tanh(float64(x))) })
}

// Sigmoid applies the logistic function elementwise.
func Sigmoid(t *Tensor) (*Tensor, error) {
	return unaryOp(t, sigmoid32)
}

func sigmoid32(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// Exp applies the exponential elementwise.
func Exp(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 { return float32(math.Exp(float64(x))) })
}

// Log applies the natural logarithm elementwise.
func Log(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 { return float32(math.Log(float64(x))) })
}

// Softplus applies log(1+exp(x)) elementwise, computed in a numerically
// stable form.
func Softplus(t *Tensor) (*Tensor, error) {
	return unaryOp(t, softplus32)
}

func softplus32(x float32) float32 {
	v := float64(x)
	if v > 0 {
		return float32(v + math.Log1p(math.Exp(-v)))
	}
	return float32(math.Log1p(math.Exp(v)))
}

// Sqrt applies the square root elementwise.
func Sqrt(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 { return float32(math.Sqrt(float64(x))) })
}

// SumAll reduces a tensor to a [1] scalar containing the sum of all elements.
func SumAll(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("sum only supports Float32 tensors, got %s", t.DType)
	}
	data := t.Data.([]float32)
	var sum float32
	for _, v := range data {
		sum += v
	}
	return NewTensor([]int{1}, Float32, []float32{sum})
}

// LogSumExp computes log(sum(exp(x))) over the last dimension, keeping it as
// size 1. The max-shifted form keeps the result finite for large inputs.
func LogSumExp(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("logsumexp only supports Float32 tensors, got %s", t.DType)
	}
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("logsumexp requires at least one dimension")
	}
	last := t.Shape[len(t.Shape)-1]
	rows := t.NumElems / last

	outShape := append([]int(nil), t.Shape...)
	outShape[len(outShape)-1] = 1
	out, err := Zeros(outShape, Float32)
	if err != nil {
		return nil, err
	}
	in := t.Data.([]float32)
	od := out.Data.([]float32)
	for r := 0; r < rows; r++ {
		row := in[r*last : (r+1)*last]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - max))
		}
		od[r] = max + float32(math.Log(sum))
	}
	return out, nil
}
