package nn

import (
	"fmt"
	"math"

	"github.com/pointproc/go-tpp/tensor"
)

// Linear implements a fully connected (dense) layer: y = xW + b.
type Linear struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	training bool
}

// NewLinear creates a new Linear layer with Xavier/Glorot uniform
// initialization: W ~ U(-sqrt(6/(fan_in+fan_out)), sqrt(6/(fan_in+fan_out))).
func NewLinear(inputSize, outputSize int, bias bool) (*Linear, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("linear layer sizes must be positive, got %d and %d", inputSize, outputSize)
	}

	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))
	weight, err := tensor.RandomUniform([]int{inputSize, outputSize}, bound, globalRng)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	l := &Linear{
		weight:   weight,
		training: true,
	}

	if bias {
		biasT, err := tensor.Zeros([]int{outputSize}, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		l.bias = biasT
	}

	return l, nil
}

// Forward performs the forward pass: y = xW + b.
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("linear layer expects 2D input [batch_size, input_size], got shape %v", input.Shape)
	}
	if input.Shape[1] != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], input.Shape[1])
	}

	output, err := tensor.MatMulAutograd(input, l.weight)
	if err != nil {
		return nil, fmt.Errorf("matmul failed: %v", err)
	}

	if l.bias != nil {
		output, err = tensor.AddAutograd(output, l.bias)
		if err != nil {
			return nil, fmt.Errorf("bias addition failed: %v", err)
		}
	}

	return output, nil
}

// Parameters returns the trainable parameters.
func (l *Linear) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{l.weight}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

// Train sets the module to training mode.
func (l *Linear) Train() {
	l.training = true
}

// Eval sets the module to evaluation mode.
func (l *Linear) Eval() {
	l.training = false
}

// IsTraining returns true if in training mode.
func (l *Linear) IsTraining() bool {
	return l.training
}
