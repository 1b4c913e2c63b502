package nn

import (
	"fmt"
	"math"

	"github.com/pointproc/go-tpp/tensor"
)

// GRUCell implements a gated recurrent unit for encoding event histories one
// step at a time:
//
//	z = sigma(x Wz + h Uz + bz)
//	r = sigma(x Wr + h Ur + br)
//	c = tanh(x Wh + (r*h) Uh + bh)
//	h' = (1-z)*h + z*c
type GRUCell struct {
	inputSize  int
	hiddenSize int

	wz, uz, bz *tensor.Tensor
	wr, ur, br *tensor.Tensor
	wh, uh, bh *tensor.Tensor

	training bool
}

// NewGRUCell creates a GRU cell with Xavier-initialized input and recurrent
// weights and zero biases.
func NewGRUCell(inputSize, hiddenSize int) (*GRUCell, error) {
	if inputSize <= 0 || hiddenSize <= 0 {
		return nil, fmt.Errorf("gru cell sizes must be positive, got %d and %d", inputSize, hiddenSize)
	}

	cell := &GRUCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		training:   true,
	}

	inputBound := math.Sqrt(6.0 / float64(inputSize+hiddenSize))
	recurBound := math.Sqrt(6.0 / float64(2*hiddenSize))

	var err error
	newInput := func() *tensor.Tensor {
		if err != nil {
			return nil
		}
		var t *tensor.Tensor
		t, err = tensor.RandomUniform([]int{inputSize, hiddenSize}, inputBound, globalRng)
		if t != nil {
			t.SetRequiresGrad(true)
		}
		return t
	}
	newRecur := func() *tensor.Tensor {
		if err != nil {
			return nil
		}
		var t *tensor.Tensor
		t, err = tensor.RandomUniform([]int{hiddenSize, hiddenSize}, recurBound, globalRng)
		if t != nil {
			t.SetRequiresGrad(true)
		}
		return t
	}
	newBias := func() *tensor.Tensor {
		if err != nil {
			return nil
		}
		var t *tensor.Tensor
		t, err = tensor.Zeros([]int{hiddenSize}, tensor.Float32)
		if t != nil {
			t.SetRequiresGrad(true)
		}
		return t
	}

	cell.wz, cell.uz, cell.bz = newInput(), newRecur(), newBias()
	cell.wr, cell.ur, cell.br = newInput(), newRecur(), newBias()
	cell.wh, cell.uh, cell.bh = newInput(), newRecur(), newBias()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gru cell: %v", err)
	}

	return cell, nil
}

// HiddenSize returns the dimensionality of the hidden state.
func (g *GRUCell) HiddenSize() int {
	return g.hiddenSize
}

// InitState returns an all-zero hidden state for a batch of the given size.
func (g *GRUCell) InitState(batchSize int) (*tensor.Tensor, error) {
	return tensor.Zeros([]int{batchSize, g.hiddenSize}, tensor.Float32)
}

// gate computes sigma-or-tanh(x W + s U + b) where s is the (possibly gated)
// hidden state.
func (g *GRUCell) gate(x, s, w, u, b *tensor.Tensor) (*tensor.Tensor, error) {
	xw, err := tensor.MatMulAutograd(x, w)
	if err != nil {
		return nil, err
	}
	su, err := tensor.MatMulAutograd(s, u)
	if err != nil {
		return nil, err
	}
	sum, err := tensor.AddAutograd(xw, su)
	if err != nil {
		return nil, err
	}
	return tensor.AddAutograd(sum, b)
}

// Step advances the hidden state by one event. x is [batch, inputSize] and h
// is [batch, hiddenSize]; the returned state has the same shape as h.
func (g *GRUCell) Step(x, h *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != g.inputSize {
		return nil, fmt.Errorf("gru step expects input [batch, %d], got shape %v", g.inputSize, x.Shape)
	}
	if len(h.Shape) != 2 || h.Shape[1] != g.hiddenSize {
		return nil, fmt.Errorf("gru step expects state [batch, %d], got shape %v", g.hiddenSize, h.Shape)
	}

	zPre, err := g.gate(x, h, g.wz, g.uz, g.bz)
	if err != nil {
		return nil, fmt.Errorf("update gate failed: %v", err)
	}
	z, err := tensor.SigmoidAutograd(zPre)
	if err != nil {
		return nil, err
	}

	rPre, err := g.gate(x, h, g.wr, g.ur, g.br)
	if err != nil {
		return nil, fmt.Errorf("reset gate failed: %v", err)
	}
	r, err := tensor.SigmoidAutograd(rPre)
	if err != nil {
		return nil, err
	}

	gated, err := tensor.MulAutograd(r, h)
	if err != nil {
		return nil, err
	}
	cPre, err := g.gate(x, gated, g.wh, g.uh, g.bh)
	if err != nil {
		return nil, fmt.Errorf("candidate state failed: %v", err)
	}
	c, err := tensor.TanhAutograd(cPre)
	if err != nil {
		return nil, err
	}

	ones, err := tensor.Ones(z.Shape, tensor.Float32)
	if err != nil {
		return nil, err
	}
	keep, err := tensor.SubAutograd(ones, z)
	if err != nil {
		return nil, err
	}
	kept, err := tensor.MulAutograd(keep, h)
	if err != nil {
		return nil, err
	}
	updated, err := tensor.MulAutograd(z, c)
	if err != nil {
		return nil, err
	}
	return tensor.AddAutograd(kept, updated)
}

// Parameters returns the trainable parameters.
func (g *GRUCell) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{
		g.wz, g.uz, g.bz,
		g.wr, g.ur, g.br,
		g.wh, g.uh, g.bh,
	}
}

// Train sets the module to training mode.
func (g *GRUCell) Train() {
	g.training = true
}

// Eval sets the module to evaluation mode.
func (g *GRUCell) Eval() {
	g.training = false
}

// IsTraining returns true if in training mode.
func (g *GRUCell) IsTraining() bool {
	return g.training
}
