package decoder

import (
	"fmt"

	"github.com/pointproc/go-tpp/nn"
	"github.com/pointproc/go-tpp/tensor"
)

// Exponential models the next inter-event time with a conditional
// exponential distribution. The rate is a softplus-transformed linear
// function of the history encoding, so the density is
//
//	p(tau | h) = lambda(h) * exp(-lambda(h) * tau)
type Exponential struct {
	rate *nn.Linear
}

func newExponential(cfg Config) (Decoder, error) {
	rate, err := nn.NewLinear(cfg.HiddenSize, 1, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate head: %v", err)
	}
	return &Exponential{rate: rate}, nil
}

// LogProb computes log lambda - lambda*tau per event.
func (d *Exponential) LogProb(h, tau *tensor.Tensor) (*tensor.Tensor, error) {
	raw, err := d.rate.Forward(h)
	if err != nil {
		return nil, fmt.Errorf("rate head failed: %v", err)
	}
	lambda, err := tensor.SoftplusAutograd(raw)
	if err != nil {
		return nil, err
	}
	logLambda, err := tensor.LogAutograd(lambda)
	if err != nil {
		return nil, err
	}
	decay, err := tensor.MulAutograd(lambda, tau)
	if err != nil {
		return nil, err
	}
	return tensor.SubAutograd(logLambda, decay)
}

// Parameters returns the trainable parameters.
func (d *Exponential) Parameters() []*tensor.Tensor {
	return d.rate.Parameters()
}

// Name returns the registry name.
func (d *Exponential) Name() string {
	return "exponential"
}
