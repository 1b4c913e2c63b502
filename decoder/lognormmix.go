package decoder

import (
	"fmt"
	"math"

	"github.com/pointproc/go-tpp/nn"
	"github.com/pointproc/go-tpp/tensor"
)

const halfLogTwoPi = 0.9189385332046727 // 0.5 * log(2*pi)

// LogNormMix models the next inter-event time with a mixture of log-normal
// distributions. Mixture weights, component means, and component log-scales
// are linear functions of the history encoding. The density is evaluated in
// the standardized log domain z = (log tau - mean) / std and mapped back with
// the change-of-variables term -log tau - log std.
type LogNormMix struct {
	components int
	meanLogTau float64
	stdLogTau  float64

	weights *nn.Linear
	means   *nn.Linear
	scales  *nn.Linear
}

func newLogNormMix(cfg Config) (Decoder, error) {
	components := cfg.Components
	if components <= 0 {
		components = 16
	}
	stdLogTau := cfg.StdLogTau
	if stdLogTau <= 0 {
		stdLogTau = 1.0
	}

	weights, err := nn.NewLinear(cfg.HiddenSize, components, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight head: %v", err)
	}
	means, err := nn.NewLinear(cfg.HiddenSize, components, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create mean head: %v", err)
	}
	scales, err := nn.NewLinear(cfg.HiddenSize, components, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create scale head: %v", err)
	}

	return &LogNormMix{
		components: components,
		meanLogTau: cfg.MeanLogTau,
		stdLogTau:  stdLogTau,
		weights:    weights,
		means:      means,
		scales:     scales,
	}, nil
}

// Components returns the number of mixture components.
func (d *LogNormMix) Components() int {
	return d.components
}

// LogProb computes the mixture log-density of tau given h.
func (d *LogNormMix) LogProb(h, tau *tensor.Tensor) (*tensor.Tensor, error) {
	logTau, err := tensor.LogAutograd(tau)
	if err != nil {
		return nil, err
	}
	centered, err := tensor.SubAutograd(logTau, tensor.FromScalar(d.meanLogTau))
	if err != nil {
		return nil, err
	}
	z, err := tensor.DivAutograd(centered, tensor.FromScalar(d.stdLogTau))
	if err != nil {
		return nil, err
	}

	// Log mixture weights via log-softmax over the component dimension.
	logits, err := d.weights.Forward(h)
	if err != nil {
		return nil, fmt.Errorf("weight head failed: %v", err)
	}
	lse, err := tensor.LogSumExpAutograd(logits)
	if err != nil {
		return nil, err
	}
	logW, err := tensor.SubAutograd(logits, lse)
	if err != nil {
		return nil, err
	}

	mu, err := d.means.Forward(h)
	if err != nil {
		return nil, fmt.Errorf("mean head failed: %v", err)
	}
	logS, err := d.scales.Forward(h)
	if err != nil {
		return nil, fmt.Errorf("scale head failed: %v", err)
	}
	s, err := tensor.ExpAutograd(logS)
	if err != nil {
		return nil, err
	}

	// Standard normal log-density of (z - mu) / s per component:
	// -logS - 0.5*log(2*pi) - 0.5*((z - mu)/s)^2
	diff, err := tensor.SubAutograd(z, mu)
	if err != nil {
		return nil, err
	}
	zz, err := tensor.DivAutograd(diff, s)
	if err != nil {
		return nil, err
	}
	zzSq, err := tensor.MulAutograd(zz, zz)
	if err != nil {
		return nil, err
	}
	quad, err := tensor.MulAutograd(zzSq, tensor.FromScalar(-0.5))
	if err != nil {
		return nil, err
	}
	logPhi, err := tensor.SubAutograd(quad, logS)
	if err != nil {
		return nil, err
	}
	logPhi, err = tensor.SubAutograd(logPhi, tensor.FromScalar(halfLogTwoPi))
	if err != nil {
		return nil, err
	}

	weighted, err := tensor.AddAutograd(logW, logPhi)
	if err != nil {
		return nil, err
	}
	mixture, err := tensor.LogSumExpAutograd(weighted)
	if err != nil {
		return nil, err
	}

	// Change of variables from z back to tau.
	out, err := tensor.SubAutograd(mixture, logTau)
	if err != nil {
		return nil, err
	}
	return tensor.SubAutograd(out, tensor.FromScalar(math.Log(d.stdLogTau)))
}

// Parameters returns the trainable parameters of all three heads.
func (d *LogNormMix) Parameters() []*tensor.Tensor {
	params := d.weights.Parameters()
	params = append(params, d.means.Parameters()...)
	params = append(params, d.scales.Parameters()...)
	return params
}

// Name returns the registry name.
func (d *LogNormMix) Name() string {
	return "lognormmix"
}
