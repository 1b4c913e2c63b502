// Package decoder provides conditional density decoders for temporal point
// process models. A decoder maps an encoded event history to a probability
// density over the next inter-event time and scores observed times under it.
//
// Decoders are constructed through a closed registry keyed by name, resolved
// once at startup; there is no runtime reflection.
package decoder

import (
	"fmt"
	"sort"

	"github.com/pointproc/go-tpp/tensor"
)

// Decoder scores inter-event times conditioned on encoded histories.
type Decoder interface {
	// LogProb returns the per-event log-density of the observed inter-event
	// times tau [batch, 1] given history encodings h [batch, hidden].
	// The result has shape [batch, 1].
	LogProb(h, tau *tensor.Tensor) (*tensor.Tensor, error)

	// Parameters returns the decoder's trainable parameters.
	Parameters() []*tensor.Tensor

	// Name returns the registry name the decoder was constructed under.
	Name() string
}

// Config carries the shared construction parameters for all decoders.
type Config struct {
	HiddenSize int // dimensionality of the history encoding

	// Components is the number of mixture components for mixture decoders.
	// Decoders without components ignore it.
	Components int

	// MeanLogTau and StdLogTau are dataset statistics of log inter-event
	// times, folded into the density as fixed constants.
	MeanLogTau float64
	StdLogTau  float64
}

// Constructor builds a decoder from a configuration.
type Constructor func(cfg Config) (Decoder, error)

// registry is closed: it is populated here and never mutated afterwards.
var registry = map[string]Constructor{
	"exponential": newExponential,
	"lognormmix":  newLogNormMix,
}

// New constructs the named decoder.
func New(name string, cfg Config) (Decoder, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown decoder %q (available: %v)", name, Names())
	}
	if cfg.HiddenSize <= 0 {
		return nil, fmt.Errorf("decoder hidden size must be positive, got %d", cfg.HiddenSize)
	}
	return ctor(cfg)
}

// Names lists the registered decoder names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
