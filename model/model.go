// Package model assembles a neural temporal point process: a recurrent
// history encoder over inter-event times and a conditional density decoder
// scoring each observed time against the history that precedes it.
package model

import (
	"fmt"
	"math"

	"github.com/pointproc/go-tpp/decoder"
	"github.com/pointproc/go-tpp/events"
	"github.com/pointproc/go-tpp/nn"
	"github.com/pointproc/go-tpp/tensor"
)

// Config describes a TPP model.
type Config struct {
	HiddenSize int          // GRU hidden state size
	Decoder    string       // registered decoder name
	Components int          // mixture components for mixture decoders
	Stats      events.Stats // log inter-event time normalization statistics
}

// TPP is a recurrent temporal point process model. Event t is scored against
// the hidden state computed from events 0..t-1; the hidden state is then
// advanced with the normalized log inter-event time of event t.
type TPP struct {
	cfg      Config
	encoder  *nn.GRUCell
	dec      decoder.Decoder
	training bool
}

// New builds a TPP model from the configuration, resolving the decoder
// through the registry.
func New(cfg Config) (*TPP, error) {
	if cfg.HiddenSize <= 0 {
		return nil, fmt.Errorf("hidden size must be positive, got %d", cfg.HiddenSize)
	}

	encoder, err := nn.NewGRUCell(1, cfg.HiddenSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %v", err)
	}

	dec, err := decoder.New(cfg.Decoder, decoder.Config{
		HiddenSize: cfg.HiddenSize,
		Components: cfg.Components,
		MeanLogTau: cfg.Stats.MeanLogTau,
		StdLogTau:  cfg.Stats.StdLogTau,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %v", err)
	}

	return &TPP{
		cfg:      cfg,
		encoder:  encoder,
		dec:      dec,
		training: true,
	}, nil
}

// Decoder returns the model's decoder.
func (m *TPP) Decoder() decoder.Decoder {
	return m.dec
}

// LogProb returns the sum of per-event log-likelihoods over the batch as a
// scalar tensor connected to the autograd graph.
func (m *TPP) LogProb(batch *events.Batch) (*tensor.Tensor, error) {
	if batch == nil || batch.Events() == 0 {
		return nil, fmt.Errorf("batch has no events")
	}

	h, err := m.encoder.InitState(batch.Size())
	if err != nil {
		return nil, err
	}
	total, err := tensor.Zeros([]int{1}, tensor.Float32)
	if err != nil {
		return nil, err
	}

	for t := 0; t < batch.MaxLen(); t++ {
		tau, err := batch.TauColumn(t)
		if err != nil {
			return nil, err
		}
		mask, err := batch.MaskColumn(t)
		if err != nil {
			return nil, err
		}

		logp, err := m.dec.LogProb(h, tau)
		if err != nil {
			return nil, fmt.Errorf("decoder failed at step %d: %v", t, err)
		}
		masked, err := tensor.MulAutograd(logp, mask)
		if err != nil {
			return nil, err
		}
		stepSum, err := tensor.SumAllAutograd(masked)
		if err != nil {
			return nil, err
		}
		total, err = tensor.AddAutograd(total, stepSum)
		if err != nil {
			return nil, err
		}

		x, err := m.feature(tau)
		if err != nil {
			return nil, err
		}
		h, err = m.encoder.Step(x, h)
		if err != nil {
			return nil, fmt.Errorf("encoder failed at step %d: %v", t, err)
		}
	}

	return total, nil
}

// feature maps raw inter-event times to the encoder input: the standardized
// log inter-event time. The input is data, not a parameter, so this stays
// outside the autograd graph.
func (m *TPP) feature(tau *tensor.Tensor) (*tensor.Tensor, error) {
	data, err := tau.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	std := m.cfg.Stats.StdLogTau
	if std <= 0 {
		std = 1
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32((math.Log(float64(v)) - m.cfg.Stats.MeanLogTau) / std)
	}
	return tensor.NewTensor(tau.Shape, tensor.Float32, out)
}

// Parameters returns all trainable parameters of encoder and decoder.
func (m *TPP) Parameters() []*tensor.Tensor {
	params := m.encoder.Parameters()
	params = append(params, m.dec.Parameters()...)
	return params
}

// NamedParameter pairs a parameter tensor with a stable name for
// checkpointing.
type NamedParameter struct {
	Name   string
	Tensor *tensor.Tensor
}

var gruParameterNames = []string{
	"wz", "uz", "bz",
	"wr", "ur", "br",
	"wh", "uh", "bh",
}

// NamedParameters returns all parameters with stable names.
func (m *TPP) NamedParameters() []NamedParameter {
	var named []NamedParameter
	for i, p := range m.encoder.Parameters() {
		named = append(named, NamedParameter{
			Name:   "encoder." + gruParameterNames[i],
			Tensor: p,
		})
	}
	for i, p := range m.dec.Parameters() {
		named = append(named, NamedParameter{
			Name:   fmt.Sprintf("decoder.%s.%d", m.dec.Name(), i),
			Tensor: p,
		})
	}
	return named
}

// State captures a deep copy of the model's parameters.
func (m *TPP) State() (nn.Snapshot, error) {
	return nn.CaptureSnapshot(m.Parameters())
}

// LoadState restores parameters captured by State.
func (m *TPP) LoadState(snap nn.Snapshot) error {
	return nn.RestoreSnapshot(m.Parameters(), snap)
}

// Train sets the model to training mode.
func (m *TPP) Train() {
	m.training = true
	m.encoder.Train()
}

// Eval sets the model to evaluation (inference) mode.
func (m *TPP) Eval() {
	m.training = false
	m.encoder.Eval()
}

// IsTraining returns true if in training mode.
func (m *TPP) IsTraining() bool {
	return m.training
}
