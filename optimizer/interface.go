// Package optimizer provides gradient-based parameter update rules. All
// optimizers operate in-place on the float32 data of parameter tensors and
// expose their internal state for checkpointing.
package optimizer

import (
	"fmt"

	"github.com/pointproc/go-tpp/tensor"
)

// Optimizer defines the common interface for all optimizers.
// This interface enables state save/restore for checkpoint functionality.
type Optimizer interface {
	// Step performs a single optimization step using the gradients
	// currently accumulated on the parameters.
	Step() error

	// ZeroGrad clears the gradients of all parameters.
	ZeroGrad()

	// GetState extracts optimizer state for checkpointing.
	GetState() (*State, error)

	// LoadState restores optimizer state from a checkpoint.
	LoadState(state *State) error

	// GetStepCount returns the current optimization step number.
	GetStepCount() uint64

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR updates the learning rate.
	SetLR(lr float32)
}

// StateTensor is one slice of optimizer state (momentum, variance, ...)
// keyed by a name like "momentum_0".
type StateTensor struct {
	Name      string    `json:"name"`
	StateType string    `json:"state_type"`
	Data      []float32 `json:"data"`
}

// State represents the complete serializable state of an optimizer.
type State struct {
	Type       string                 `json:"type"`       // "Adam", "SGD", etc.
	Parameters map[string]interface{} `json:"parameters"` // Hyperparameters
	StateData  []StateTensor          `json:"state_data"` // Per-parameter state slices
}

// validateStateType ensures the state type matches the optimizer.
func validateStateType(optimizerType string, state *State) error {
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}

// validateParams rejects nil or non-float32 parameter tensors up front so
// Step never has to re-check.
func validateParams(params []*tensor.Tensor) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameters provided")
	}
	for i, p := range params {
		if p == nil {
			return fmt.Errorf("parameter %d is nil", i)
		}
		if p.DType != tensor.Float32 {
			return fmt.Errorf("parameter %d has unsupported dtype %v", i, p.DType)
		}
	}
	return nil
}

// gradData returns the gradient data of a parameter, or nil when no
// gradient has been accumulated yet.
func gradData(p *tensor.Tensor) []float32 {
	g := p.Grad()
	if g == nil {
		return nil
	}
	data, err := g.GetFloat32Data()
	if err != nil {
		return nil
	}
	return data
}
