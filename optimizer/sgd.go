package optimizer

import (
	"fmt"

	"github.com/pointproc/go-tpp/tensor"
)

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LearningRate float32
	Momentum     float32 // Momentum coefficient (0 for vanilla SGD)
	WeightDecay  float32 // L2 regularization coefficient
	Nesterov     bool    // Whether to use Nesterov momentum
}

// DefaultSGDConfig returns default SGD optimizer configuration.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// SGD implements stochastic gradient descent with optional momentum,
// Nesterov acceleration and weight decay.
type SGD struct {
	config    SGDConfig
	params    []*tensor.Tensor
	momentum  [][]float32 // per-parameter velocity, nil for vanilla SGD
	stepCount uint64
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(config SGDConfig, params []*tensor.Tensor) (*SGD, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Momentum < 0 || config.Momentum > 1.0 {
		return nil, fmt.Errorf("momentum must be in [0, 1], got %f", config.Momentum)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}
	if config.Nesterov && config.Momentum == 0 {
		return nil, fmt.Errorf("nesterov momentum requires momentum > 0")
	}

	sgd := &SGD{
		config: config,
		params: params,
	}
	if config.Momentum > 0 {
		sgd.momentum = make([][]float32, len(params))
		for i, p := range params {
			sgd.momentum[i] = make([]float32, p.NumElems)
		}
	}
	return sgd, nil
}

// Step performs a single SGD optimization step.
func (sgd *SGD) Step() error {
	sgd.stepCount++

	for i, p := range sgd.params {
		grad := gradData(p)
		if grad == nil {
			continue
		}
		weights, err := p.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter %d: %v", i, err)
		}
		if len(grad) != len(weights) {
			return fmt.Errorf("parameter %d: gradient size %d does not match weight size %d",
				i, len(grad), len(weights))
		}

		lr := sgd.config.LearningRate
		for j := range weights {
			g := grad[j]
			if sgd.config.WeightDecay > 0 {
				g += sgd.config.WeightDecay * weights[j]
			}
			if sgd.momentum != nil {
				v := sgd.config.Momentum*sgd.momentum[i][j] + g
				sgd.momentum[i][j] = v
				if sgd.config.Nesterov {
					g = g + sgd.config.Momentum*v
				} else {
					g = v
				}
			}
			weights[j] -= lr * g
		}
	}
	return nil
}

// ZeroGrad clears the gradients of all parameters.
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.params)
}

// GetStepCount returns the current step count.
func (sgd *SGD) GetStepCount() uint64 {
	return sgd.stepCount
}

// GetLR returns the current learning rate.
func (sgd *SGD) GetLR() float32 {
	return sgd.config.LearningRate
}

// SetLR updates the learning rate.
func (sgd *SGD) SetLR(lr float32) {
	sgd.config.LearningRate = lr
}

// GetState extracts optimizer state for checkpointing.
func (sgd *SGD) GetState() (*State, error) {
	stateData := make([]StateTensor, 0)
	for i, v := range sgd.momentum {
		stateData = append(stateData, StateTensor{
			Name:      fmt.Sprintf("momentum_%d", i),
			StateType: "momentum",
			Data:      append([]float32(nil), v...),
		})
	}

	return &State{
		Type: "SGD",
		Parameters: map[string]interface{}{
			"learning_rate": sgd.config.LearningRate,
			"momentum":      sgd.config.Momentum,
			"weight_decay":  sgd.config.WeightDecay,
			"nesterov":      sgd.config.Nesterov,
			"step_count":    sgd.stepCount,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from a checkpoint.
func (sgd *SGD) LoadState(state *State) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}

	sgd.config.LearningRate = extractFloat32Param(state.Parameters, "learning_rate", sgd.config.LearningRate)
	sgd.config.Momentum = extractFloat32Param(state.Parameters, "momentum", sgd.config.Momentum)
	sgd.config.WeightDecay = extractFloat32Param(state.Parameters, "weight_decay", sgd.config.WeightDecay)
	sgd.config.Nesterov = extractBoolParam(state.Parameters, "nesterov", sgd.config.Nesterov)
	sgd.stepCount = extractUint64Param(state.Parameters, "step_count", sgd.stepCount)

	for _, st := range state.StateData {
		if st.StateType != "momentum" {
			continue
		}
		idx := extractBufferIndex(st.Name)
		if idx < 0 || idx >= len(sgd.params) {
			return fmt.Errorf("invalid state index in tensor name: %s", st.Name)
		}
		if sgd.momentum == nil {
			return fmt.Errorf("momentum state present but momentum is disabled")
		}
		if len(st.Data) != len(sgd.momentum[idx]) {
			return fmt.Errorf("momentum state %d has size %d, expected %d",
				idx, len(st.Data), len(sgd.momentum[idx]))
		}
		copy(sgd.momentum[idx], st.Data)
	}
	return nil
}
