package optimizer

import (
	"fmt"
	"math"

	"github.com/pointproc/go-tpp/tensor"
)

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
	WeightDecay  float32
}

// DefaultAdamConfig returns default Adam optimizer configuration.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates.
type Adam struct {
	config    AdamConfig
	params    []*tensor.Tensor
	moment1   [][]float32
	moment2   [][]float32
	stepCount uint64
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam(config AdamConfig, params []*tensor.Tensor) (*Adam, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Beta1 < 0 || config.Beta1 >= 1.0 {
		return nil, fmt.Errorf("beta1 must be in [0, 1), got %f", config.Beta1)
	}
	if config.Beta2 < 0 || config.Beta2 >= 1.0 {
		return nil, fmt.Errorf("beta2 must be in [0, 1), got %f", config.Beta2)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive, got %f", config.Epsilon)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}

	adam := &Adam{
		config:  config,
		params:  params,
		moment1: make([][]float32, len(params)),
		moment2: make([][]float32, len(params)),
	}
	for i, p := range params {
		adam.moment1[i] = make([]float32, p.NumElems)
		adam.moment2[i] = make([]float32, p.NumElems)
	}
	return adam, nil
}

// Step performs a single Adam optimization step.
func (adam *Adam) Step() error {
	adam.stepCount++

	beta1 := float64(adam.config.Beta1)
	beta2 := float64(adam.config.Beta2)
	bc1 := 1.0 - math.Pow(beta1, float64(adam.stepCount))
	bc2 := 1.0 - math.Pow(beta2, float64(adam.stepCount))

	for i, p := range adam.params {
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

		m := adam.moment1[i]
		v := adam.moment2[i]
		lr := float64(adam.config.LearningRate)
		eps := float64(adam.config.Epsilon)

		for j := range weights {
			g := float64(grad[j])
			if adam.config.WeightDecay > 0 {
				g += float64(adam.config.WeightDecay) * float64(weights[j])
			}
			mj := beta1*float64(m[j]) + (1-beta1)*g
			vj := beta2*float64(v[j]) + (1-beta2)*g*g
			m[j] = float32(mj)
			v[j] = float32(vj)

			mHat := mj / bc1
			vHat := vj / bc2
			weights[j] -= float32(lr * mHat / (math.Sqrt(vHat) + eps))
		}
	}
	return nil
}

// ZeroGrad clears the gradients of all parameters.
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.params)
}

// GetStepCount returns the current step count.
func (adam *Adam) GetStepCount() uint64 {
	return adam.stepCount
}

// GetLR returns the current learning rate.
func (adam *Adam) GetLR() float32 {
	return adam.config.LearningRate
}

// SetLR updates the learning rate.
func (adam *Adam) SetLR(lr float32) {
	adam.config.LearningRate = lr
}

// GetState extracts optimizer state for checkpointing.
func (adam *Adam) GetState() (*State, error) {
	stateData := make([]StateTensor, 0, 2*len(adam.params))
	for i := range adam.params {
		stateData = append(stateData, StateTensor{
			Name:      fmt.Sprintf("moment1_%d", i),
			StateType: "moment1",
			Data:      append([]float32(nil), adam.moment1[i]...),
		})
		stateData = append(stateData, StateTensor{
			Name:      fmt.Sprintf("moment2_%d", i),
			StateType: "moment2",
			Data:      append([]float32(nil), adam.moment2[i]...),
		})
	}

	return &State{
		Type: "Adam",
		Parameters: map[string]interface{}{
			"learning_rate": adam.config.LearningRate,
			"beta1":         adam.config.Beta1,
			"beta2":         adam.config.Beta2,
			"epsilon":       adam.config.Epsilon,
			"weight_decay":  adam.config.WeightDecay,
			"step_count":    adam.stepCount,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from a checkpoint.
func (adam *Adam) LoadState(state *State) error {
	if err := validateStateType("Adam", state); err != nil {
		return err
	}

	adam.config.LearningRate = extractFloat32Param(state.Parameters, "learning_rate", adam.config.LearningRate)
	adam.config.Beta1 = extractFloat32Param(state.Parameters, "beta1", adam.config.Beta1)
	adam.config.Beta2 = extractFloat32Param(state.Parameters, "beta2", adam.config.Beta2)
	adam.config.Epsilon = extractFloat32Param(state.Parameters, "epsilon", adam.config.Epsilon)
	adam.config.WeightDecay = extractFloat32Param(state.Parameters, "weight_decay", adam.config.WeightDecay)
	adam.stepCount = extractUint64Param(state.Parameters, "step_count", adam.stepCount)

	for _, st := range state.StateData {
		idx := extractBufferIndex(st.Name)
		if idx < 0 || idx >= len(adam.params) {
			return fmt.Errorf("invalid state index in tensor name: %s", st.Name)
		}
		var dst []float32
		switch st.StateType {
		case "moment1":
			dst = adam.moment1[idx]
		case "moment2":
			dst = adam.moment2[idx]
		default:
			continue
		}
		if len(st.Data) != len(dst) {
			return fmt.Errorf("state %s has size %d, expected %d", st.Name, len(st.Data), len(dst))
		}
		copy(dst, st.Data)
	}
	return nil
}
