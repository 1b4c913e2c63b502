package optimizer

import (
	"fmt"
	"math"

	"github.com/pointproc/go-tpp/tensor"
)

// RMSPropConfig holds configuration for the RMSProp optimizer.
type RMSPropConfig struct {
	LearningRate float32
	Alpha        float32 // Smoothing constant for the squared-gradient average
	Epsilon      float32
	Momentum     float32
	WeightDecay  float32
	Centered     bool // Whether to use centered RMSProp
}

// DefaultRMSPropConfig returns default RMSProp optimizer configuration.
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		Momentum:     0.0,
		WeightDecay:  0.0,
		Centered:     false,
	}
}

// RMSProp implements the RMSProp optimizer with optional momentum and
// centering.
type RMSProp struct {
	config     RMSPropConfig
	params     []*tensor.Tensor
	squaredAvg [][]float32
	gradAvg    [][]float32 // only when centered
	momentum   [][]float32 // only when momentum > 0
	stepCount  uint64
}

// NewRMSProp creates an RMSProp optimizer over the given parameters.
func NewRMSProp(config RMSPropConfig, params []*tensor.Tensor) (*RMSProp, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Alpha < 0 || config.Alpha >= 1.0 {
		return nil, fmt.Errorf("alpha must be in [0, 1), got %f", config.Alpha)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive, got %f", config.Epsilon)
	}
	if config.Momentum < 0 || config.Momentum > 1.0 {
		return nil, fmt.Errorf("momentum must be in [0, 1], got %f", config.Momentum)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}

	r := &RMSProp{
		config:     config,
		params:     params,
		squaredAvg: make([][]float32, len(params)),
	}
	for i, p := range params {
		r.squaredAvg[i] = make([]float32, p.NumElems)
	}
	if config.Centered {
		r.gradAvg = make([][]float32, len(params))
		for i, p := range params {
			r.gradAvg[i] = make([]float32, p.NumElems)
		}
	}
	if config.Momentum > 0 {
		r.momentum = make([][]float32, len(params))
		for i, p := range params {
			r.momentum[i] = make([]float32, p.NumElems)
		}
	}
	return r, nil
}

// Step performs a single RMSProp optimization step.
func (r *RMSProp) Step() error {
	r.stepCount++

	alpha := float64(r.config.Alpha)
	eps := float64(r.config.Epsilon)
	lr := float64(r.config.LearningRate)

	for i, p := range r.params {
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

		for j := range weights {
			g := float64(grad[j])
			if r.config.WeightDecay > 0 {
				g += float64(r.config.WeightDecay) * float64(weights[j])
			}

			sq := alpha*float64(r.squaredAvg[i][j]) + (1-alpha)*g*g
			r.squaredAvg[i][j] = float32(sq)

			denom := sq
			if r.config.Centered {
				ga := alpha*float64(r.gradAvg[i][j]) + (1-alpha)*g
				r.gradAvg[i][j] = float32(ga)
				denom = sq - ga*ga
			}

			update := g / (math.Sqrt(denom) + eps)
			if r.momentum != nil {
				v := float64(r.config.Momentum)*float64(r.momentum[i][j]) + update
				r.momentum[i][j] = float32(v)
				update = v
			}
			weights[j] -= float32(lr * update)
		}
	}
	return nil
}

// ZeroGrad clears the gradients of all parameters.
func (r *RMSProp) ZeroGrad() {
	tensor.ZeroGrad(r.params)
}

// GetStepCount returns the current step count.
func (r *RMSProp) GetStepCount() uint64 {
	return r.stepCount
}

// GetLR returns the current learning rate.
func (r *RMSProp) GetLR() float32 {
	return r.config.LearningRate
}

// SetLR updates the learning rate.
func (r *RMSProp) SetLR(lr float32) {
	r.config.LearningRate = lr
}

// GetState extracts optimizer state for checkpointing.
func (r *RMSProp) GetState() (*State, error) {
	stateData := make([]StateTensor, 0)
	for i := range r.params {
		stateData = append(stateData, StateTensor{
			Name:      fmt.Sprintf("squared_grad_avg_%d", i),
			StateType: "squared_grad_avg",
			Data:      append([]float32(nil), r.squaredAvg[i]...),
		})
	}
	for i := range r.gradAvg {
		stateData = append(stateData, StateTensor{
			Name:      fmt.Sprintf("grad_avg_%d", i),
			StateType: "grad_avg",
			Data:      append([]float32(nil), r.gradAvg[i]...),
		})
	}
	for i := range r.momentum {
		stateData = append(stateData, StateTensor{
			Name:      fmt.Sprintf("momentum_%d", i),
			StateType: "momentum",
			Data:      append([]float32(nil), r.momentum[i]...),
		})
	}

	return &State{
		Type: "RMSProp",
		Parameters: map[string]interface{}{
			"learning_rate": r.config.LearningRate,
			"alpha":         r.config.Alpha,
			"epsilon":       r.config.Epsilon,
			"momentum":      r.config.Momentum,
			"weight_decay":  r.config.WeightDecay,
			"centered":      r.config.Centered,
			"step_count":    r.stepCount,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from a checkpoint.
func (r *RMSProp) LoadState(state *State) error {
	if err := validateStateType("RMSProp", state); err != nil {
		return err
	}

	r.config.LearningRate = extractFloat32Param(state.Parameters, "learning_rate", r.config.LearningRate)
	r.config.Alpha = extractFloat32Param(state.Parameters, "alpha", r.config.Alpha)
	r.config.Epsilon = extractFloat32Param(state.Parameters, "epsilon", r.config.Epsilon)
	r.config.Momentum = extractFloat32Param(state.Parameters, "momentum", r.config.Momentum)
	r.config.WeightDecay = extractFloat32Param(state.Parameters, "weight_decay", r.config.WeightDecay)
	r.stepCount = extractUint64Param(state.Parameters, "step_count", r.stepCount)

	for _, st := range state.StateData {
		idx := extractBufferIndex(st.Name)
		if idx < 0 || idx >= len(r.params) {
			return fmt.Errorf("invalid state index in tensor name: %s", st.Name)
		}
		var dst []float32
		switch st.StateType {
		case "squared_grad_avg":
			dst = r.squaredAvg[idx]
		case "grad_avg":
			if r.gradAvg == nil {
				return fmt.Errorf("grad_avg state present but centering is disabled")
			}
			dst = r.gradAvg[idx]
		case "momentum":
			if r.momentum == nil {
				return fmt.Errorf("momentum state present but momentum is disabled")
			}
			dst = r.momentum[idx]
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
