// Package checkpoints serializes model weights, optimizer state and training
// progress as JSON checkpoints.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pointproc/go-tpp/model"
	"github.com/pointproc/go-tpp/optimizer"
)

// Checkpoint represents a complete model state including weights, optimizer
// state and training metadata.
type Checkpoint struct {
	ModelConfig model.Config   `json:"model_config"`
	Weights     []WeightTensor `json:"weights"`

	TrainingState TrainingState `json:"training_state"`

	OptimizerState *optimizer.State `json:"optimizer_state,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures the training progress stored alongside weights.
type TrainingState struct {
	Pass         int       `json:"pass"`
	LearningRate float32   `json:"learning_rate"`
	BestScore    float64   `json:"best_score"`
	History      []float64 `json:"history,omitempty"`
}

// Metadata contains checkpoint metadata.
type Metadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// FromModel builds a checkpoint from a model's current parameters.
func FromModel(m *model.TPP, cfg model.Config, training TrainingState) (*Checkpoint, error) {
	named := m.NamedParameters()
	weights := make([]WeightTensor, 0, len(named))
	for _, np := range named {
		data, err := np.Tensor.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read parameter %s: %v", np.Name, err)
		}
		weights = append(weights, WeightTensor{
			Name:  np.Name,
			Shape: append([]int(nil), np.Tensor.Shape...),
			Data:  append([]float32(nil), data...),
		})
	}

	return &Checkpoint{
		ModelConfig:   cfg,
		Weights:       weights,
		TrainingState: training,
		Metadata: Metadata{
			Version:   "1.0.0",
			Framework: "go-tpp",
			CreatedAt: time.Now(),
		},
	}, nil
}

// ApplyToModel restores checkpoint weights into a model. The model must have
// the same architecture as the one the checkpoint was taken from.
func (c *Checkpoint) ApplyToModel(m *model.TPP) error {
	named := m.NamedParameters()
	if len(named) != len(c.Weights) {
		return fmt.Errorf("parameter count mismatch: model has %d, checkpoint has %d",
			len(named), len(c.Weights))
	}

	byName := make(map[string]WeightTensor, len(c.Weights))
	for _, w := range c.Weights {
		byName[w.Name] = w
	}

	for _, np := range named {
		w, ok := byName[np.Name]
		if !ok {
			return fmt.Errorf("checkpoint is missing parameter %s", np.Name)
		}
		data, err := np.Tensor.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("failed to access parameter %s: %v", np.Name, err)
		}
		if len(data) != len(w.Data) {
			return fmt.Errorf("parameter %s has size %d, checkpoint has %d",
				np.Name, len(data), len(w.Data))
		}
		copy(data, w.Data)
	}
	return nil
}

// Save writes the checkpoint to a JSON file.
func (c *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// Load reads a checkpoint from a JSON file.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %v", err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %v", err)
	}
	return &c, nil
}

// LoadModel reads a checkpoint and reconstructs the model it describes.
func LoadModel(path string) (*model.TPP, *Checkpoint, error) {
	c, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := model.New(c.ModelConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rebuild model from checkpoint: %v", err)
	}
	if err := c.ApplyToModel(m); err != nil {
		return nil, nil, err
	}
	return m, c, nil
}
