// Package experiment orchestrates a full training run: load a dataset,
// split it, fit a model with early stopping, evaluate all splits, and record
// the outcome.
package experiment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML experiment description.
type Config struct {
	Name string `yaml:"name"`

	Dataset struct {
		Path      string  `yaml:"path"`
		TrainFrac float64 `yaml:"train_frac"`
		ValFrac   float64 `yaml:"val_frac"`
		BatchSize int     `yaml:"batch_size"`
		Seed      int64   `yaml:"seed"`
	} `yaml:"dataset"`

	Model struct {
		HiddenSize int    `yaml:"hidden_size"`
		Decoder    string `yaml:"decoder"`
		Components int    `yaml:"components"`
	} `yaml:"model"`

	Optimizer struct {
		Name         string  `yaml:"name"`
		LearningRate float64 `yaml:"learning_rate"`
		WeightDecay  float64 `yaml:"weight_decay"`
	} `yaml:"optimizer"`

	Training struct {
		MaxPasses            int     `yaml:"max_passes"`
		ImprovementThreshold float64 `yaml:"improvement_threshold"`
		Patience             int     `yaml:"patience"`
		ReportEvery          int     `yaml:"report_every"`
		GradClipNorm         float64 `yaml:"grad_clip_norm"`
	} `yaml:"training"`

	Output struct {
		CheckpointPath string `yaml:"checkpoint_path"`
		PlotPath       string `yaml:"plot_path"`
		LedgerPath     string `yaml:"ledger_path"`
		PlotServiceURL string `yaml:"plot_service_url"`
	} `yaml:"output"`
}

// DefaultConfig returns an experiment configuration with usable defaults for
// everything except the dataset path.
func DefaultConfig() Config {
	var cfg Config
	cfg.Name = "tpp"
	cfg.Dataset.TrainFrac = 0.6
	cfg.Dataset.ValFrac = 0.2
	cfg.Dataset.BatchSize = 32
	cfg.Dataset.Seed = 42
	cfg.Model.HiddenSize = 32
	cfg.Model.Decoder = "lognormmix"
	cfg.Model.Components = 16
	cfg.Optimizer.Name = "adam"
	cfg.Optimizer.LearningRate = 1e-3
	cfg.Training.MaxPasses = 300
	cfg.Training.ImprovementThreshold = 1e-4
	cfg.Training.Patience = 20
	cfg.Training.ReportEvery = 1
	cfg.Training.GradClipNorm = 5.0
	return cfg
}

// LoadConfig reads an experiment configuration from a YAML file, applying
// defaults for omitted fields.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration fields that cannot be defaulted.
func (c Config) Validate() error {
	if c.Dataset.Path == "" {
		return fmt.Errorf("dataset.path is required")
	}
	if c.Dataset.BatchSize <= 0 {
		return fmt.Errorf("dataset.batch_size must be positive, got %d", c.Dataset.BatchSize)
	}
	if c.Dataset.TrainFrac <= 0 || c.Dataset.ValFrac <= 0 ||
		c.Dataset.TrainFrac+c.Dataset.ValFrac >= 1 {
		return fmt.Errorf("dataset split fractions must be positive and sum below 1, got train=%v val=%v",
			c.Dataset.TrainFrac, c.Dataset.ValFrac)
	}
	switch c.Optimizer.Name {
	case "adam", "sgd", "rmsprop":
	default:
		return fmt.Errorf("unknown optimizer %q", c.Optimizer.Name)
	}
	return nil
}
