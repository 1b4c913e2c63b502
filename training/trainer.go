package training

import (
	"fmt"
	"math"
	"time"

	"github.com/pointproc/go-tpp/events"
	"github.com/pointproc/go-tpp/nn"
	"github.com/pointproc/go-tpp/optimizer"
)

// Status describes how a training run ended.
type Status string

const (
	StatusRunning          Status = "RUNNING"
	StatusStoppedEarly     Status = "STOPPED_EARLY"
	StatusStoppedMaxPasses Status = "STOPPED_MAX_PASSES"
)

// Config holds configuration for a training run.
type Config struct {
	// MaxPasses is the upper bound on training passes (epochs).
	MaxPasses int
	// ImprovementThreshold is the minimum decrease in validation score for a
	// pass to reset the patience counter. The comparison is strict: a
	// decrease exactly equal to the threshold does not count.
	ImprovementThreshold float64
	// Patience is the number of consecutive non-improving passes tolerated
	// before stopping.
	Patience int
	// ReportEvery emits a progress line every N passes.
	ReportEvery int
	// GradClipNorm caps the global gradient L2 norm before each optimizer
	// step. Zero disables clipping.
	GradClipNorm float64
	// Scheduler optionally adjusts the learning rate after each pass. Nil
	// keeps the learning rate constant.
	Scheduler LRScheduler
}

// Validate checks the configuration, failing fast before any pass executes.
func (c Config) Validate() error {
	if c.MaxPasses <= 0 {
		return &InvalidConfigurationError{Field: "max_passes", Message: fmt.Sprintf("must be positive, got %d", c.MaxPasses)}
	}
	if c.Patience <= 0 {
		return &InvalidConfigurationError{Field: "patience", Message: fmt.Sprintf("must be positive, got %d", c.Patience)}
	}
	if c.ImprovementThreshold < 0 || math.IsNaN(c.ImprovementThreshold) {
		return &InvalidConfigurationError{Field: "improvement_threshold", Message: fmt.Sprintf("must be non-negative, got %v", c.ImprovementThreshold)}
	}
	if c.ReportEvery <= 0 {
		return &InvalidConfigurationError{Field: "report_every", Message: fmt.Sprintf("must be positive, got %d", c.ReportEvery)}
	}
	if c.GradClipNorm < 0 {
		return &InvalidConfigurationError{Field: "grad_clip_norm", Message: fmt.Sprintf("must be non-negative, got %v", c.GradClipNorm)}
	}
	return nil
}

// DefaultConfig returns a training configuration with conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxPasses:            100,
		ImprovementThreshold: 1e-4,
		Patience:             10,
		ReportEvery:          1,
	}
}

// PassMetrics holds metrics for a single training pass.
type PassMetrics struct {
	Pass            int
	TrainLoss       float64 // loss of the last training batch, reporting only
	ValidScore      float64
	BestScore       float64
	Improved        bool
	PatienceCounter int
	LearningRate    float64
	Duration        time.Duration
}

// Result is the outcome of one training run.
type Result struct {
	Status    Status
	History   []float64 // per-pass validation scores, append-only
	BestScore float64
	BestPass  int // pass index of the retained snapshot, -1 if none
	StopPass  int // pass index that triggered the stop, -1 if max passes ran
	Passes    []PassMetrics
}

// Trainer drives repeated optimization passes with early stopping on a
// validation score. The trainer exclusively owns the model's parameters for
// the duration of a run; passes execute strictly sequentially.
type Trainer struct {
	model     Model
	optimizer optimizer.Optimizer
	config    Config
	reporter  Reporter
	collector *Collector
}

// NewTrainer creates a trainer. Configuration errors are reported here,
// before any pass executes.
func NewTrainer(model Model, opt optimizer.Optimizer, config Config) (*Trainer, error) {
	if model == nil {
		return nil, &InvalidConfigurationError{Field: "model", Message: "must not be nil"}
	}
	if opt == nil {
		return nil, &InvalidConfigurationError{Field: "optimizer", Message: "must not be nil"}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{
		model:     model,
		optimizer: opt,
		config:    config,
		reporter:  &NopReporter{},
	}, nil
}

// SetReporter replaces the trainer's progress reporter.
func (t *Trainer) SetReporter(r Reporter) {
	if r == nil {
		r = &NopReporter{}
	}
	t.reporter = r
}

// SetCollector attaches a visualization collector that records per-pass
// losses for later plotting.
func (t *Trainer) SetCollector(c *Collector) {
	t.collector = c
}

// Fit runs the training loop until early stopping fires or MaxPasses is
// exhausted. On return the model carries the parameters of the best
// validation pass and is in evaluation mode.
//
// Improvement rule: a pass resets the patience counter only when the score
// drops below the best by strictly more than ImprovementThreshold. A smaller
// strict improvement still updates the best score and snapshot but counts
// against patience. NaN or Inf scores never improve, are never snapshotted,
// and always count against patience.
func (t *Trainer) Fit(trainLoader, valLoader *events.Loader) (*Result, error) {
	if trainLoader == nil || trainLoader.Len() == 0 {
		return nil, &EmptyDatasetError{Split: "train"}
	}
	if valLoader == nil || valLoader.Len() == 0 {
		return nil, &EmptyDatasetError{Split: "validation"}
	}

	best := math.Inf(1)
	var bestSnapshot nn.Snapshot
	bestPass := -1
	patienceCounter := 0
	baseLR := float64(t.optimizer.GetLR())

	result := &Result{
		Status:   StatusRunning,
		StopPass: -1,
	}

	for pass := 0; pass < t.config.MaxPasses; pass++ {
		passStart := time.Now()

		trainLoss, err := t.trainPass(pass, trainLoader)
		if err != nil {
			return nil, fmt.Errorf("pass %d failed: %v", pass, err)
		}

		score, err := Evaluate(t.model, valLoader)
		if err != nil {
			return nil, fmt.Errorf("validation at pass %d failed: %v", pass, err)
		}
		result.History = append(result.History, score)

		degenerate := math.IsNaN(score) || math.IsInf(score, 0)
		if degenerate {
			t.reporter.Warn(&NumericInstabilityWarning{Pass: pass, Score: score})
		}

		improved := !degenerate && best-score > t.config.ImprovementThreshold
		if improved {
			best = score
			bestPass = pass
			patienceCounter = 0
			bestSnapshot, err = nn.CaptureSnapshot(t.model.Parameters())
			if err != nil {
				return nil, fmt.Errorf("snapshot at pass %d failed: %v", pass, err)
			}
		} else {
			patienceCounter++
			// A sub-threshold strict improvement still wins the snapshot,
			// it just does not buy patience.
			if !degenerate && score < best {
				best = score
				bestPass = pass
				bestSnapshot, err = nn.CaptureSnapshot(t.model.Parameters())
				if err != nil {
					return nil, fmt.Errorf("snapshot at pass %d failed: %v", pass, err)
				}
			}
		}

		if t.config.Scheduler != nil {
			lr := t.config.Scheduler.GetLR(pass+1, 0, baseLR)
			t.optimizer.SetLR(float32(lr))
		}

		metrics := PassMetrics{
			Pass:            pass,
			TrainLoss:       trainLoss,
			ValidScore:      score,
			BestScore:       best,
			Improved:        improved,
			PatienceCounter: patienceCounter,
			LearningRate:    float64(t.optimizer.GetLR()),
			Duration:        time.Since(passStart),
		}
		result.Passes = append(result.Passes, metrics)
		if t.collector != nil {
			t.collector.RecordPass(pass, trainLoss, score, metrics.LearningRate)
		}

		if patienceCounter >= t.config.Patience {
			result.Status = StatusStoppedEarly
			result.StopPass = pass
			t.reporter.Stopped(StatusStoppedEarly, pass)
			break
		}

		if (pass+1)%t.config.ReportEvery == 0 {
			t.reporter.PassDone(metrics)
		}
	}

	if result.Status == StatusRunning {
		result.Status = StatusStoppedMaxPasses
		t.reporter.Stopped(StatusStoppedMaxPasses, t.config.MaxPasses-1)
	}

	result.BestScore = best
	result.BestPass = bestPass

	if bestSnapshot != nil {
		if err := nn.RestoreSnapshot(t.model.Parameters(), bestSnapshot); err != nil {
			return nil, fmt.Errorf("failed to restore best parameters: %v", err)
		}
	}
	t.model.Eval()

	return result, nil
}

// trainPass runs one optimization phase over the training loader and returns
// the loss of the last batch.
func (t *Trainer) trainPass(pass int, loader *events.Loader) (float64, error) {
	t.model.Train()
	t.reporter.StartPass(pass, t.config.MaxPasses, loader.Len())

	var lastLoss float64
	loader.Reset()
	for loader.HasNext() {
		batch := loader.Next()

		t.optimizer.ZeroGrad()
		loss, value, err := batchLoss(t.model, batch)
		if err != nil {
			return 0, fmt.Errorf("forward pass failed: %v", err)
		}
		if err := loss.Backward(); err != nil {
			return 0, fmt.Errorf("backward pass failed: %v", err)
		}
		if t.config.GradClipNorm > 0 {
			if _, err := optimizer.ClipGradNorm(t.model.Parameters(), t.config.GradClipNorm); err != nil {
				return 0, fmt.Errorf("gradient clipping failed: %v", err)
			}
		}
		if err := t.optimizer.Step(); err != nil {
			return 0, fmt.Errorf("optimizer step failed: %v", err)
		}

		lastLoss = value
		t.reporter.BatchDone(value)
	}

	return lastLoss, nil
}
