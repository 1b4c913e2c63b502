package experiment

import (
	"fmt"
	"time"

	"github.com/pointproc/go-tpp/checkpoints"
	"github.com/pointproc/go-tpp/events"
	"github.com/pointproc/go-tpp/model"
	"github.com/pointproc/go-tpp/nn"
	"github.com/pointproc/go-tpp/optimizer"
	"github.com/pointproc/go-tpp/results"
	"github.com/pointproc/go-tpp/training"
)

// Summary is the outcome of one experiment run.
type Summary struct {
	Result   *training.Result
	TrainNLL float64
	ValNLL   float64
	TestNLL  float64
	RunID    int64 // ledger row id, 0 when no ledger is configured
}

// Run executes the experiment described by cfg and reports progress through
// the given reporter.
func Run(cfg Config, reporter training.Reporter) (*Summary, error) {
	nn.SetRandomSeed(cfg.Dataset.Seed)

	dataset, err := events.Load(cfg.Dataset.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	train, val, test, err := dataset.Split(cfg.Dataset.TrainFrac, cfg.Dataset.ValFrac, cfg.Dataset.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}

	// Normalization statistics come from the training split only.
	stats, err := train.LogTauStats()
	if err != nil {
		return nil, fmt.Errorf("failed to compute dataset statistics: %w", err)
	}

	trainLoader, err := events.NewLoader(train, cfg.Dataset.BatchSize, true, cfg.Dataset.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create train loader: %w", err)
	}
	valLoader, err := events.NewLoader(val, cfg.Dataset.BatchSize, false, cfg.Dataset.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation loader: %w", err)
	}
	testLoader, err := events.NewLoader(test, cfg.Dataset.BatchSize, false, cfg.Dataset.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create test loader: %w", err)
	}

	modelCfg := model.Config{
		HiddenSize: cfg.Model.HiddenSize,
		Decoder:    cfg.Model.Decoder,
		Components: cfg.Model.Components,
		Stats:      stats,
	}
	m, err := model.New(modelCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}

	opt, err := buildOptimizer(cfg, m)
	if err != nil {
		return nil, err
	}

	trainer, err := training.NewTrainer(m, opt, training.Config{
		MaxPasses:            cfg.Training.MaxPasses,
		ImprovementThreshold: cfg.Training.ImprovementThreshold,
		Patience:             cfg.Training.Patience,
		ReportEvery:          cfg.Training.ReportEvery,
		GradClipNorm:         cfg.Training.GradClipNorm,
	})
	if err != nil {
		return nil, err
	}
	trainer.SetReporter(reporter)
	collector := training.NewCollector(cfg.Name)
	trainer.SetCollector(collector)

	result, err := trainer.Fit(trainLoader, valLoader)
	if err != nil {
		return nil, err
	}

	// The model now carries the best snapshot and is in evaluation mode.
	trainNLL, err := training.Evaluate(m, trainLoader)
	if err != nil {
		return nil, fmt.Errorf("train evaluation failed: %w", err)
	}
	valNLL, err := training.Evaluate(m, valLoader)
	if err != nil {
		return nil, fmt.Errorf("validation evaluation failed: %w", err)
	}
	testNLL, err := training.Evaluate(m, testLoader)
	if err != nil {
		return nil, fmt.Errorf("test evaluation failed: %w", err)
	}

	summary := &Summary{
		Result:   result,
		TrainNLL: trainNLL,
		ValNLL:   valNLL,
		TestNLL:  testNLL,
	}

	if cfg.Output.PlotPath != "" {
		if err := training.SavePlotData(collector.TrainingCurvesPlot(), cfg.Output.PlotPath); err != nil {
			return nil, err
		}
	}
	if cfg.Output.PlotServiceURL != "" {
		psCfg := training.DefaultPlottingServiceConfig()
		psCfg.BaseURL = cfg.Output.PlotServiceURL
		ps := training.NewPlottingService(psCfg)
		ps.Enable()
		if _, err := ps.SendPlotDataWithRetry(collector.TrainingCurvesPlot()); err != nil {
			// The sidecar is an optional convenience; its absence must not
			// fail a finished run.
			fmt.Printf("warning: failed to send plot: %v\n", err)
		}
	}

	if cfg.Output.CheckpointPath != "" {
		ckpt, err := checkpoints.FromModel(m, modelCfg, checkpoints.TrainingState{
			Pass:         result.BestPass,
			LearningRate: opt.GetLR(),
			BestScore:    result.BestScore,
			History:      result.History,
		})
		if err != nil {
			return nil, err
		}
		if err := ckpt.Save(cfg.Output.CheckpointPath); err != nil {
			return nil, err
		}
	}

	if cfg.Output.LedgerPath != "" {
		store, err := results.Open(cfg.Output.LedgerPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		summary.RunID, err = store.Insert(results.Run{
			CreatedAt:    time.Now(),
			Dataset:      cfg.Dataset.Path,
			Decoder:      cfg.Model.Decoder,
			HiddenSize:   cfg.Model.HiddenSize,
			LearningRate: cfg.Optimizer.LearningRate,
			MaxPasses:    cfg.Training.MaxPasses,
			Patience:     cfg.Training.Patience,
			PassesRun:    len(result.History),
			Status:       string(result.Status),
			TrainNLL:     trainNLL,
			ValNLL:       valNLL,
			TestNLL:      testNLL,
			History:      result.History,
		})
		if err != nil {
			return nil, err
		}
	}

	return summary, nil
}

func buildOptimizer(cfg Config, m *model.TPP) (optimizer.Optimizer, error) {
	switch cfg.Optimizer.Name {
	case "adam":
		c := optimizer.DefaultAdamConfig()
		c.LearningRate = float32(cfg.Optimizer.LearningRate)
		c.WeightDecay = float32(cfg.Optimizer.WeightDecay)
		return optimizer.NewAdam(c, m.Parameters())
	case "sgd":
		c := optimizer.DefaultSGDConfig()
		c.LearningRate = float32(cfg.Optimizer.LearningRate)
		c.WeightDecay = float32(cfg.Optimizer.WeightDecay)
		return optimizer.NewSGD(c, m.Parameters())
	case "rmsprop":
		c := optimizer.DefaultRMSPropConfig()
		c.LearningRate = float32(cfg.Optimizer.LearningRate)
		c.WeightDecay = float32(cfg.Optimizer.WeightDecay)
		return optimizer.NewRMSProp(c, m.Parameters())
	default:
		return nil, fmt.Errorf("unknown optimizer %q", cfg.Optimizer.Name)
	}
}
