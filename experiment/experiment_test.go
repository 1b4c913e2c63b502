package experiment

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pointproc/go-tpp/checkpoints"
	"github.com/pointproc/go-tpp/events"
	"github.com/pointproc/go-tpp/results"
	"github.com/pointproc/go-tpp/training"

	_ "modernc.org/sqlite"
)

func writeDataset(t *testing.T, dir string) string {
	t.Helper()
	ds, err := events.GeneratePoisson(events.GeneratorConfig{
		Sequences:    20,
		EventsPerSeq: 15,
		Seed:         5,
	}, 1.0)
	if err != nil {
		t.Fatalf("GeneratePoisson failed: %v", err)
	}
	path := filepath.Join(dir, "poisson.json")
	if err := ds.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return path
}

func smallConfig(t *testing.T, dir string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Name = "smoke"
	cfg.Dataset.Path = writeDataset(t, dir)
	cfg.Dataset.BatchSize = 8
	cfg.Model.HiddenSize = 4
	cfg.Model.Components = 2
	cfg.Training.MaxPasses = 2
	cfg.Training.Patience = 5
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig(t, dir)
	cfg.Output.CheckpointPath = filepath.Join(dir, "model.json")
	cfg.Output.PlotPath = filepath.Join(dir, "curves.json")
	cfg.Output.LedgerPath = filepath.Join(dir, "runs.db")

	summary, err := Run(cfg, &training.NopReporter{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Result.Status != training.StatusStoppedMaxPasses &&
		summary.Result.Status != training.StatusStoppedEarly {
		t.Errorf("unexpected status %v", summary.Result.Status)
	}
	if len(summary.Result.History) == 0 {
		t.Error("no validation history recorded")
	}
	for _, nll := range []float64{summary.TrainNLL, summary.ValNLL, summary.TestNLL} {
		if math.IsNaN(nll) || math.IsInf(nll, 0) {
			t.Errorf("non-finite NLL in summary: %+v", summary)
		}
	}

	t.Run("checkpoint written", func(t *testing.T) {
		m, ckpt, err := checkpoints.LoadModel(cfg.Output.CheckpointPath)
		if err != nil {
			t.Fatalf("LoadModel failed: %v", err)
		}
		if m == nil || ckpt.ModelConfig.HiddenSize != 4 {
			t.Errorf("checkpoint config = %+v", ckpt.ModelConfig)
		}
	})

	t.Run("plot written", func(t *testing.T) {
		if _, err := os.Stat(cfg.Output.PlotPath); err != nil {
			t.Errorf("plot file missing: %v", err)
		}
	})

	t.Run("ledger row written", func(t *testing.T) {
		if summary.RunID <= 0 {
			t.Fatalf("run id = %d", summary.RunID)
		}
		store, err := results.Open(cfg.Output.LedgerPath)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()
		run, err := store.Get(summary.RunID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if run.Decoder != "lognormmix" || run.PassesRun != len(summary.Result.History) {
			t.Errorf("ledger row = %+v", run)
		}
	})
}

func TestRunRejectsBadDataset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dataset.Path = filepath.Join(t.TempDir(), "missing.json")
	if _, err := Run(cfg, &training.NopReporter{}); err == nil {
		t.Error("expected error for missing dataset file")
	}
}
