package training

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/pointproc/go-tpp/events"
	"github.com/pointproc/go-tpp/optimizer"
	"github.com/pointproc/go-tpp/tensor"
)

// fakeModel returns scripted validation scores so trainer control flow can be
// tested independently of any real point process model. In training mode
// LogProb returns a constant; in evaluation mode it consumes the next script
// entry, scaled so the aggregate score comes out to exactly that entry. The
// single parameter is overwritten with the pass index at the start of each
// training pass, which makes snapshot restoration observable.
type fakeModel struct {
	param    *tensor.Tensor
	scores   []float64
	next     int
	pass     int
	training bool
}

func newFakeModel(t *testing.T, scores []float64) *fakeModel {
	t.Helper()
	param, err := tensor.NewTensor([]int{1}, tensor.Float32, []float32{-1})
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	return &fakeModel{param: param, scores: scores, pass: -1}
}

func (m *fakeModel) LogProb(batch *events.Batch) (*tensor.Tensor, error) {
	if m.training {
		data, err := m.param.GetFloat32Data()
		if err != nil {
			return nil, err
		}
		data[0] = float32(m.pass)
		return tensor.NewTensor([]int{1}, tensor.Float32, []float32{0})
	}
	if m.next >= len(m.scores) {
		return nil, fmt.Errorf("score script exhausted after %d evaluations", m.next)
	}
	score := m.scores[m.next]
	m.next++
	ll := float32(-score * float64(batch.Events()))
	return tensor.NewTensor([]int{1}, tensor.Float32, []float32{ll})
}

func (m *fakeModel) Parameters() []*tensor.Tensor { return []*tensor.Tensor{m.param} }
func (m *fakeModel) Train()                       { m.training = true; m.pass++ }
func (m *fakeModel) Eval()                        { m.training = false }

func (m *fakeModel) paramValue(t *testing.T) float32 {
	t.Helper()
	data, err := m.param.GetFloat32Data()
	if err != nil {
		t.Fatalf("GetFloat32Data failed: %v", err)
	}
	return data[0]
}

// countingOptimizer records how many optimization steps ran.
type countingOptimizer struct {
	steps int
	lr    float32
}

func (o *countingOptimizer) Step() error { o.steps++; return nil }
func (o *countingOptimizer) ZeroGrad()   {}
func (o *countingOptimizer) GetState() (*optimizer.State, error) {
	return &optimizer.State{Type: "Counting"}, nil
}
func (o *countingOptimizer) LoadState(*optimizer.State) error { return nil }
func (o *countingOptimizer) GetStepCount() uint64             { return uint64(o.steps) }
func (o *countingOptimizer) GetLR() float32                   { return o.lr }
func (o *countingOptimizer) SetLR(lr float32)                 { o.lr = lr }

// recordingReporter captures warnings and the final stop notification.
type recordingReporter struct {
	warnings   []*NumericInstabilityWarning
	stopStatus Status
	stopPass   int
}

func (r *recordingReporter) StartPass(pass, maxPasses, batches int) {}
func (r *recordingReporter) BatchDone(loss float64)                 {}
func (r *recordingReporter) PassDone(m PassMetrics)                 {}
func (r *recordingReporter) Warn(w *NumericInstabilityWarning)      { r.warnings = append(r.warnings, w) }
func (r *recordingReporter) Stopped(status Status, pass int) {
	r.stopStatus = status
	r.stopPass = pass
}

// singleBatchLoader builds a loader yielding exactly one batch per epoch.
func singleBatchLoader(t *testing.T) *events.Loader {
	t.Helper()
	ds := &events.Dataset{Sequences: []events.Sequence{
		{ArrivalTimes: []float64{1, 2.5}},
		{ArrivalTimes: []float64{0.5, 1.5, 3}},
	}}
	loader, err := events.NewLoader(ds, ds.Len(), false, 1)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	return loader
}

func fitScripted(t *testing.T, scores []float64, cfg Config) (*fakeModel, *Result, *recordingReporter) {
	t.Helper()
	m := newFakeModel(t, scores)
	trainer, err := NewTrainer(m, &countingOptimizer{lr: 0.1}, cfg)
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	rep := &recordingReporter{stopPass: -1}
	trainer.SetReporter(rep)
	result, err := trainer.Fit(singleBatchLoader(t), singleBatchLoader(t))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	return m, result, rep
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"zero max passes", Config{MaxPasses: 0, Patience: 1, ReportEvery: 1}, "max_passes"},
		{"negative patience", Config{MaxPasses: 1, Patience: -1, ReportEvery: 1}, "patience"},
		{"negative threshold", Config{MaxPasses: 1, Patience: 1, ReportEvery: 1, ImprovementThreshold: -0.1}, "improvement_threshold"},
		{"NaN threshold", Config{MaxPasses: 1, Patience: 1, ReportEvery: 1, ImprovementThreshold: math.NaN()}, "improvement_threshold"},
		{"zero report every", Config{MaxPasses: 1, Patience: 1, ReportEvery: 0}, "report_every"},
		{"negative clip norm", Config{MaxPasses: 1, Patience: 1, ReportEvery: 1, GradClipNorm: -1}, "grad_clip_norm"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newFakeModel(t, nil)
			_, err := NewTrainer(m, &countingOptimizer{}, tc.cfg)
			var cfgErr *InvalidConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected InvalidConfigurationError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("error field %q, want %q", cfgErr.Field, tc.field)
			}
		})
	}

	t.Run("nil model", func(t *testing.T) {
		if _, err := NewTrainer(nil, &countingOptimizer{}, DefaultConfig()); err == nil {
			t.Error("expected error for nil model")
		}
	})
	t.Run("nil optimizer", func(t *testing.T) {
		m := newFakeModel(t, nil)
		if _, err := NewTrainer(m, nil, DefaultConfig()); err == nil {
			t.Error("expected error for nil optimizer")
		}
	})
}

func TestEarlyStopping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Patience = 2
	cfg.ImprovementThreshold = 1e-4
	m, result, rep := fitScripted(t, []float64{1.0, 0.5, 0.5001, 0.5002}, cfg)

	if result.Status != StatusStoppedEarly {
		t.Fatalf("status = %v, want %v", result.Status, StatusStoppedEarly)
	}
	if result.StopPass != 3 {
		t.Errorf("stop pass = %d, want 3", result.StopPass)
	}
	if len(result.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(result.History))
	}
	if result.BestScore != 0.5 || result.BestPass != 1 {
		t.Errorf("best = %v at pass %d, want 0.5 at pass 1", result.BestScore, result.BestPass)
	}
	if m.paramValue(t) != 1 {
		t.Errorf("restored parameter = %v, want the pass 1 snapshot", m.paramValue(t))
	}
	if rep.stopStatus != StatusStoppedEarly || rep.stopPass != 3 {
		t.Errorf("reporter saw stop %v at pass %d", rep.stopStatus, rep.stopPass)
	}
}

func TestMaxPassesExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPasses = 3
	m, result, _ := fitScripted(t, []float64{2.0, 1.0, 0.5}, cfg)

	if result.Status != StatusStoppedMaxPasses {
		t.Fatalf("status = %v, want %v", result.Status, StatusStoppedMaxPasses)
	}
	if result.StopPass != -1 {
		t.Errorf("stop pass = %d, want -1", result.StopPass)
	}
	want := []float64{2.0, 1.0, 0.5}
	if len(result.History) != len(want) {
		t.Fatalf("history length = %d, want %d", len(result.History), len(want))
	}
	for i, s := range want {
		if result.History[i] != s {
			t.Errorf("history[%d] = %v, want %v", i, result.History[i], s)
		}
	}
	if result.BestScore != 0.5 || result.BestPass != 2 {
		t.Errorf("best = %v at pass %d, want 0.5 at pass 2", result.BestScore, result.BestPass)
	}
	if m.paramValue(t) != 2 {
		t.Errorf("restored parameter = %v, want the pass 2 snapshot", m.paramValue(t))
	}
	if m.training {
		t.Error("model left in training mode after Fit")
	}
}

func TestEmptyDataset(t *testing.T) {
	m := newFakeModel(t, []float64{1.0})
	opt := &countingOptimizer{}
	trainer, err := NewTrainer(m, opt, DefaultConfig())
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}

	t.Run("missing train split", func(t *testing.T) {
		_, err := trainer.Fit(nil, singleBatchLoader(t))
		var emptyErr *EmptyDatasetError
		if !errors.As(err, &emptyErr) {
			t.Fatalf("expected EmptyDatasetError, got %v", err)
		}
		if emptyErr.Split != "train" {
			t.Errorf("split = %q, want train", emptyErr.Split)
		}
	})

	t.Run("missing validation split", func(t *testing.T) {
		_, err := trainer.Fit(singleBatchLoader(t), nil)
		var emptyErr *EmptyDatasetError
		if !errors.As(err, &emptyErr) {
			t.Fatalf("expected EmptyDatasetError, got %v", err)
		}
		if emptyErr.Split != "validation" {
			t.Errorf("split = %q, want validation", emptyErr.Split)
		}
	})

	if opt.steps != 0 {
		t.Errorf("%d optimizer steps ran before the dataset check", opt.steps)
	}
}

func TestThresholdBoundary(t *testing.T) {
	// Score drops of exactly the threshold must not reset patience, but the
	// best score still tracks every strict decrease. All values are exactly
	// representable so the comparisons have no rounding slack.
	cfg := DefaultConfig()
	cfg.ImprovementThreshold = 0.25
	cfg.Patience = 3
	cfg.MaxPasses = 4
	m, result, _ := fitScripted(t, []float64{2.0, 1.75, 1.5, 1.25}, cfg)

	if result.Status != StatusStoppedEarly {
		t.Fatalf("status = %v, want %v", result.Status, StatusStoppedEarly)
	}
	if result.StopPass != 3 {
		t.Errorf("stop pass = %d, want 3", result.StopPass)
	}
	if result.BestScore != 1.25 || result.BestPass != 3 {
		t.Errorf("best = %v at pass %d, want 1.25 at pass 3", result.BestScore, result.BestPass)
	}

	wantImproved := []bool{true, false, false, false}
	wantPatience := []int{0, 1, 2, 3}
	for i, p := range result.Passes {
		if p.Improved != wantImproved[i] {
			t.Errorf("pass %d improved = %v, want %v", i, p.Improved, wantImproved[i])
		}
		if p.PatienceCounter != wantPatience[i] {
			t.Errorf("pass %d patience = %d, want %d", i, p.PatienceCounter, wantPatience[i])
		}
	}
	if m.paramValue(t) != 3 {
		t.Errorf("restored parameter = %v, want the pass 3 snapshot", m.paramValue(t))
	}
}

func TestSubThresholdImprovement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImprovementThreshold = 0.25
	cfg.Patience = 3
	cfg.MaxPasses = 3
	m, result, _ := fitScripted(t, []float64{2.0, 1.9, 1.85}, cfg)

	if result.Status != StatusStoppedMaxPasses {
		t.Fatalf("status = %v, want %v", result.Status, StatusStoppedMaxPasses)
	}
	if result.BestPass != 2 {
		t.Errorf("best pass = %d, want 2", result.BestPass)
	}
	if math.Abs(result.BestScore-1.85) > 1e-6 {
		t.Errorf("best score = %v, want ~1.85", result.BestScore)
	}
	last := result.Passes[len(result.Passes)-1]
	if last.PatienceCounter != 2 {
		t.Errorf("final patience = %d, want 2", last.PatienceCounter)
	}
	if m.paramValue(t) != 2 {
		t.Errorf("restored parameter = %v, want the pass 2 snapshot", m.paramValue(t))
	}
}

func TestDegenerateScores(t *testing.T) {
	cases := []struct {
		name string
		bad  float64
	}{
		{"nan", math.NaN()},
		{"positive inf", math.Inf(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Patience = 2
			m, result, rep := fitScripted(t, []float64{1.0, tc.bad, tc.bad}, cfg)

			if result.Status != StatusStoppedEarly {
				t.Fatalf("status = %v, want %v", result.Status, StatusStoppedEarly)
			}
			if result.BestScore != 1.0 || result.BestPass != 0 {
				t.Errorf("best = %v at pass %d, want 1.0 at pass 0", result.BestScore, result.BestPass)
			}
			if len(result.History) != 3 {
				t.Fatalf("history length = %d, want 3", len(result.History))
			}
			for i := 1; i < 3; i++ {
				if !math.IsNaN(result.History[i]) && !math.IsInf(result.History[i], 0) {
					t.Errorf("history[%d] = %v, want the degenerate score", i, result.History[i])
				}
			}
			if len(rep.warnings) != 2 {
				t.Fatalf("got %d warnings, want 2", len(rep.warnings))
			}
			if rep.warnings[0].Pass != 1 || rep.warnings[1].Pass != 2 {
				t.Errorf("warning passes = [%d %d], want [1 2]", rep.warnings[0].Pass, rep.warnings[1].Pass)
			}
			if m.paramValue(t) != 0 {
				t.Errorf("restored parameter = %v, want the pass 0 snapshot", m.paramValue(t))
			}
		})
	}
}

func TestSchedulerAdjustsLR(t *testing.T) {
	m := newFakeModel(t, []float64{3.0, 2.0, 1.0})
	opt := &countingOptimizer{lr: 1.0}
	cfg := DefaultConfig()
	cfg.MaxPasses = 3
	cfg.Scheduler = NewExponentialLRScheduler(0.5)
	trainer, err := NewTrainer(m, opt, cfg)
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	result, err := trainer.Fit(singleBatchLoader(t), singleBatchLoader(t))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	wantLR := []float64{0.5, 0.25, 0.125}
	for i, p := range result.Passes {
		if math.Abs(p.LearningRate-wantLR[i]) > 1e-9 {
			t.Errorf("pass %d learning rate = %v, want %v", i, p.LearningRate, wantLR[i])
		}
	}
}

func TestOptimizerStepsPerPass(t *testing.T) {
	m := newFakeModel(t, []float64{3.0, 2.0})
	opt := &countingOptimizer{lr: 0.1}
	cfg := DefaultConfig()
	cfg.MaxPasses = 2
	trainer, err := NewTrainer(m, opt, cfg)
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	if _, err := trainer.Fit(singleBatchLoader(t), singleBatchLoader(t)); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	// One batch per pass, two passes.
	if opt.steps != 2 {
		t.Errorf("optimizer steps = %d, want 2", opt.steps)
	}
}

func TestAggregate(t *testing.T) {
	t.Run("weights by event count", func(t *testing.T) {
		// Two batches: LL sums -4 over 2 events and -2 over 2 events.
		got := Aggregate([]float64{-4, -2}, []int{2, 2})
		if got != 1.5 {
			t.Errorf("Aggregate = %v, want 1.5", got)
		}
	})
	t.Run("no events yields NaN", func(t *testing.T) {
		if got := Aggregate(nil, nil); !math.IsNaN(got) {
			t.Errorf("Aggregate of nothing = %v, want NaN", got)
		}
	})
}

func TestEvaluate(t *testing.T) {
	t.Run("scripted score", func(t *testing.T) {
		m := newFakeModel(t, []float64{0.75})
		score, err := Evaluate(m, singleBatchLoader(t))
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if score != 0.75 {
			t.Errorf("score = %v, want 0.75", score)
		}
		if m.training {
			t.Error("model left in training mode")
		}
	})
	t.Run("nil loader", func(t *testing.T) {
		m := newFakeModel(t, nil)
		_, err := Evaluate(m, nil)
		var emptyErr *EmptyDatasetError
		if !errors.As(err, &emptyErr) {
			t.Fatalf("expected EmptyDatasetError, got %v", err)
		}
	})
}

func TestSchedulers(t *testing.T) {
	t.Run("step", func(t *testing.T) {
		s := NewStepLRScheduler(2, 0.1)
		wants := map[int]float64{0: 1.0, 1: 1.0, 2: 0.1, 3: 0.1, 4: 0.01}
		for pass, want := range wants {
			if got := s.GetLR(pass, 0, 1.0); math.Abs(got-want) > 1e-12 {
				t.Errorf("pass %d lr = %v, want %v", pass, got, want)
			}
		}
	})
	t.Run("cosine endpoints", func(t *testing.T) {
		s := NewCosineAnnealingLRScheduler(10, 0.001)
		if got := s.GetLR(0, 0, 1.0); math.Abs(got-1.0) > 1e-12 {
			t.Errorf("lr at pass 0 = %v, want 1.0", got)
		}
		if got := s.GetLR(10, 0, 1.0); got != 0.001 {
			t.Errorf("lr at TMax = %v, want eta_min", got)
		}
	})
	t.Run("constant", func(t *testing.T) {
		s := &NoOpScheduler{}
		if got := s.GetLR(57, 0, 0.3); got != 0.3 {
			t.Errorf("lr = %v, want 0.3", got)
		}
	})
}
