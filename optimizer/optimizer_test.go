package optimizer

import (
	"math"
	"testing"

	"github.com/pointproc/go-tpp/tensor"
)

// paramWithGrad creates a parameter tensor carrying the given gradient, by
// running a scaled identity through the autograd graph.
func paramWithGrad(t *testing.T, values, grads []float32) *tensor.Tensor {
	t.Helper()
	p, err := tensor.NewTensor([]int{len(values)}, tensor.Float32, values)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	p.SetRequiresGrad(true)

	g, err := tensor.NewTensor([]int{len(grads)}, tensor.Float32, grads)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	prod, err := tensor.MulAutograd(p, g)
	if err != nil {
		t.Fatalf("MulAutograd failed: %v", err)
	}
	loss, err := tensor.SumAllAutograd(prod)
	if err != nil {
		t.Fatalf("SumAllAutograd failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	return p
}

func TestSGD(t *testing.T) {
	t.Run("vanilla step", func(t *testing.T) {
		p := paramWithGrad(t, []float32{1, 2}, []float32{0.5, -0.5})
		cfg := DefaultSGDConfig()
		cfg.LearningRate = 0.1
		sgd, err := NewSGD(cfg, []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewSGD failed: %v", err)
		}
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		data, _ := p.GetFloat32Data()
		if math.Abs(float64(data[0])-0.95) > 1e-6 || math.Abs(float64(data[1])-2.05) > 1e-6 {
			t.Errorf("weights after step = %v, want [0.95 2.05]", data)
		}
		if sgd.GetStepCount() != 1 {
			t.Errorf("step count = %d, want 1", sgd.GetStepCount())
		}
	})

	t.Run("momentum accumulates", func(t *testing.T) {
		p := paramWithGrad(t, []float32{0}, []float32{1})
		cfg := SGDConfig{LearningRate: 1, Momentum: 0.5}
		sgd, err := NewSGD(cfg, []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewSGD failed: %v", err)
		}
		// Two steps with the same gradient: v1 = 1, v2 = 1.5.
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		data, _ := p.GetFloat32Data()
		if math.Abs(float64(data[0])+2.5) > 1e-6 {
			t.Errorf("weight = %v, want -2.5", data[0])
		}
	})

	t.Run("missing gradient skipped", func(t *testing.T) {
		p, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{3})
		p.SetRequiresGrad(true)
		sgd, err := NewSGD(DefaultSGDConfig(), []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewSGD failed: %v", err)
		}
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		data, _ := p.GetFloat32Data()
		if data[0] != 3 {
			t.Errorf("weight changed without gradient: %v", data[0])
		}
	})

	t.Run("config validation", func(t *testing.T) {
		p := paramWithGrad(t, []float32{1}, []float32{1})
		cases := []SGDConfig{
			{LearningRate: -1},
			{LearningRate: 0.1, Momentum: 1.5},
			{LearningRate: 0.1, WeightDecay: -0.1},
			{LearningRate: 0.1, Nesterov: true},
		}
		for _, cfg := range cases {
			if _, err := NewSGD(cfg, []*tensor.Tensor{p}); err == nil {
				t.Errorf("expected error for config %+v", cfg)
			}
		}
		if _, err := NewSGD(DefaultSGDConfig(), nil); err == nil {
			t.Error("expected error for empty parameter list")
		}
	})
}

func TestAdam(t *testing.T) {
	t.Run("first step is bias-corrected", func(t *testing.T) {
		p := paramWithGrad(t, []float32{1}, []float32{0.5})
		cfg := DefaultAdamConfig()
		cfg.LearningRate = 0.1
		adam, err := NewAdam(cfg, []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewAdam failed: %v", err)
		}
		if err := adam.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		// With bias correction the first update is approximately lr in the
		// direction of the gradient sign.
		data, _ := p.GetFloat32Data()
		if math.Abs(float64(data[0])-0.9) > 1e-3 {
			t.Errorf("weight after first step = %v, want ~0.9", data[0])
		}
	})

	t.Run("descends a quadratic", func(t *testing.T) {
		// Minimize f(w) = (w-3)^2 by recomputing gradients each step.
		w, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{0})
		w.SetRequiresGrad(true)
		cfg := DefaultAdamConfig()
		cfg.LearningRate = 0.1
		adam, err := NewAdam(cfg, []*tensor.Tensor{w})
		if err != nil {
			t.Fatalf("NewAdam failed: %v", err)
		}

		target, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{3})
		for i := 0; i < 300; i++ {
			adam.ZeroGrad()
			diff, err := tensor.SubAutograd(w, target)
			if err != nil {
				t.Fatalf("SubAutograd failed: %v", err)
			}
			sq, err := tensor.MulAutograd(diff, diff)
			if err != nil {
				t.Fatalf("MulAutograd failed: %v", err)
			}
			loss, err := tensor.SumAllAutograd(sq)
			if err != nil {
				t.Fatalf("SumAllAutograd failed: %v", err)
			}
			if err := loss.Backward(); err != nil {
				t.Fatalf("Backward failed: %v", err)
			}
			if err := adam.Step(); err != nil {
				t.Fatalf("Step failed: %v", err)
			}
		}

		data, _ := w.GetFloat32Data()
		if math.Abs(float64(data[0])-3) > 0.05 {
			t.Errorf("after 300 steps w = %v, want ~3", data[0])
		}
	})

	t.Run("config validation", func(t *testing.T) {
		p := paramWithGrad(t, []float32{1}, []float32{1})
		bad := DefaultAdamConfig()
		bad.Beta1 = 1.0
		if _, err := NewAdam(bad, []*tensor.Tensor{p}); err == nil {
			t.Error("expected error for beta1 = 1")
		}
		bad = DefaultAdamConfig()
		bad.Epsilon = 0
		if _, err := NewAdam(bad, []*tensor.Tensor{p}); err == nil {
			t.Error("expected error for zero epsilon")
		}
	})
}

func TestRMSProp(t *testing.T) {
	p := paramWithGrad(t, []float32{1}, []float32{1})
	cfg := DefaultRMSPropConfig()
	cfg.LearningRate = 0.01
	r, err := NewRMSProp(cfg, []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewRMSProp failed: %v", err)
	}
	if err := r.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	data, _ := p.GetFloat32Data()
	if data[0] >= 1 {
		t.Errorf("weight did not decrease against positive gradient: %v", data[0])
	}
}

func TestStateSaveLoad(t *testing.T) {
	p := paramWithGrad(t, []float32{1, 2}, []float32{0.1, 0.2})
	cfg := DefaultAdamConfig()
	adam, err := NewAdam(cfg, []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	if err := adam.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	state, err := adam.GetState()
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Type != "Adam" {
		t.Errorf("state type %q, want Adam", state.Type)
	}

	fresh, err := NewAdam(cfg, []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	if err := fresh.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if fresh.GetStepCount() != adam.GetStepCount() {
		t.Errorf("restored step count %d, want %d", fresh.GetStepCount(), adam.GetStepCount())
	}
	for i := range adam.moment1 {
		for j := range adam.moment1[i] {
			if fresh.moment1[i][j] != adam.moment1[i][j] {
				t.Fatalf("moment1[%d][%d] not restored", i, j)
			}
		}
	}

	t.Run("type mismatch rejected", func(t *testing.T) {
		sgd, err := NewSGD(DefaultSGDConfig(), []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewSGD failed: %v", err)
		}
		if err := sgd.LoadState(state); err == nil {
			t.Error("expected error loading Adam state into SGD")
		}
	})
}

func TestClipGradNorm(t *testing.T) {
	t.Run("scales oversized gradients", func(t *testing.T) {
		p := paramWithGrad(t, []float32{0, 0}, []float32{3, 4}) // norm 5
		norm, err := ClipGradNorm([]*tensor.Tensor{p}, 1.0)
		if err != nil {
			t.Fatalf("ClipGradNorm failed: %v", err)
		}
		if math.Abs(norm-5) > 1e-6 {
			t.Errorf("reported norm %v, want 5", norm)
		}
		g, _ := p.Grad().GetFloat32Data()
		clipped := math.Sqrt(float64(g[0]*g[0] + g[1]*g[1]))
		if math.Abs(clipped-1) > 1e-5 {
			t.Errorf("clipped norm %v, want 1", clipped)
		}
	})

	t.Run("small gradients untouched", func(t *testing.T) {
		p := paramWithGrad(t, []float32{0}, []float32{0.5})
		if _, err := ClipGradNorm([]*tensor.Tensor{p}, 1.0); err != nil {
			t.Fatalf("ClipGradNorm failed: %v", err)
		}
		g, _ := p.Grad().GetFloat32Data()
		if g[0] != 0.5 {
			t.Errorf("gradient changed below the cap: %v", g[0])
		}
	})

	t.Run("invalid max norm", func(t *testing.T) {
		p := paramWithGrad(t, []float32{0}, []float32{1})
		if _, err := ClipGradNorm([]*tensor.Tensor{p}, 0); err == nil {
			t.Error("expected error for non-positive max norm")
		}
	})
}
