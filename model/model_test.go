package model

import (
	"math"
	"testing"

	"github.com/pointproc/go-tpp/events"
	"github.com/pointproc/go-tpp/nn"
)

func testBatch(t *testing.T) *events.Batch {
	t.Helper()
	d := &events.Dataset{Sequences: []events.Sequence{
		{ArrivalTimes: []float64{0.5, 1.0, 2.0}},
		{ArrivalTimes: []float64{1.5}},
	}}
	l, err := events.NewLoader(d, 2, false, 1)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	return l.Next()
}

func testModel(t *testing.T, decoder string) *TPP {
	t.Helper()
	nn.SetRandomSeed(3)
	m, err := New(Config{
		HiddenSize: 8,
		Decoder:    decoder,
		Components: 4,
		Stats:      events.Stats{MeanLogTau: 0, StdLogTau: 1},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func TestNewValidation(t *testing.T) {
	t.Run("bad hidden size", func(t *testing.T) {
		if _, err := New(Config{HiddenSize: 0, Decoder: "exponential"}); err == nil {
			t.Error("expected error for zero hidden size")
		}
	})
	t.Run("unknown decoder", func(t *testing.T) {
		if _, err := New(Config{HiddenSize: 4, Decoder: "gamma"}); err == nil {
			t.Error("expected error for unknown decoder")
		}
	})
}

func TestLogProb(t *testing.T) {
	for _, dec := range []string{"exponential", "lognormmix"} {
		t.Run(dec, func(t *testing.T) {
			m := testModel(t, dec)
			batch := testBatch(t)

			ll, err := m.LogProb(batch)
			if err != nil {
				t.Fatalf("LogProb failed: %v", err)
			}
			if ll.NumElems != 1 {
				t.Fatalf("LogProb must return a scalar, got shape %v", ll.Shape)
			}
			v, err := ll.Item()
			if err != nil {
				t.Fatalf("Item failed: %v", err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("log-likelihood is not finite: %v", v)
			}
		})
	}

	t.Run("nil batch", func(t *testing.T) {
		m := testModel(t, "exponential")
		if _, err := m.LogProb(nil); err == nil {
			t.Error("expected error for nil batch")
		}
	})
}

func TestLogProbGradients(t *testing.T) {
	m := testModel(t, "lognormmix")
	batch := testBatch(t)

	ll, err := m.LogProb(batch)
	if err != nil {
		t.Fatalf("LogProb failed: %v", err)
	}
	if err := ll.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	// Every parameter must receive a finite gradient: the decoder scores
	// events directly and the encoder feeds every non-initial step.
	withGrad := 0
	for i, p := range m.Parameters() {
		g := p.Grad()
		if g == nil {
			continue
		}
		withGrad++
		data, _ := g.GetFloat32Data()
		for j, v := range data {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Errorf("parameter %d gradient element %d is not finite: %v", i, j, v)
			}
		}
	}
	if withGrad == 0 {
		t.Error("no parameter received a gradient")
	}
}

func TestParameters(t *testing.T) {
	m := testModel(t, "lognormmix")

	params := m.Parameters()
	named := m.NamedParameters()
	if len(params) != len(named) {
		t.Fatalf("Parameters has %d entries, NamedParameters has %d", len(params), len(named))
	}
	// 9 GRU matrices plus 3 decoder heads with weight and bias each.
	if len(params) != 15 {
		t.Errorf("got %d parameters, want 15", len(params))
	}

	seen := map[string]bool{}
	for _, np := range named {
		if np.Name == "" {
			t.Error("parameter with empty name")
		}
		if seen[np.Name] {
			t.Errorf("duplicate parameter name %s", np.Name)
		}
		seen[np.Name] = true
	}
}

func TestStateRoundTrip(t *testing.T) {
	m := testModel(t, "exponential")

	snap, err := m.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}

	params := m.Parameters()
	data, _ := params[0].GetFloat32Data()
	orig := data[0]
	data[0] = orig + 42

	if err := m.LoadState(snap); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if data[0] != orig {
		t.Errorf("LoadState restored %v, want %v", data[0], orig)
	}
}

func TestModeSwitch(t *testing.T) {
	m := testModel(t, "exponential")
	if !m.IsTraining() {
		t.Error("new model must start in training mode")
	}
	m.Eval()
	if m.IsTraining() {
		t.Error("Eval must leave training mode")
	}
	m.Train()
	if !m.IsTraining() {
		t.Error("Train must restore training mode")
	}
}
