package training

import (
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
)

// Reporter receives progress events from the trainer. All methods are side
// effects only; they never influence control flow.
type Reporter interface {
	// StartPass is called at the beginning of each optimization phase.
	StartPass(pass, maxPasses, batches int)
	// BatchDone is called after each optimizer step with that batch's loss.
	BatchDone(loss float64)
	// PassDone is called after a pass completes, subject to ReportEvery.
	PassDone(m PassMetrics)
	// Warn is called when a validation score is NaN or Inf.
	Warn(w *NumericInstabilityWarning)
	// Stopped is called once when the run terminates.
	Stopped(status Status, pass int)
}

// NopReporter discards all progress events.
type NopReporter struct{}

func (*NopReporter) StartPass(pass, maxPasses, batches int) {}
func (*NopReporter) BatchDone(loss float64)                 {}
func (*NopReporter) PassDone(m PassMetrics)                 {}
func (*NopReporter) Warn(w *NumericInstabilityWarning)      {}
func (*NopReporter) Stopped(status Status, pass int)        {}

// ConsoleReporter prints progress to a writer, with an optional per-pass
// progress bar over training batches.
type ConsoleReporter struct {
	out      io.Writer
	showBars bool
	bar      *pb.ProgressBar
}

// NewConsoleReporter creates a reporter writing to stdout. When showBars is
// true a progress bar tracks batches within each pass.
func NewConsoleReporter(showBars bool) *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout, showBars: showBars}
}

func (r *ConsoleReporter) StartPass(pass, maxPasses, batches int) {
	if r.showBars {
		r.bar = pb.New(batches)
		r.bar.SetWriter(r.out)
		r.bar.Start()
	}
}

func (r *ConsoleReporter) BatchDone(loss float64) {
	if r.bar != nil {
		r.bar.Increment()
	}
}

func (r *ConsoleReporter) PassDone(m PassMetrics) {
	r.finishBar()
	fmt.Fprintf(r.out, "pass %d: train_loss=%.4f val_nll=%.4f best=%.4f patience=%d lr=%.2e time=%v\n",
		m.Pass, m.TrainLoss, m.ValidScore, m.BestScore, m.PatienceCounter, m.LearningRate, m.Duration.Round(1e6))
}

func (r *ConsoleReporter) Warn(w *NumericInstabilityWarning) {
	r.finishBar()
	fmt.Fprintf(r.out, "warning: %v\n", w)
}

func (r *ConsoleReporter) Stopped(status Status, pass int) {
	r.finishBar()
	switch status {
	case StatusStoppedEarly:
		fmt.Fprintf(r.out, "early stopping triggered at pass %d\n", pass)
	case StatusStoppedMaxPasses:
		fmt.Fprintf(r.out, "training completed after %d passes\n", pass+1)
	}
}

func (r *ConsoleReporter) finishBar() {
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
}
