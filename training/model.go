package training

import (
	"fmt"
	"math"

	"github.com/pointproc/go-tpp/events"
	"github.com/pointproc/go-tpp/tensor"
)

// Model is what the trainer needs from a point process model: a
// differentiable batch log-likelihood, access to parameters for snapshots
// and a training/inference mode switch.
type Model interface {
	LogProb(batch *events.Batch) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	Train()
	Eval()
}

// Aggregate combines per-batch log-likelihood sums and event counts into one
// aggregate negative log-likelihood per event.
func Aggregate(sums []float64, counts []int) float64 {
	var total float64
	var n int
	for i, s := range sums {
		total += s
		n += counts[i]
	}
	if n == 0 {
		return math.NaN()
	}
	return -total / float64(n)
}

// batchLoss returns the negated mean log-likelihood per event of one batch as
// a scalar tensor connected to the autograd graph, plus its float value.
func batchLoss(m Model, batch *events.Batch) (*tensor.Tensor, float64, error) {
	ll, err := m.LogProb(batch)
	if err != nil {
		return nil, 0, err
	}
	loss, err := tensor.ScaleAutograd(ll, -1.0/float64(batch.Events()))
	if err != nil {
		return nil, 0, err
	}
	value, err := loss.Item()
	if err != nil {
		return nil, 0, err
	}
	return loss, value, nil
}

// Evaluate computes the aggregate negative log-likelihood per event over all
// batches of a loader. The model is switched to evaluation mode.
func Evaluate(m Model, loader *events.Loader) (float64, error) {
	if loader == nil || loader.Len() == 0 {
		return 0, &EmptyDatasetError{Split: "evaluation"}
	}

	m.Eval()

	var sums []float64
	var counts []int
	loader.Reset()
	for loader.HasNext() {
		batch := loader.Next()
		ll, err := m.LogProb(batch)
		if err != nil {
			return 0, fmt.Errorf("evaluation forward pass failed: %v", err)
		}
		sum, err := ll.Item()
		if err != nil {
			return 0, fmt.Errorf("failed to read log-likelihood: %v", err)
		}
		sums = append(sums, sum)
		counts = append(counts, batch.Events())
	}

	return Aggregate(sums, counts), nil
}
