// Package events provides the event-sequence data model for temporal point
// process experiments: sequences of arrival times, datasets with
// deterministic splits and normalization statistics, padded batches, and a
// batching loader.
package events

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/stat"
)

// Sequence is one realization of a point process: strictly increasing
// positive arrival times on a common clock starting at zero.
type Sequence struct {
	ArrivalTimes []float64 `json:"arrival_times"`
}

// Len returns the number of events in the sequence.
func (s Sequence) Len() int {
	return len(s.ArrivalTimes)
}

// Validate checks that the sequence is non-empty with strictly increasing
// positive arrival times.
func (s Sequence) Validate() error {
	if len(s.ArrivalTimes) == 0 {
		return fmt.Errorf("sequence has no events")
	}
	prev := 0.0
	for i, t := range s.ArrivalTimes {
		if t <= prev {
			return fmt.Errorf("arrival time %d is %g, must be greater than %g", i, t, prev)
		}
		prev = t
	}
	return nil
}

// InterEventTimes returns the gaps between consecutive events. The first gap
// is measured from time zero, so the result has one entry per event.
func (s Sequence) InterEventTimes() []float64 {
	taus := make([]float64, len(s.ArrivalTimes))
	prev := 0.0
	for i, t := range s.ArrivalTimes {
		taus[i] = t - prev
		prev = t
	}
	return taus
}

// Dataset is an ordered collection of event sequences.
type Dataset struct {
	Sequences []Sequence `json:"sequences"`
}

// Len returns the number of sequences.
func (d *Dataset) Len() int {
	return len(d.Sequences)
}

// TotalEvents returns the number of events across all sequences.
func (d *Dataset) TotalEvents() int {
	total := 0
	for _, s := range d.Sequences {
		total += s.Len()
	}
	return total
}

// Validate checks every sequence in the dataset.
func (d *Dataset) Validate() error {
	for i, s := range d.Sequences {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sequence %d: %v", i, err)
		}
	}
	return nil
}

// Load reads a JSON dataset from disk and validates it.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %v", err)
	}
	defer f.Close()

	var d Dataset
	if err := json.NewDecoder(f).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %v", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset: %v", err)
	}
	return &d, nil
}

// Save writes the dataset to disk as JSON.
func (d *Dataset) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %v", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode dataset: %v", err)
	}
	return nil
}

// Split partitions the dataset into train/val/test subsets by fraction,
// shuffling sequence order with the given seed so splits are reproducible.
// The test split receives whatever the first two fractions leave over.
func (d *Dataset) Split(trainFrac, valFrac float64, seed int64) (train, val, test *Dataset, err error) {
	if trainFrac <= 0 || valFrac <= 0 || trainFrac+valFrac >= 1 {
		return nil, nil, nil, fmt.Errorf("invalid split fractions %g/%g: must be positive and sum below 1", trainFrac, valFrac)
	}

	n := len(d.Sequences)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	trainEnd := int(float64(n) * trainFrac)
	valEnd := trainEnd + int(float64(n)*valFrac)
	if trainEnd == 0 || valEnd == trainEnd || valEnd >= n {
		return nil, nil, nil, fmt.Errorf("dataset with %d sequences is too small for a %g/%g split", n, trainFrac, valFrac)
	}

	pick := func(idx []int) *Dataset {
		out := &Dataset{Sequences: make([]Sequence, len(idx))}
		for i, j := range idx {
			out.Sequences[i] = d.Sequences[j]
		}
		return out
	}
	return pick(indices[:trainEnd]), pick(indices[trainEnd:valEnd]), pick(indices[valEnd:]), nil
}

// Stats holds normalization statistics of log inter-event times.
type Stats struct {
	MeanLogTau float64 `json:"mean_log_tau"`
	StdLogTau  float64 `json:"std_log_tau"`
}

// LogTauStats computes the mean and standard deviation of log inter-event
// times across the whole dataset.
func (d *Dataset) LogTauStats() (Stats, error) {
	var logs []float64
	for _, s := range d.Sequences {
		for _, tau := range s.InterEventTimes() {
			if tau <= 0 {
				return Stats{}, fmt.Errorf("non-positive inter-event time %g", tau)
			}
			logs = append(logs, math.Log(tau))
		}
	}
	if len(logs) == 0 {
		return Stats{}, fmt.Errorf("dataset has no events")
	}

	mean, std := stat.MeanStdDev(logs, nil)
	if math.IsNaN(std) || std == 0 {
		// Single event or constant gaps; fall back to unit scale.
		std = 1
	}
	return Stats{MeanLogTau: mean, StdLogTau: std}, nil
}
