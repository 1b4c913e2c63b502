package events

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/pointproc/go-tpp/tensor"
)

// padTau is the inter-event time written into padded positions. Padded
// entries are excluded from every loss through the mask; the value only has
// to keep downstream logarithms finite.
const padTau = 1.0

// Batch groups a set of sequences padded to a common length. Inter-event
// times are stored row-major as [batchSize, maxLen] with a parallel 0/1 mask.
type Batch struct {
	taus      []float32
	mask      []float32
	batchSize int
	maxLen    int
	events    int
}

func newBatch(seqs []Sequence) (*Batch, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	maxLen := 0
	events := 0
	for _, s := range seqs {
		if s.Len() > maxLen {
			maxLen = s.Len()
		}
		events += s.Len()
	}

	b := &Batch{
		taus:      make([]float32, len(seqs)*maxLen),
		mask:      make([]float32, len(seqs)*maxLen),
		batchSize: len(seqs),
		maxLen:    maxLen,
		events:    events,
	}
	for i := range b.taus {
		b.taus[i] = padTau
	}
	for i, s := range seqs {
		for j, tau := range s.InterEventTimes() {
			b.taus[i*maxLen+j] = float32(tau)
			b.mask[i*maxLen+j] = 1
		}
	}
	return b, nil
}

// Size returns the number of sequences in the batch.
func (b *Batch) Size() int {
	return b.batchSize
}

// MaxLen returns the padded sequence length.
func (b *Batch) MaxLen() int {
	return b.maxLen
}

// Events returns the number of real (unpadded) events in the batch.
func (b *Batch) Events() int {
	return b.events
}

// TauColumn returns the inter-event times at step t as a [batchSize, 1]
// tensor. Padded rows hold the pad value.
func (b *Batch) TauColumn(t int) (*tensor.Tensor, error) {
	if t < 0 || t >= b.maxLen {
		return nil, fmt.Errorf("step %d out of range [0, %d)", t, b.maxLen)
	}
	col := make([]float32, b.batchSize)
	for i := 0; i < b.batchSize; i++ {
		col[i] = b.taus[i*b.maxLen+t]
	}
	return tensor.NewTensor([]int{b.batchSize, 1}, tensor.Float32, col)
}

// MaskColumn returns the presence mask at step t as a [batchSize, 1] tensor.
func (b *Batch) MaskColumn(t int) (*tensor.Tensor, error) {
	if t < 0 || t >= b.maxLen {
		return nil, fmt.Errorf("step %d out of range [0, %d)", t, b.maxLen)
	}
	col := make([]float32, b.batchSize)
	for i := 0; i < b.batchSize; i++ {
		col[i] = b.mask[i*b.maxLen+t]
	}
	return tensor.NewTensor([]int{b.batchSize, 1}, tensor.Float32, col)
}

// Loader provides batching and optional shuffling over a dataset. A new
// iteration order is drawn on every Reset when shuffling is enabled.
type Loader struct {
	dataset   *Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewLoader creates a loader over the dataset. The dataset is validated once
// up front so iteration cannot fail mid-epoch.
func NewLoader(dataset *Dataset, batchSize int, shuffle bool, seed int64) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if err := dataset.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset: %v", err)
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}
	return &Loader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		indices:   indices,
	}, nil
}

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	return (l.dataset.Len() + l.batchSize - 1) / l.batchSize
}

// Events returns the total number of events the loader will yield per epoch.
func (l *Loader) Events() int {
	return l.dataset.TotalEvents()
}

// Reset rewinds the loader and reshuffles when enabled.
func (l *Loader) Reset() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.position = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.indices), func(i, j int) {
			l.indices[i], l.indices[j] = l.indices[j], l.indices[i]
		})
	}
}

// Next returns the next batch, or nil when the epoch is complete.
func (l *Loader) Next() *Batch {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.position >= len(l.indices) {
		return nil
	}
	end := l.position + l.batchSize
	if end > len(l.indices) {
		end = len(l.indices)
	}
	seqs := make([]Sequence, 0, end-l.position)
	for _, idx := range l.indices[l.position:end] {
		seqs = append(seqs, l.dataset.Sequences[idx])
	}
	l.position = end

	batch, err := newBatch(seqs)
	if err != nil {
		// Unreachable: the dataset was validated and the slice is non-empty.
		panic(fmt.Sprintf("batch construction failed: %v", err))
	}
	return batch
}

// HasNext reports whether more batches remain in the current epoch.
func (l *Loader) HasNext() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.position < len(l.indices)
}

// Iterator resets the loader and returns a channel yielding one epoch of
// batches, for use in range loops.
func (l *Loader) Iterator() <-chan *Batch {
	ch := make(chan *Batch, 1)
	go func() {
		defer close(ch)
		l.Reset()
		for {
			batch := l.Next()
			if batch == nil {
				return
			}
			ch <- batch
		}
	}()
	return ch
}
