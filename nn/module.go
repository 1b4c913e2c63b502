// Package nn provides neural network building blocks: the Module interface,
// a fully connected layer, a GRU cell for recurrent history encoding, and
// value-semantics parameter snapshots.
package nn

import (
	"math/rand"

	"github.com/pointproc/go-tpp/tensor"
)

// Global random source for deterministic initialization.
var globalRng = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight
// initialization.
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Module interface defines methods that all neural network layers must
// implement.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor // Returns trainable parameters (tensors with requiresGrad=true)
	Train()                       // Sets module to training mode
	Eval()                        // Sets module to evaluation mode
	IsTraining() bool             // Returns true if in training mode
}
