package nn

import (
	"fmt"

	"github.com/pointproc/go-tpp/tensor"
)

// Snapshot is a deep copy of a parameter set captured at a point in time.
// The copy has value semantics: the live parameters keep mutating after a
// snapshot is taken, the snapshot does not.
type Snapshot [][]float32

// CaptureSnapshot copies the current values of the given parameters.
func CaptureSnapshot(params []*tensor.Tensor) (Snapshot, error) {
	snap := make(Snapshot, len(params))
	for i, p := range params {
		data, err := p.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %v", i, err)
		}
		cp := make([]float32, len(data))
		copy(cp, data)
		snap[i] = cp
	}
	return snap, nil
}

// RestoreSnapshot writes a snapshot back into the given parameters in place.
// The parameter list must match the one the snapshot was captured from.
func RestoreSnapshot(params []*tensor.Tensor, snap Snapshot) error {
	if len(params) != len(snap) {
		return fmt.Errorf("snapshot holds %d parameters, model has %d", len(snap), len(params))
	}
	for i, p := range params {
		data, err := p.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter %d: %v", i, err)
		}
		if len(data) != len(snap[i]) {
			return fmt.Errorf("parameter %d size mismatch: snapshot %d, live %d", i, len(snap[i]), len(data))
		}
		copy(data, snap[i])
	}
	return nil
}
