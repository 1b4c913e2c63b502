package optimizer

import (
	"fmt"
	"math"

	"github.com/pointproc/go-tpp/tensor"
)

// The hyperparameter map round-trips through JSON, which turns every number
// into float64. These helpers recover typed values with a fallback default.

func extractFloat32Param(params map[string]interface{}, key string, defaultValue float32) float32 {
	v, ok := params[key]
	if !ok {
		return defaultValue
	}
	switch n := v.(type) {
	case float32:
		return n
	case float64:
		return float32(n)
	case int:
		return float32(n)
	default:
		return defaultValue
	}
}

func extractBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return defaultValue
}

func extractUint64Param(params map[string]interface{}, key string, defaultValue uint64) uint64 {
	v, ok := params[key]
	if !ok {
		return defaultValue
	}
	switch n := v.(type) {
	case uint64:
		return n
	case float64:
		if n < 0 {
			return defaultValue
		}
		return uint64(n)
	case int:
		if n < 0 {
			return defaultValue
		}
		return uint64(n)
	default:
		return defaultValue
	}
}

// extractBufferIndex extracts the trailing index from state tensor names
// like "momentum_0" or "squared_grad_avg_1".
func extractBufferIndex(name string) int {
	lastUnderscore := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '_' {
			lastUnderscore = i
			break
		}
	}
	if lastUnderscore == -1 {
		return -1
	}

	var idx int
	if n, err := fmt.Sscanf(name[lastUnderscore+1:], "%d", &idx); n == 1 && err == nil {
		return idx
	}
	return -1
}

// ClipGradNorm rescales the gradients of params in-place so their global L2
// norm does not exceed maxNorm. It returns the norm before clipping.
func ClipGradNorm(params []*tensor.Tensor, maxNorm float64) (float64, error) {
	if maxNorm <= 0 {
		return 0, fmt.Errorf("max norm must be positive, got %f", maxNorm)
	}

	var sumSq float64
	var grads [][]float32
	for _, p := range params {
		g := gradData(p)
		if g == nil {
			continue
		}
		grads = append(grads, g)
		for _, v := range g {
			sumSq += float64(v) * float64(v)
		}
	}
	norm := math.Sqrt(sumSq)
	if norm <= maxNorm || norm == 0 {
		return norm, nil
	}

	scale := float32(maxNorm / norm)
	for _, g := range grads {
		for j := range g {
			g[j] *= scale
		}
	}
	return norm, nil
}
