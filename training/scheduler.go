package training

import (
	"math"
)

// LRScheduler defines the interface for learning rate scheduling strategies.
type LRScheduler interface {
	// GetLR returns the learning rate for the given pass. Pure function of
	// its arguments except for plateau schedulers, which track state
	// internally.
	GetLR(pass int, step int, baseLR float64) float64

	// GetName returns the scheduler name for logging.
	GetName() string
}

// StepLRScheduler reduces the learning rate by a factor every StepSize
// passes.
type StepLRScheduler struct {
	StepSize int     // Passes between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// NewStepLRScheduler creates a step learning rate scheduler.
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLRScheduler{
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepLRScheduler) GetLR(pass int, step int, baseLR float64) float64 {
	times := pass / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLRScheduler) GetName() string {
	return "StepLR"
}

// ExponentialLRScheduler decays the learning rate exponentially.
type ExponentialLRScheduler struct {
	Gamma float64 // Multiplicative factor of LR decay per pass
}

// NewExponentialLRScheduler creates an exponential learning rate scheduler.
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{
		Gamma: gamma,
	}
}

func (s *ExponentialLRScheduler) GetLR(pass int, step int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(pass))
}

func (s *ExponentialLRScheduler) GetName() string {
	return "ExponentialLR"
}

// CosineAnnealingLRScheduler anneals the learning rate along a cosine curve
// from baseLR down to EtaMin over TMax passes.
type CosineAnnealingLRScheduler struct {
	TMax   int
	EtaMin float64
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler.
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{
		TMax:   tMax,
		EtaMin: etaMin,
	}
}

func (s *CosineAnnealingLRScheduler) GetLR(pass int, step int, baseLR float64) float64 {
	if pass >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(pass)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string {
	return "CosineAnnealingLR"
}

// NoOpScheduler keeps the learning rate constant.
type NoOpScheduler struct{}

func (s *NoOpScheduler) GetLR(pass int, step int, baseLR float64) float64 {
	return baseLR
}

func (s *NoOpScheduler) GetName() string {
	return "ConstantLR"
}
