package events

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// GeneratorConfig controls synthetic dataset generation.
type GeneratorConfig struct {
	Sequences    int   // number of sequences
	EventsPerSeq int   // events per sequence
	Seed         int64 // seed for the random source
}

func (cfg GeneratorConfig) validate() error {
	if cfg.Sequences <= 0 {
		return fmt.Errorf("sequence count must be positive, got %d", cfg.Sequences)
	}
	if cfg.EventsPerSeq <= 0 {
		return fmt.Errorf("events per sequence must be positive, got %d", cfg.EventsPerSeq)
	}
	return nil
}

// GeneratePoisson samples sequences from a homogeneous Poisson process with
// the given rate.
func GeneratePoisson(cfg GeneratorConfig, rate float64) (*Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %g", rate)
	}

	exp := distuv.Exponential{Rate: rate, Src: rand.NewSource(uint64(cfg.Seed))}
	d := &Dataset{Sequences: make([]Sequence, cfg.Sequences)}
	for i := range d.Sequences {
		times := make([]float64, cfg.EventsPerSeq)
		t := 0.0
		for j := range times {
			t += exp.Rand()
			times[j] = t
		}
		d.Sequences[i] = Sequence{ArrivalTimes: times}
	}
	return d, nil
}

// GenerateRenewal samples sequences from a stationary renewal process with
// log-normally distributed inter-event times.
func GenerateRenewal(cfg GeneratorConfig, mu, sigma float64) (*Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("sigma must be positive, got %g", sigma)
	}

	ln := distuv.LogNormal{Mu: mu, Sigma: sigma, Src: rand.NewSource(uint64(cfg.Seed))}
	d := &Dataset{Sequences: make([]Sequence, cfg.Sequences)}
	for i := range d.Sequences {
		times := make([]float64, cfg.EventsPerSeq)
		t := 0.0
		for j := range times {
			t += ln.Rand()
			times[j] = t
		}
		d.Sequences[i] = Sequence{ArrivalTimes: times}
	}
	return d, nil
}

// GenerateHawkes samples sequences from a Hawkes process with exponential
// excitation kernel, lambda(t) = mu + sum_i alpha*beta*exp(-beta*(t-t_i)),
// using Ogata's thinning algorithm.
func GenerateHawkes(cfg GeneratorConfig, mu, alpha, beta float64) (*Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if mu <= 0 || beta <= 0 {
		return nil, fmt.Errorf("mu and beta must be positive, got %g and %g", mu, beta)
	}
	if alpha < 0 || alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in [0, 1) for a stable process, got %g", alpha)
	}

	src := rand.NewSource(uint64(cfg.Seed))
	uni := distuv.Uniform{Min: 0, Max: 1, Src: src}
	unitExp := distuv.Exponential{Rate: 1, Src: src}

	intensity := func(t float64, history []float64) float64 {
		lambda := mu
		for _, ti := range history {
			lambda += alpha * beta * math.Exp(-beta*(t-ti))
		}
		return lambda
	}

	d := &Dataset{Sequences: make([]Sequence, cfg.Sequences)}
	for i := range d.Sequences {
		var times []float64
		t := 0.0
		for len(times) < cfg.EventsPerSeq {
			upper := intensity(t, times)
			t += unitExp.Rand() / upper
			if uni.Rand()*upper <= intensity(t, times) {
				times = append(times, t)
			}
		}
		d.Sequences[i] = Sequence{ArrivalTimes: times}
	}
	return d, nil
}

// GenerateSelfCorrecting samples sequences from a self-correcting process
// with intensity lambda(t) = exp(mu*t - alpha*N(t)). The next arrival is
// drawn by inverting the compensator in closed form.
func GenerateSelfCorrecting(cfg GeneratorConfig, mu, alpha float64) (*Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if mu <= 0 || alpha <= 0 {
		return nil, fmt.Errorf("mu and alpha must be positive, got %g and %g", mu, alpha)
	}

	unitExp := distuv.Exponential{Rate: 1, Src: rand.NewSource(uint64(cfg.Seed))}
	d := &Dataset{Sequences: make([]Sequence, cfg.Sequences)}
	for i := range d.Sequences {
		times := make([]float64, cfg.EventsPerSeq)
		t := 0.0
		x := 0.0 // mu*t - alpha*N(t)
		for j := range times {
			e := unitExp.Rand()
			// Solve int_0^s exp(x + mu*u) du = e for s.
			s := math.Log(mu*e*math.Exp(-x)+1) / mu
			t += s
			x += mu*s - alpha
			times[j] = t
		}
		d.Sequences[i] = Sequence{ArrivalTimes: times}
	}
	return d, nil
}
