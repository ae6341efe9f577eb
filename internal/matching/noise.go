package matching

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Noise perturbs heuristic scores to emulate a model's measurement variance.
type Noise interface {
	Sample() float64
}

// NoNoise disables perturbation.
type NoNoise struct{}

func (NoNoise) Sample() float64 { return 0 }

// UniformNoise draws from [-Amplitude, +Amplitude]. Safe for concurrent use.
type UniformNoise struct {
	amplitude float64
	mu        sync.Mutex
	rng       *rand.Rand
}

// NewUniformNoise returns a seeded noise source. A zero seed uses the clock.
func NewUniformNoise(amplitude float64, seed uint64) *UniformNoise {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &UniformNoise{
		amplitude: amplitude,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (u *UniformNoise) Sample() float64 {
	u.mu.Lock()
	v := u.rng.Float64()
	u.mu.Unlock()
	return (v*2 - 1) * u.amplitude
}
