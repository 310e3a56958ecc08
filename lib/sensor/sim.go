package sensor

import (
	"context"
	"math/rand/v2"
	"sync"

	"golang.org/x/xerrors"
)

// Simulated is a random-walk source for running without hardware.
type Simulated struct {
	mu          sync.Mutex
	rng         *rand.Rand
	current     Reading
	failureRate float64
}

// NewSimulated starts the walk at start. failureRate in [0,1] is the share of
// reads that fail, to exercise the failure path.
func NewSimulated(seed uint64, start Reading, failureRate float64) *Simulated {
	return &Simulated{
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		current:     start,
		failureRate: failureRate,
	}
}

func (s *Simulated) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, xerrors.Errorf("sensor read canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failureRate > 0 && s.rng.Float64() < s.failureRate {
		return Reading{}, xerrors.Errorf("simulated checksum error: %w", ErrReadFailed)
	}
	s.current.Temperature = clamp(s.current.Temperature+(s.rng.Float64()-0.5)*0.4, 10, 40)
	s.current.Humidity = clamp(s.current.Humidity+(s.rng.Float64()-0.5), 20, 95)
	return s.current, nil
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
