package session

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig shapes the pause between consecutive transient read failures.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter bool
}

// Delay returns the pause before retry number attempt (1-based). The first
// retry always waits InitialDelay.
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || b.InitialDelay <= 0 {
		return max(b.InitialDelay, 0)
	}
	growth := max(b.Multiplier, 1.0)
	delay := float64(b.InitialDelay) * math.Pow(growth, float64(attempt-1))
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}
	if b.Jitter && rng != nil {
		delay *= 0.5 + rng.Float64()
	}
	return time.Duration(delay)
}

// readPacer counts consecutive read failures for the inbound pump.
type readPacer struct {
	cfg      BackoffConfig
	rng      *rand.Rand
	failures int
}

func newReadPacer(cfg BackoffConfig) *readPacer {
	return &readPacer{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// fail records one failure and returns how long to wait before reading again.
func (p *readPacer) fail() (attempt int, delay time.Duration) {
	p.failures++
	return p.failures, p.cfg.Delay(p.failures, p.rng)
}

func (p *readPacer) reset() { p.failures = 0 }
