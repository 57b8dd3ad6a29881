// Package backoff computes retry delays with exponential growth, a cap and jitter.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes the retry schedule of a single remote operation.
type Policy struct {
	Min    time.Duration // first retry delay
	Max    time.Duration // cap; a delay at or above it means the budget is spent
	Factor float64
	Jitter float64 // fraction of the delay added at random, e.g. 0.05
	Unit   time.Duration
	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64
}

// Default mirrors the schedule used by the mobile client: 2s doubling by 1.5
// up to two minutes with 5% jitter.
func Default() Policy {
	return Policy{
		Min:    2 * time.Second,
		Max:    120 * time.Second,
		Factor: 1.5,
		Jitter: 0.05,
		Unit:   time.Second,
	}
}

// Normalize fills zero fields with the defaults. A factor that cannot grow
// the delay (at most 1, or NaN) is replaced too, otherwise the cap would
// never be reached.
func (p Policy) Normalize() Policy {
	def := Default()
	if p.Min <= 0 {
		p.Min = def.Min
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.Max < p.Min {
		p.Max = p.Min
	}
	if math.IsNaN(p.Factor) || p.Factor <= 1 {
		p.Factor = def.Factor
	}
	if math.IsNaN(p.Jitter) || p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Unit <= 0 {
		p.Unit = def.Unit
	}
	return p
}

// First returns the delay used for the first retry of any operation.
func (p Policy) First() time.Duration {
	return p.Normalize().Min
}

// Next computes the delay that follows current.
func (p Policy) Next(current time.Duration) time.Duration {
	p = p.Normalize()
	if current < p.Min {
		current = p.Min
	}

	next := float64(current) * p.Factor
	if next > float64(p.Max) {
		next = float64(p.Max)
	}
	next += next * p.draw() * p.Jitter

	d := time.Duration(next)
	if truncated := d.Truncate(p.Unit); truncated > 0 {
		d = truncated
	}
	// Truncation can swallow a small factor; keep climbing by one unit.
	if d <= current && current < p.Max {
		d = current + p.Unit
		if d > p.Max {
			d = p.Max
		}
	}
	return d
}

// Exhausted reports whether a retry scheduled with delay d is out of budget.
func (p Policy) Exhausted(d time.Duration) bool {
	return d >= p.Normalize().Max
}

func (p Policy) draw() float64 {
	if p.Rand != nil {
		return p.Rand()
	}
	return rand.Float64()
}
