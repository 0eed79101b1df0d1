package orchestrator

import "math/rand/v2"

// Increment decides how far a running run advances on one tick.
type Increment interface {
	Next(progress int) int
}

// IncrementFunc adapts a function to Increment.
type IncrementFunc func(progress int) int

func (f IncrementFunc) Next(progress int) int { return f(progress) }

// Fixed advances every run by step percent per tick.
func Fixed(step int) Increment {
	return IncrementFunc(func(int) int { return step })
}

// Random advances by a uniformly distributed amount in [lo, hi]. A nil src
// uses the global generator.
func Random(lo, hi int, src *rand.Rand) Increment {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo + 1
	return IncrementFunc(func(int) int {
		if src != nil {
			return lo + src.IntN(span)
		}
		return lo + rand.IntN(span)
	})
}
