package runner

import "time"

// Strategy decides how long to wait before the next retry attempt.
type Strategy interface {
	// SleepDuration receives the zero-based index of the attempt that
	// just failed and the error it failed with.
	SleepDuration(attempt int, err error) time.Duration
}

// NoDelayStrategy retries immediately. Tests use it to drain retry
// budgets without waiting.
type NoDelayStrategy struct{}

func (NoDelayStrategy) SleepDuration(int, error) time.Duration { return 0 }

// ExponentialBackoffStrategy grows the delay geometrically from Base,
// multiplying by Factor after each failed attempt and clamping to Max
// when Max is set.
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	delay := e.Base
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * e.Factor)
		if e.Max > 0 && delay >= e.Max {
			return e.Max
		}
	}
	if delay < 0 {
		return 0
	}
	if e.Max > 0 && delay > e.Max {
		return e.Max
	}
	return delay
}
