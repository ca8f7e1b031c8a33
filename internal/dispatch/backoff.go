package dispatch

import (
	"math/rand"
	"sync"
	"time"
)

const jitterFraction = 0.2

var (
	backoffRandMu sync.Mutex
	backoffRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Backoff computes the delay before a retry attempt: base doubled per
// completed attempt, capped, with a symmetric jitter band to spread retry
// storms. attemptCount is the number of attempts already made, so the first
// retry uses the base delay.
func Backoff(base, max time.Duration, attemptCount int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	if attemptCount < 1 {
		attemptCount = 1
	}

	delay := base
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}

	return applyJitter(delay)
}

func applyJitter(delay time.Duration) time.Duration {
	window := time.Duration(float64(delay) * jitterFraction)
	if window <= 0 {
		return delay
	}
	backoffRandMu.Lock()
	offset := time.Duration(backoffRand.Int63n(int64(2*window))) - window
	backoffRandMu.Unlock()

	jittered := delay + offset
	if jittered < 0 {
		return 0
	}
	return jittered
}
