package dispatch

import (
	"testing"
	"time"
)

func TestBackoffDoublesPerAttempt(t *testing.T) {
	base := time.Second
	max := 5 * time.Minute

	cases := []struct {
		attempts int
		nominal  time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tc := range cases {
		got := Backoff(base, max, tc.attempts)
		lower := time.Duration(float64(tc.nominal) * (1 - jitterFraction))
		upper := time.Duration(float64(tc.nominal) * (1 + jitterFraction))
		if got < lower || got > upper {
			t.Fatalf("attempt %d: delay %s outside [%s, %s]", tc.attempts, got, lower, upper)
		}
	}
}

func TestBackoffRespectsCap(t *testing.T) {
	max := 300 * time.Second
	got := Backoff(time.Second, max, 30)
	upper := time.Duration(float64(max) * (1 + jitterFraction))
	if got > upper {
		t.Fatalf("delay %s exceeds cap with jitter %s", got, upper)
	}
}

func TestBackoffDefendsAgainstBadInputs(t *testing.T) {
	if got := Backoff(0, 0, 0); got < 0 {
		t.Fatalf("negative delay %s", got)
	}
}
