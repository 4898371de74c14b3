package transport

import "time"

// Backoff returns the delay before reconnect attempt n (1-based):
// base * 2^(n-1), capped at ceiling.
func Backoff(n int, base, ceiling time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}
