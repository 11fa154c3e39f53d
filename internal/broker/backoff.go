package broker

import "time"

// backoff returns the delay before retry attempt n: doubling from base,
// capped at 60s.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 1 * time.Second
	}
	if attempt <= 0 {
		return base
	}
	if attempt > 8 {
		attempt = 8
	}
	d := base * time.Duration(1<<attempt)
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}
