package utils

import "time"

// IsExpired checks if a timestamp is past its ttl
func IsExpired(timestamp time.Time, ttl time.Duration) bool {
	return time.Since(timestamp) > ttl
}

// TimeUntilExpiry returns time until expiry, floored at zero
func TimeUntilExpiry(timestamp time.Time, ttl time.Duration) time.Duration {
	remaining := time.Until(timestamp.Add(ttl))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Now returns current time (swappable for tests)
var Now = time.Now
