// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package retry

import (
	"math"
	"time"
)

// Steps returns (initialDelay+3)^n, saturating at math.MaxInt64.
func Steps(initialDelay, n int) int64 {
	if n <= 0 {
		return 1
	}
	base := int64(initialDelay) + 3
	if base < 1 {
		base = 1
	}

	result := int64(1)
	for i := 0; i < n; i++ {
		if result > math.MaxInt64/base {
			return math.MaxInt64
		}
		result *= base
	}
	return result
}

// Delay returns the backoff for cycle n in seconds.
func Delay(initialDelay, n int) time.Duration {
	return DelayIn(initialDelay, n, time.Second)
}

// DelayIn returns Steps(initialDelay, n) multiples of unit, saturating
// instead of overflowing.
func DelayIn(initialDelay, n int, unit time.Duration) time.Duration {
	steps := Steps(initialDelay, n)
	if unit <= 0 {
		unit = time.Second
	}
	if steps > int64(math.MaxInt64/unit) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(steps) * unit
}
