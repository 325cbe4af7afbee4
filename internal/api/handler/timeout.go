package handler

import (
	"errors"
	"math"
	"strconv"
	"time"
)

// maxTimeoutSeconds is the largest whole-second timeout a Duration can hold.
const maxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

// parseTimeout reads the wait route's timeout parameter. Empty means use the
// store's default; the store also caps the value.
func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, errors.New("timeout must not be negative")
		}
		if int64(secs) > maxTimeoutSeconds {
			return time.Duration(math.MaxInt64), nil
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New(`timeout must be a duration such as "10s" or a number of seconds`)
	}
	if d < 0 {
		return 0, errors.New("timeout must not be negative")
	}
	return d, nil
}
