// Package ratelimit implements the Intercom quota guard. It reads the
// X-RateLimit-Remaining header of a response and pauses the caller for a
// fixed duration when the remaining quota drops below a threshold.
package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Intercom rate limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Defaults for the guard decision.
const (
	// DefaultThreshold throttles when fewer than this many calls remain.
	DefaultThreshold = 20

	// DefaultSleep is the fixed pause applied below the threshold.
	// It is not derived from X-RateLimit-Reset.
	DefaultSleep = 10 * time.Second
)

// QuotaState is the rate limit snapshot carried by one response.
type QuotaState struct {
	// Limit is the per-window request allowance (X-RateLimit-Limit, 0 if absent).
	Limit int

	// Remaining is the number of calls left in the window (X-RateLimit-Remaining).
	Remaining int

	// ResetAt is when the window resets (X-RateLimit-Reset, Unix seconds; zero if absent).
	ResetAt time.Time
}

// NeedsThrottling returns true if remaining quota is below threshold.
func (s *QuotaState) NeedsThrottling(threshold int) bool {
	return s.Remaining < threshold
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if unknown or already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	if s.ResetAt.IsZero() {
		return 0
	}
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// ParseHeaders reads the quota headers of a response.
// Returns nil, nil when X-RateLimit-Remaining is absent and nil, err when it
// is malformed. A malformed Limit or Reset leaves that field zero: the state
// is still returned, together with an error describing the bad header.
func ParseHeaders(headers http.Header) (*QuotaState, error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	state := &QuotaState{Remaining: remain}
	var errs []error

	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s header: %w", HeaderLimit, err))
		} else {
			state.Limit = limit
		}
	}

	if resetStr := headers.Get(HeaderReset); resetStr != "" {
		reset, err := strconv.ParseInt(resetStr, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s header: %w", HeaderReset, err))
		} else {
			state.ResetAt = time.Unix(reset, 0)
		}
	}

	return state, errors.Join(errs...)
}
