package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the quota guard.
var (
	intercomQuotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intercom_rate_limit_remaining",
		Help: "X-RateLimit-Remaining of the most recent listing response",
	})

	intercomThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intercom_rate_limit_throttles_total",
		Help: "Total number of pauses applied because the quota fell below the threshold",
	})

	intercomThrottleSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intercom_rate_limit_throttle_seconds_total",
		Help: "Total time spent paused by the quota guard",
	})
)

// Config holds the guard thresholds.
type Config struct {
	// Threshold throttles when remaining quota is strictly below it.
	Threshold int

	// Sleep is the fixed pause.
	Sleep time.Duration
}

// DefaultConfig returns threshold 20 and a 10s pause.
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		Sleep:     DefaultSleep,
	}
}

// Guard decides, per response, whether to pause before the next request.
// It keeps no state between calls.
type Guard struct {
	config Config
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewGuard creates a new quota guard.
func NewGuard(cfg Config, logger zerolog.Logger) *Guard {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Sleep < 0 {
		cfg.Sleep = 0
	}
	return &Guard{
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// ShouldThrottle reports whether the response headers call for a pause.
// Only X-RateLimit-Remaining decides; when it is absent or malformed there is no throttling.
func (g *Guard) ShouldThrottle(headers http.Header) bool {
	state, _ := ParseHeaders(headers)
	if state == nil {
		return false
	}
	return state.NeedsThrottling(g.config.Threshold)
}

// Wait inspects the response headers and, if the remaining quota is below the
// threshold, blocks for the configured duration. It returns the time paused.
// The only error is context cancellation during the pause.
func (g *Guard) Wait(ctx context.Context, headers http.Header) (time.Duration, error) {
	state, err := ParseHeaders(headers)
	if state == nil {
		if err != nil {
			g.logger.Warn().Err(err).Msg("Ignoring malformed rate limit headers")
		} else {
			g.logger.Warn().Msg("No rate limit headers on response")
		}
		return 0, nil
	}
	if err != nil {
		g.logger.Warn().Err(err).Int("remaining", state.Remaining).Msg("Malformed rate limit limit/reset header")
	}

	intercomQuotaRemaining.Set(float64(state.Remaining))

	if !state.NeedsThrottling(g.config.Threshold) {
		g.logger.Debug().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("Rate limit quota healthy")
		return 0, nil
	}

	g.logger.Warn().
		Int("remaining", state.Remaining).
		Int("threshold", g.config.Threshold).
		Dur("sleep", g.config.Sleep).
		Dur("until_reset", state.TimeUntilReset()).
		Msg("Rate limit quota low - pausing")

	intercomThrottlesTotal.Inc()
	start := time.Now()
	err = g.sleep(ctx, g.config.Sleep)
	slept := time.Since(start)
	intercomThrottleSeconds.Add(slept.Seconds())
	if err != nil {
		return slept, fmt.Errorf("rate limit pause: %w", err)
	}
	return g.config.Sleep, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
