package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recordingGuard returns a guard whose pauses are recorded instead of slept.
func recordingGuard(cfg Config) (*Guard, *[]time.Duration) {
	var slept []time.Duration
	g := NewGuard(cfg, zerolog.Nop())
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return g, &slept
}

func quotaHeaders(remaining string) http.Header {
	h := http.Header{}
	if remaining != "" {
		h.Set(HeaderRemaining, remaining)
	}
	return h
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Threshold != 20 {
		t.Errorf("Threshold = %d, want 20", cfg.Threshold)
	}
	if cfg.Sleep != 10*time.Second {
		t.Errorf("Sleep = %v, want 10s", cfg.Sleep)
	}
}

func TestGuard_Wait(t *testing.T) {
	tests := []struct {
		name      string
		remaining string
		extra     map[string]string
		wantSleep time.Duration
	}{
		{
			name:      "remaining 15 below threshold pauses 10s",
			remaining: "15",
			wantSleep: 10 * time.Second,
		},
		{
			name:      "remaining 25 above threshold does not pause",
			remaining: "25",
			wantSleep: 0,
		},
		{
			name:      "remaining equal to threshold does not pause",
			remaining: "20",
			wantSleep: 0,
		},
		{
			name:      "remaining zero pauses",
			remaining: "0",
			wantSleep: 10 * time.Second,
		},
		{
			name:      "missing header does not pause",
			remaining: "",
			wantSleep: 0,
		},
		{
			name:      "malformed header does not pause",
			remaining: "n/a",
			wantSleep: 0,
		},
		{
			name:      "fractional reset does not cancel a low quota pause",
			remaining: "15",
			extra:     map[string]string{HeaderReset: "1767225600.5"},
			wantSleep: 10 * time.Second,
		},
		{
			name:      "malformed limit does not cancel a low quota pause",
			remaining: "15",
			extra:     map[string]string{HeaderLimit: "unlimited"},
			wantSleep: 10 * time.Second,
		},
		{
			name:      "malformed reset with healthy quota does not pause",
			remaining: "25",
			extra:     map[string]string{HeaderReset: "later"},
			wantSleep: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, slept := recordingGuard(DefaultConfig())

			h := quotaHeaders(tt.remaining)
			for k, v := range tt.extra {
				h.Set(k, v)
			}

			got, err := g.Wait(context.Background(), h)
			if err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
			if got != tt.wantSleep {
				t.Errorf("Wait() = %v, want %v", got, tt.wantSleep)
			}

			wantCalls := 0
			if tt.wantSleep > 0 {
				wantCalls = 1
			}
			if len(*slept) != wantCalls {
				t.Fatalf("sleep called %d times, want %d", len(*slept), wantCalls)
			}
			if wantCalls == 1 && (*slept)[0] < 10*time.Second {
				t.Errorf("slept %v, want >= 10s", (*slept)[0])
			}
		})
	}
}

func TestGuard_ShouldThrottle(t *testing.T) {
	g := NewGuard(DefaultConfig(), zerolog.Nop())

	if !g.ShouldThrottle(quotaHeaders("15")) {
		t.Error("ShouldThrottle(15) = false, want true")
	}
	if g.ShouldThrottle(quotaHeaders("25")) {
		t.Error("ShouldThrottle(25) = true, want false")
	}
	if g.ShouldThrottle(quotaHeaders("")) {
		t.Error("ShouldThrottle(missing) = true, want false")
	}

	h := quotaHeaders("15")
	h.Set(HeaderReset, "1767225600.5")
	if !g.ShouldThrottle(h) {
		t.Error("ShouldThrottle(15, bad reset) = false, want true")
	}
}

func TestGuard_Wait_RealDelay(t *testing.T) {
	g := NewGuard(Config{Threshold: 20, Sleep: 50 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	if _, err := g.Wait(context.Background(), quotaHeaders("15")); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Wait() returned after %v, want >= 50ms", elapsed)
	}

	start = time.Now()
	if _, err := g.Wait(context.Background(), quotaHeaders("25")); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("Wait() with healthy quota took %v", elapsed)
	}
}

func TestGuard_Wait_ContextCancelled(t *testing.T) {
	g := NewGuard(Config{Threshold: 20, Sleep: time.Minute}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Wait(ctx, quotaHeaders("1"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Wait() ignored cancellation, took %v", elapsed)
	}
}

func TestNewGuard_Defaults(t *testing.T) {
	g := NewGuard(Config{}, zerolog.Nop())
	if g.config.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", g.config.Threshold, DefaultThreshold)
	}

	g = NewGuard(Config{Threshold: 5, Sleep: -time.Second}, zerolog.Nop())
	if g.config.Sleep != 0 {
		t.Errorf("Sleep = %v, want 0 for negative input", g.config.Sleep)
	}
}
