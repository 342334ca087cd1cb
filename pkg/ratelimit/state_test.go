package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		wantNil       bool
		wantErr       bool
		wantRemaining int
		wantLimit     int
		wantReset     int64
	}{
		{
			name: "all headers",
			headers: map[string]string{
				HeaderLimit:     "1000",
				HeaderRemaining: "15",
				HeaderReset:     "1767225600",
			},
			wantRemaining: 15,
			wantLimit:     1000,
			wantReset:     1767225600,
		},
		{
			name: "remaining only",
			headers: map[string]string{
				HeaderRemaining: "25",
			},
			wantRemaining: 25,
		},
		{
			name:    "no headers",
			headers: map[string]string{},
			wantNil: true,
		},
		{
			name: "limit without remaining",
			headers: map[string]string{
				HeaderLimit: "1000",
			},
			wantNil: true,
		},
		{
			name: "invalid remaining",
			headers: map[string]string{
				HeaderRemaining: "lots",
			},
			wantErr: true,
			wantNil: true,
		},
		{
			name: "invalid reset keeps remaining",
			headers: map[string]string{
				HeaderRemaining: "10",
				HeaderReset:     "soon",
			},
			wantErr:       true,
			wantRemaining: 10,
		},
		{
			name: "invalid limit keeps remaining and reset",
			headers: map[string]string{
				HeaderRemaining: "10",
				HeaderLimit:     "x",
				HeaderReset:     "1767225600",
			},
			wantErr:       true,
			wantRemaining: 10,
			wantReset:     1767225600,
		},
		{
			name: "fractional reset still throttles on remaining",
			headers: map[string]string{
				HeaderLimit:     "1000",
				HeaderRemaining: "15",
				HeaderReset:     "1767225600.5",
			},
			wantErr:       true,
			wantRemaining: 15,
			wantLimit:     1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			state, err := ParseHeaders(h)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantNil {
				if state != nil {
					t.Errorf("ParseHeaders() = %+v, want nil", state)
				}
				return
			}
			if state == nil {
				t.Fatal("ParseHeaders() = nil, want state")
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
			if state.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", state.Limit, tt.wantLimit)
			}
			if tt.wantReset != 0 && state.ResetAt.Unix() != tt.wantReset {
				t.Errorf("ResetAt = %d, want %d", state.ResetAt.Unix(), tt.wantReset)
			}
			if tt.wantReset == 0 && !state.ResetAt.IsZero() {
				t.Errorf("ResetAt = %v, want zero", state.ResetAt)
			}
			if got, want := state.NeedsThrottling(DefaultThreshold), tt.wantRemaining < DefaultThreshold; got != want {
				t.Errorf("NeedsThrottling(%d) = %v, want %v", DefaultThreshold, got, want)
			}
		})
	}
}

func TestQuotaState_NeedsThrottling(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		expected  bool
	}{
		{
			name:      "well above threshold",
			remaining: 500,
			expected:  false,
		},
		{
			name:      "at threshold",
			remaining: DefaultThreshold,
			expected:  false,
		},
		{
			name:      "just below threshold",
			remaining: DefaultThreshold - 1,
			expected:  true,
		},
		{
			name:      "exhausted",
			remaining: 0,
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &QuotaState{Remaining: tt.remaining}
			if got := state.NeedsThrottling(DefaultThreshold); got != tt.expected {
				t.Errorf("NeedsThrottling() = %v, want %v (remaining=%d)", got, tt.expected, tt.remaining)
			}
		})
	}
}

func TestQuotaState_TimeUntilReset(t *testing.T) {
	future := &QuotaState{ResetAt: time.Now().Add(5 * time.Minute)}
	d := future.TimeUntilReset()
	if d < 4*time.Minute+58*time.Second || d > 5*time.Minute {
		t.Errorf("TimeUntilReset() = %v, want about 5m", d)
	}

	past := &QuotaState{ResetAt: time.Now().Add(-5 * time.Minute)}
	if past.TimeUntilReset() != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0 for past reset", past.TimeUntilReset())
	}

	unknown := &QuotaState{}
	if unknown.TimeUntilReset() != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0 for unknown reset", unknown.TimeUntilReset())
	}
}
