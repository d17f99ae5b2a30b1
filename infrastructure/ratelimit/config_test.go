package ratelimit

import (
	"testing"
	"time"
)

func TestNewConfigFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		window     string
		wantLimit  int
		wantWindow time.Duration
	}{
		{"defaults", "", "", 10, 60 * time.Second},
		{"configured", "5", "30", 5, 30 * time.Second},
		{"garbage falls back", "lots", "soon", 10, 60 * time.Second},
		{"zero falls back", "0", "0", 10, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FLAG_SUBMISSION_RATE_LIMIT", tt.limit)
			t.Setenv("FLAG_SUBMISSION_RATE_WINDOW", tt.window)

			cfg := NewConfigFromEnv()
			if cfg.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", cfg.Limit, tt.wantLimit)
			}
			if cfg.Window != tt.wantWindow {
				t.Errorf("Window = %v, want %v", cfg.Window, tt.wantWindow)
			}
		})
	}
}
