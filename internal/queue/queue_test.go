package queue

import (
	"testing"
	"time"

	"github.com/clubgallery/photoflow/internal/config"
)

func TestBackoff(t *testing.T) {
	q := New(nil, &config.WorkerConfig{
		BackoffBase: 30 * time.Second,
		BackoffMax:  30 * time.Minute,
		MaxAttempts: 3,
		LeaseTTL:    5 * time.Minute,
	})

	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{0, 30 * time.Second}, // clamped to first attempt
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{10, 30 * time.Minute},  // capped
		{100, 30 * time.Minute}, // stays capped, no overflow
	}

	for _, tt := range tests {
		if got := q.Backoff(tt.attempts); got != tt.expected {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.expected)
		}
	}
}
