package retry

import (
	"context"
	"testing"
	"time"
)

func TestDelayNeverExceedsMax(t *testing.T) {
	p := Default()

	for attempt := 0; attempt <= 64; attempt++ {
		for i := 0; i < 20; i++ {
			d := p.Delay(attempt)
			if d > p.Max {
				t.Fatalf("Delay(%d) = %v exceeds max %v", attempt, d, p.Max)
			}
			if d < 0 {
				t.Fatalf("Delay(%d) = %v is negative", attempt, d)
			}
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	p := Policy{Base: 60 * time.Second, Max: 24 * time.Hour}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{3, 480 * time.Second},
	}

	for _, tt := range tests {
		lo := time.Duration(float64(tt.expected) * 0.75)
		hi := time.Duration(float64(tt.expected) * 1.25)

		for i := 0; i < 100; i++ {
			d := p.Delay(tt.attempt)
			if d < lo || d > hi {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", tt.attempt, d, lo, hi)
			}
		}
	}
}

func TestDelayNonDecreasingBeforeClamp(t *testing.T) {
	// With jitter stripped away by averaging, the expected delay must be
	// non-decreasing in the attempt count.
	p := Policy{Base: time.Second, Max: 24 * time.Hour}

	avg := func(attempt int) time.Duration {
		var total time.Duration
		const samples = 500
		for i := 0; i < samples; i++ {
			total += p.Delay(attempt)
		}
		return total / samples
	}

	prev := avg(0)
	for attempt := 1; attempt < 8; attempt++ {
		cur := avg(attempt)
		if cur < prev {
			t.Fatalf("expected delay decreased: attempt %d avg %v < attempt %d avg %v",
				attempt, cur, attempt-1, prev)
		}
		prev = cur
	}
}

func TestDelayClampsAtMax(t *testing.T) {
	p := Policy{Base: 60 * time.Second, Max: 86400 * time.Second}

	// 60s * 2^20 is far past 24h, every sample must be clamped.
	for i := 0; i < 50; i++ {
		if d := p.Delay(20); d > p.Max {
			t.Fatalf("Delay(20) = %v, want <= %v", d, p.Max)
		}
	}
}

func TestDelayInvalidInput(t *testing.T) {
	p := Default()
	if d := p.Delay(-1); d != 0 {
		t.Errorf("Delay(-1) = %v, want 0", d)
	}
	if d := (Policy{}).Delay(3); d != 0 {
		t.Errorf("zero policy Delay(3) = %v, want 0", d)
	}
}

func TestSleepInterruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Sleep(ctx, 10*time.Second)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Sleep should return an error when cancelled")
	}
	if elapsed > time.Second {
		t.Fatalf("Sleep took %v after cancellation, want prompt return", elapsed)
	}
}

func TestSleepCompletes(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep returned error: %v", err)
	}
}
