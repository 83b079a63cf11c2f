package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerAcceleratedJumpsToDeadlines(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, Accelerated)

	deadlines := []time.Time{start.Add(300 * time.Millisecond), start.Add(980 * time.Millisecond)}
	tc.SetNextDeadline(func() (time.Time, bool) {
		if len(deadlines) == 0 {
			return time.Time{}, false
		}
		return deadlines[0], true
	})

	var seen []time.Time
	tc.AddListener(func(now time.Time) {
		seen = append(seen, now)
		deadlines = deadlines[1:]
	})

	if err := tc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("listener called %d times, want 2", len(seen))
	}
	if got := tc.Now(); !got.Equal(start.Add(980 * time.Millisecond)) {
		t.Fatalf("Now() = %v after run", got)
	}
}

func TestTimeControllerRealTimeStopsOnCancel(t *testing.T) {
	tc := NewTimeController(time.Now(), time.Millisecond, RealTime)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tc.Run(ctx); err == nil {
		t.Fatalf("Run returned nil after cancellation")
	}
}
