package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

var start = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestTimeControllerSetTime(t *testing.T) {
	tc := NewTimeController(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestRealTimeRunUpdatesNow(t *testing.T) {
	tc := NewTimeController(start, 5*time.Millisecond, RealTime)

	var seen []time.Time
	tc.AddListener(func(_ context.Context, now time.Time) error {
		seen = append(seen, now)
		return nil
	})
	if err := tc.Run(context.Background(), 15*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if len(seen) != 3 {
		t.Fatalf("listener ran %d times, want 3", len(seen))
	}
}

func TestAcceleratedRunIsNotPacedByWallClock(t *testing.T) {
	tc := NewTimeController(start, time.Hour, Accelerated)
	steps := 0
	tc.AddListener(func(context.Context, time.Time) error {
		steps++
		return nil
	})

	began := time.Now()
	if err := tc.Run(context.Background(), 24*time.Hour); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if steps != 24 {
		t.Fatalf("steps = %d, want 24", steps)
	}
	if time.Since(began) > 5*time.Second {
		t.Fatalf("accelerated run took %v", time.Since(began))
	}
}

func TestListenerErrorStopsRun(t *testing.T) {
	tc := NewTimeController(start, time.Second, Accelerated)
	boom := errors.New("boom")
	calls := 0
	tc.AddListener(func(_ context.Context, now time.Time) error {
		calls++
		if now.Equal(start.Add(3 * time.Second)) {
			return boom
		}
		return nil
	})

	if err := tc.Run(context.Background(), time.Minute); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want boom", err)
	}
	if calls != 3 {
		t.Fatalf("listener calls = %d, want 3", calls)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	tc := NewTimeController(start, time.Second, Accelerated)
	ctx, cancel := context.WithCancel(context.Background())
	tc.AddListener(func(_ context.Context, now time.Time) error {
		if now.Equal(start.Add(5 * time.Second)) {
			cancel()
		}
		return nil
	})

	if err := tc.Run(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if got := tc.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("stopped at %v", got)
	}
}

func TestAfterFiresOnSimulatedTime(t *testing.T) {
	tc := NewTimeController(start, 10*time.Second, Accelerated)
	ch := tc.After(25 * time.Second)

	for i := 0; i < 2; i++ {
		if err := tc.Step(context.Background()); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	select {
	case got := <-ch:
		t.Fatalf("timer fired early at %v", got)
	default:
	}

	if err := tc.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	select {
	case got := <-ch:
		if !got.Equal(start.Add(30 * time.Second)) {
			t.Fatalf("timer fired at %v", got)
		}
	default:
		t.Fatalf("timer did not fire")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"realtime": RealTime, "accelerated": Accelerated, "fast": Accelerated} {
		got, ok := ParseMode(in)
		if !ok || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseMode("warp"); ok {
		t.Fatalf("ParseMode accepted an unknown mode")
	}
}
