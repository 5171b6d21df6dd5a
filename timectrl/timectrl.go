package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock gives components read access to simulation time without tying
// them to a concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances one Tick per Tick of wall-clock time.
	RealTime Mode = iota
	// Accelerated steps by Tick as fast as the listeners allow.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// ParseMode maps "realtime" and "accelerated" to a Mode. Anything else is
// reported as not ok.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "realtime", "real-time":
		return RealTime, true
	case "accelerated", "fast":
		return Accelerated, true
	}
	return RealTime, false
}

// Listener is invoked with the new simulation time after every step. A
// non-nil error stops the controller.
type Listener func(ctx context.Context, now time.Time) error

type timer struct {
	at time.Time
	ch chan time.Time
}

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	listeners   []Listener
	timers      []timer
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// After returns a channel that fires on the first step reaching now+d.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := tc.currentTime.Add(d)
	if d <= 0 {
		ch <- tc.currentTime
		return ch
	}
	tc.timers = append(tc.timers, timer{at: at, ch: ch})
	return ch
}

// SetTime jumps the clock without notifying listeners. Due timers fire.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
	tc.fireTimersLocked()
}

func (tc *TimeController) fireTimersLocked() {
	pending := tc.timers[:0]
	for _, tm := range tc.timers {
		if tm.at.After(tc.currentTime) {
			pending = append(pending, tm)
			continue
		}
		tm.ch <- tc.currentTime
	}
	tc.timers = pending
}

// AddListener registers a callback invoked on every step, in registration
// order.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances the clock by one Tick and runs the listeners.
func (tc *TimeController) Step(ctx context.Context) error {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	now := tc.currentTime
	listeners := append([]Listener(nil), tc.listeners...)
	tc.fireTimersLocked()
	tc.mu.Unlock()

	for _, fn := range listeners {
		if err := fn(ctx, now); err != nil {
			return err
		}
	}
	return nil
}

// Run steps the clock from StartTime until duration has elapsed, ctx is
// cancelled or a listener fails. A zero duration runs until cancelled.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	tc.SetTime(tc.StartTime)

	var tick <-chan time.Time
	if tc.Mode == RealTime {
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()
		tick = ticker.C
	}

	for elapsed := time.Duration(0); duration <= 0 || elapsed < duration; elapsed += tc.Tick {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := tc.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}
