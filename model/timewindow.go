package model

import (
	"fmt"
	"time"
)

// TimeWindow is a half-open interval [Begin, End) of simulation time.
type TimeWindow struct {
	Begin time.Time
	End   time.Time
}

// NewTimeWindow returns the window starting at begin and lasting d.
func NewTimeWindow(begin time.Time, d time.Duration) TimeWindow {
	return TimeWindow{Begin: begin, End: begin.Add(d)}
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Begin) && t.Before(w.End)
}

// Overlaps reports whether two windows share any instant. Windows that only
// touch at an endpoint do not overlap.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Begin.Before(o.End) && o.Begin.Before(w.End)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Begin)
}

// IsZero reports whether the window was never set.
func (w TimeWindow) IsZero() bool {
	return w.Begin.IsZero() && w.End.IsZero()
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Begin.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
