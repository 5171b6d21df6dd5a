package report

import "math"

// DelayStats keeps a running mean and variance of delivery delays in
// seconds using Welford's method.
type DelayStats struct {
	n    int
	mean float64
	m2   float64
}

// Add folds one sample into the statistics.
func (s *DelayStats) Add(x float64) {
	s.n++
	d := x - s.mean
	s.mean += d / float64(s.n)
	s.m2 += d * (x - s.mean)
}

func (s DelayStats) Count() int { return s.n }

func (s DelayStats) Mean() float64 { return s.mean }

// StdDev returns the sample standard deviation, or 0 with fewer than two
// samples.
func (s DelayStats) StdDev() float64 {
	if s.n < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.n-1))
}
