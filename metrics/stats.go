package metrics

import "math"

// onlineStats accumulates a running mean and sample variance with Welford's
// online update, so latency and quality series never need to be retained in
// full.
type onlineStats struct {
	n     uint64
	mean  float64
	sumSq float64
}

// Add folds one observation into the estimate.
func (s *onlineStats) Add(v float64) {
	s.n++
	prev := v - s.mean
	s.mean += prev / float64(s.n)
	s.sumSq += prev * (v - s.mean)
}

// Mean returns the running mean, or 0 before any observation.
func (s *onlineStats) Mean() float64 {
	return s.mean
}

// Variance returns the sample variance. It is NaN until two observations
// have been added.
func (s *onlineStats) Variance() float64 {
	if s.n < 2 {
		return math.NaN()
	}
	return s.sumSq / float64(s.n-1)
}

// Count returns the number of observations.
func (s *onlineStats) Count() uint64 {
	return s.n
}
