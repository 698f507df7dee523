package spiro

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDecreasingTime reports a sample whose time precedes the previous sample.
	ErrDecreasingTime = errors.New("sample time decreases")
	// ErrNonFinite reports a NaN or infinite sample coordinate.
	ErrNonFinite = errors.New("sample value is not finite")
)

// Sample is a single (time, volume, flow) reading of a forced expiration.
// Volume is in liters, flow in liters/second, time in the unit declared for
// the whole series.
type Sample struct {
	Time   float64 `json:"time"`
	Volume float64 `json:"volume"`
	Flow   float64 `json:"flow"`
}

// Axis selects one coordinate of a sample.
type Axis func(Sample) float64

// Sample coordinates usable as interpolation axes.
var (
	Time   Axis = func(s Sample) float64 { return s.Time }
	Volume Axis = func(s Sample) float64 { return s.Volume }
	Flow   Axis = func(s Sample) float64 { return s.Flow }
)

// Series is a time-ordered, read-only sequence of samples. The zero value is
// an empty series.
type Series struct {
	samples []Sample
}

// NewSeries copies samples into a Series. Order is kept as given; duplicate
// timestamps are not collapsed.
func NewSeries(samples []Sample) Series {
	return Series{samples: append([]Sample(nil), samples...)}
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.samples) }

// At returns the i-th sample.
func (s Series) At(i int) Sample { return s.samples[i] }

// Samples returns a copy of the underlying samples.
func (s Series) Samples() []Sample {
	return append([]Sample(nil), s.samples...)
}

// Validate checks that every coordinate is finite and that time never
// decreases. The analysis functions do not call it; callers at the input
// boundary do.
func (s Series) Validate() error {
	for i, sample := range s.samples {
		if !finite(sample.Time) || !finite(sample.Volume) || !finite(sample.Flow) {
			return fmt.Errorf("sample %d: %w", i, ErrNonFinite)
		}
		if i > 0 && sample.Time < s.samples[i-1].Time {
			return fmt.Errorf("sample %d at %g after %g: %w", i, sample.Time, s.samples[i-1].Time, ErrDecreasingTime)
		}
	}
	return nil
}

// Before returns the samples strictly earlier than t, in order.
func (s Series) Before(t float64) []Sample {
	out := make([]Sample, 0, len(s.samples))
	for _, sample := range s.samples {
		if sample.Time < t {
			out = append(out, sample)
		}
	}
	return out
}

func (s Series) column(axis Axis) []float64 {
	values := make([]float64, len(s.samples))
	for i, sample := range s.samples {
		values[i] = axis(sample)
	}
	return values
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
