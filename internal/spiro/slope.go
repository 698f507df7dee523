package spiro

import "math"

// leastPositiveSlope is the smallest positive normal float64. A segment must
// beat it, so flat or falling segments never qualify.
const leastPositiveSlope = 0x1p-1022

// SlopeSegment is the line volume = Slope*time + Intercept through the first
// sample of the steepest ascending pair.
type SlopeSegment struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// TimeZero is the back-extrapolated start of the forced expiration.
type TimeZero struct {
	NewTimeZero float64
	// EV is the volume already exhaled at NewTimeZero; nil when NewTimeZero
	// falls outside the sampled time range.
	EV *float64
}

// FindMaxSlope returns the steepest positive volume/time segment between
// consecutive samples. Ties keep the earliest segment. A volume rise within
// a single timestamp is a vertical tangent that no finite slope beats, so it
// yields no segment; flat or falling pairs sharing a timestamp are ignored.
func FindMaxSlope(series Series) (SlopeSegment, bool) {
	if len(series.samples) < 2 {
		return SlopeSegment{}, false
	}

	best := leastPositiveSlope
	var segment SlopeSegment
	found := false
	for i := 0; i < len(series.samples)-1; i++ {
		p1, p2 := series.samples[i], series.samples[i+1]
		dt, dv := p2.Time-p1.Time, p2.Volume-p1.Volume
		if dt == 0 {
			if dv > 0 {
				return SlopeSegment{}, false
			}
			continue
		}
		slope := dv / dt
		if !finite(slope) {
			continue
		}
		if slope > best {
			best = slope
			segment = SlopeSegment{Slope: slope, Intercept: p1.Volume - slope*p1.Time}
			found = true
		}
	}
	return segment, found
}

// ResolveTimeZero back-extrapolates the steepest segment to zero volume and
// interpolates the volume recorded at that instant.
func ResolveTimeZero(series Series) (TimeZero, bool) {
	segment, ok := FindMaxSlope(series)
	if !ok || segment.Slope == 0 {
		return TimeZero{}, false
	}

	t0 := -segment.Intercept / segment.Slope
	if math.IsNaN(t0) || math.IsInf(t0, 0) {
		return TimeZero{}, false
	}
	if t0 == 0 {
		// drop the sign of a negative zero
		t0 = 0
	}

	tz := TimeZero{NewTimeZero: t0}
	if ev, ok := Interpolate(series, Time, Volume, t0); ok {
		tz.EV = &ev
	}
	return tz, true
}
