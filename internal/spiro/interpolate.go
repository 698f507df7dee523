package spiro

// Interpolate estimates y at query by linear interpolation between the last
// sample with x <= query and the first sample with x > query. It reports false
// when either bracket is missing or the bracket has zero width.
//
// The two brackets are searched independently over the whole series, so the
// independent axis does not need to be sorted (volume is not, in general).
func Interpolate(series Series, x, y Axis, query float64) (float64, bool) {
	lower, upper := -1, -1
	for i := len(series.samples) - 1; i >= 0; i-- {
		if x(series.samples[i]) <= query {
			lower = i
			break
		}
	}
	for i, sample := range series.samples {
		if x(sample) > query {
			upper = i
			break
		}
	}
	if lower < 0 || upper < 0 {
		return 0, false
	}

	lo, hi := series.samples[lower], series.samples[upper]
	if x(lo) == x(hi) {
		return 0, false
	}
	slope := (y(hi) - y(lo)) / (x(hi) - x(lo))
	return y(lo) + slope*(query-x(lo)), true
}
