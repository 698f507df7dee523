package ingest

import (
	"math"

	"github.com/miradorstack/mirador-spiro/internal/spiro"
)

// SyntheticManeuver describes a generated recording: a few tidal breaths
// followed by a forced expiration whose volume rises exponentially to FVC.
type SyntheticManeuver struct {
	FVC         float64 // liters
	Tau         float64 // blast time constant, seconds
	TidalCycles int
	TidalPeriod float64 // seconds
	TidalFlow   float64 // peak tidal flow, L/s
	Duration    float64 // blast duration, seconds
	Step        float64 // sampling interval, seconds
	// StartDelay shifts the blast later by a slow ramp, which inflates the
	// back-extrapolated volume.
	StartDelay float64
}

// DefaultSyntheticManeuver returns a clean, acceptable maneuver.
func DefaultSyntheticManeuver() SyntheticManeuver {
	return SyntheticManeuver{
		FVC:         4.0,
		Tau:         0.3,
		TidalCycles: 2,
		TidalPeriod: 3,
		TidalFlow:   0.5,
		Duration:    6,
		Step:        0.01,
	}
}

// Synthesize samples the maneuver in seconds.
func Synthesize(m SyntheticManeuver) []spiro.Sample {
	if m.Step <= 0 {
		m.Step = 0.01
	}
	tidalEnd := float64(m.TidalCycles) * m.TidalPeriod
	rampEnd := tidalEnd + m.StartDelay
	end := rampEnd + m.Duration
	n := int(math.Round(end/m.Step)) + 1

	samples := make([]spiro.Sample, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) * m.Step
		switch {
		case t < tidalEnd:
			w := 2 * math.Pi / m.TidalPeriod
			samples = append(samples, spiro.Sample{
				Time:   t,
				Volume: m.TidalFlow / w * (1 - math.Cos(w*t)),
				Flow:   m.TidalFlow * math.Sin(w*t),
			})
		case t < rampEnd:
			// Hesitant start: a slow linear leak before the blast.
			rampFlow := 0.4
			samples = append(samples, spiro.Sample{
				Time:   t,
				Volume: rampFlow * (t - tidalEnd),
				Flow:   rampFlow,
			})
		default:
			base := 0.4 * m.StartDelay
			decay := math.Exp(-(t - rampEnd) / m.Tau)
			samples = append(samples, spiro.Sample{
				Time:   t,
				Volume: base + m.FVC*(1-decay),
				Flow:   m.FVC / m.Tau * decay,
			})
		}
	}
	return samples
}
