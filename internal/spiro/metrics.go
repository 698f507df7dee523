package spiro

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	// EVThresholdFraction is the share of FVC tolerated as extrapolated volume.
	EVThresholdFraction = 0.05
	// EVThresholdFloor is the minimum EV threshold in liters (150 mL).
	EVThresholdFloor = 0.150

	fev1MarkSeconds        = 1.0
	peakFlowCeilingSeconds = 0.120
)

// TimeUnit names the unit shared by every time value of a series.
type TimeUnit string

const (
	Seconds      TimeUnit = "seconds"
	Milliseconds TimeUnit = "milliseconds"
)

// ParseTimeUnit accepts the long names and the s/ms abbreviations. Empty
// means seconds.
func ParseTimeUnit(value string) (TimeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "s", "sec", "second", "seconds":
		return Seconds, nil
	case "ms", "millisecond", "milliseconds":
		return Milliseconds, nil
	default:
		return "", fmt.Errorf("unknown time unit %q", value)
	}
}

// PerSecond returns how many of this unit make one second.
func (u TimeUnit) PerSecond() float64 {
	if u == Milliseconds {
		return 1000
	}
	return 1
}

func (u TimeUnit) orDefault() TimeUnit {
	if u == Milliseconds {
		return Milliseconds
	}
	return Seconds
}

// Options tunes an analysis run.
type Options struct {
	TimeUnit TimeUnit
}

// Verdict is the outcome of a validity check. Unknown means the inputs the
// check needs could not be computed.
type Verdict string

const (
	VerdictUnknown Verdict = "unknown"
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
)

// MetricsResult holds the maneuver metrics and validity checks. Pointer
// fields are nil when their inputs were insufficient.
type MetricsResult struct {
	TimeUnit TimeUnit `json:"time_unit"`

	FVC          *float64 `json:"fvc,omitempty"`
	FEV1         *float64 `json:"fev1,omitempty"`
	FEV1FVCRatio *float64 `json:"fev1_fvc_ratio,omitempty"`

	NewTimeZero *float64 `json:"new_time_zero,omitempty"`
	EV          *float64 `json:"ev,omitempty"`
	// EVFlow is the flow at EV on the flow-volume curve.
	EVFlow      *float64 `json:"ev_flow,omitempty"`
	FVC5Percent *float64 `json:"fvc_5_percent,omitempty"`
	EVThreshold float64  `json:"ev_threshold"`

	// EVBelowThreshold is false both when EV is above the threshold and when
	// EV is unknown; EVCheck tells the two apart.
	EVBelowThreshold bool    `json:"ev_below_threshold"`
	EVCheck          Verdict `json:"ev_check"`

	HighestFlowTimeAfterZero   *float64 `json:"highest_flow_time_after_zero,omitempty"`
	PeakFlowRiseTime           *float64 `json:"peak_flow_rise_time,omitempty"`
	FlowTimingExceedsThreshold bool     `json:"flow_timing_exceeds_threshold"`
	FlowTimingCheck            Verdict  `json:"flow_timing_check"`
}

// EVThreshold is max(5% of FVC, 150 mL); an unknown FVC counts as zero.
func EVThreshold(fvc *float64) float64 {
	fivePercent := 0.0
	if fvc != nil {
		fivePercent = *fvc * EVThresholdFraction
	}
	return math.Max(fivePercent, EVThresholdFloor)
}

// Compute derives the metrics of a series sampled in seconds.
func Compute(series Series) MetricsResult {
	return ComputeWithOptions(series, Options{TimeUnit: Seconds})
}

// ComputeWithOptions derives FVC, FEV1, the back-extrapolated time zero, EV
// and both validity checks. The FEV1 mark (1 s) and the peak-flow ceiling
// (120 ms) are converted into opts.TimeUnit.
func ComputeWithOptions(series Series, opts Options) MetricsResult {
	unit := opts.TimeUnit.orDefault()
	res := MetricsResult{
		TimeUnit:        unit,
		EVCheck:         VerdictUnknown,
		FlowTimingCheck: VerdictUnknown,
	}

	if series.Len() > 0 {
		fvc := floats.Max(series.column(Volume))
		res.FVC = &fvc
		fvc5 := fvc * EVThresholdFraction
		res.FVC5Percent = &fvc5
	}

	fev1Mark := fev1MarkSeconds * unit.PerSecond()
	for _, sample := range series.samples {
		if sample.Time >= fev1Mark {
			fev1 := sample.Volume
			res.FEV1 = &fev1
			break
		}
	}
	if res.FEV1 != nil && res.FVC != nil && *res.FVC > 0 {
		ratio := *res.FEV1 / *res.FVC
		res.FEV1FVCRatio = &ratio
	}

	res.EVThreshold = EVThreshold(res.FVC)

	tz, ok := ResolveTimeZero(series)
	if !ok {
		return res
	}
	t0 := tz.NewTimeZero
	res.NewTimeZero = &t0
	res.EV = tz.EV

	if res.EV != nil {
		res.EVBelowThreshold = *res.EV < res.EVThreshold
		res.EVCheck = VerdictFail
		if res.EVBelowThreshold {
			res.EVCheck = VerdictPass
		}
		if flow, ok := Interpolate(series, Volume, Flow, *res.EV); ok {
			res.EVFlow = &flow
		}
	}

	peak, ok := peakFlowAfter(series, t0)
	if !ok {
		return res
	}
	peakTime := peak.Time
	rise := peakTime - t0
	res.HighestFlowTimeAfterZero = &peakTime
	res.PeakFlowRiseTime = &rise
	res.FlowTimingExceedsThreshold = rise > peakFlowCeilingSeconds*unit.PerSecond()
	res.FlowTimingCheck = VerdictPass
	if res.FlowTimingExceedsThreshold {
		res.FlowTimingCheck = VerdictFail
	}
	return res
}

// peakFlowAfter returns the first sample with the highest flow among samples
// later than t0.
func peakFlowAfter(series Series, t0 float64) (Sample, bool) {
	var peak Sample
	found := false
	for _, sample := range series.samples {
		if sample.Time <= t0 {
			continue
		}
		if !found || sample.Flow > peak.Flow {
			peak = sample
			found = true
		}
	}
	return peak, found
}
