package spiro

// Analysis bundles everything derived from one maneuver.
type Analysis struct {
	Metrics      MetricsResult `json:"metrics"`
	Transitions  Transitions   `json:"transitions"`
	PeakFlow     *Sample       `json:"peak_flow,omitempty"`
	FlowRebounds []Sample      `json:"flow_rebounds"`
}

// Analyze runs the metrics, the transition detector and the flow-volume
// annotations over series. It is safe to call concurrently on the same
// series.
func Analyze(series Series, opts Options) Analysis {
	metrics := ComputeWithOptions(series, opts)
	analysis := Analysis{
		Metrics:      metrics,
		Transitions:  DetectTransitions(series, metrics.NewTimeZero),
		FlowRebounds: FlowRebounds(series),
	}
	if peak, ok := PeakFlow(series); ok {
		analysis.PeakFlow = &peak
	}
	return analysis
}
