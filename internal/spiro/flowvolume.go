package spiro

import "gonum.org/v1/gonum/floats"

// PeakFlow returns the first sample carrying the highest flow of the series.
func PeakFlow(series Series) (Sample, bool) {
	if series.Len() == 0 {
		return Sample{}, false
	}
	return series.samples[floats.MaxIdx(series.column(Flow))], true
}

// FlowRebounds walks the descending limb of the flow-volume curve from the
// peak flow and returns every sample where flow rises again with volume.
// A flow rise at constant volume counts as a rebound. The walk stops at the
// first pair whose flow is not expiratory.
func FlowRebounds(series Series) []Sample {
	rebounds := []Sample{}
	if series.Len() < 2 {
		return rebounds
	}
	start := floats.MaxIdx(series.column(Flow))

	for i := start; i < series.Len()-1; i++ {
		p1, p2 := series.samples[i], series.samples[i+1]
		if p1.Flow <= 0 || p2.Flow <= 0 {
			break
		}
		dv, dFlow := p2.Volume-p1.Volume, p2.Flow-p1.Flow
		if dv == 0 {
			if dFlow > 0 {
				rebounds = append(rebounds, p2)
			}
			continue
		}
		if dFlow/dv > 0 {
			rebounds = append(rebounds, p2)
		}
	}
	return rebounds
}
