package spiro

import "sort"

// TransitionGate is the flow magnitude (L/s) a signal must cross for a phase
// change to count. Smaller sign flips are treated as noise around zero flow.
const TransitionGate = 0.1

// Direction tags a breathing phase boundary.
type Direction string

const (
	ExhaleToInhale Direction = "exhale_to_inhale"
	InhaleToExhale Direction = "inhale_to_exhale"
)

// TransitionPoint is a sample at which flow crossed the gate.
type TransitionPoint struct {
	Sample
	Direction Direction `json:"direction"`
}

// Transitions lists phase crossings found before the new time zero. Both
// lists are in time order and independent of each other.
type Transitions struct {
	ExhaleToInhale []Sample `json:"exhale_to_inhale"`
	InhaleToExhale []Sample `json:"inhale_to_exhale"`
}

// DetectTransitions walks the samples preceding newTimeZero and records the
// sample at which flow drops through +gate (exhale to inhale) or rises
// through -gate (inhale to exhale). A nil newTimeZero yields no transitions.
func DetectTransitions(series Series, newTimeZero *float64) Transitions {
	out := Transitions{
		ExhaleToInhale: []Sample{},
		InhaleToExhale: []Sample{},
	}
	if newTimeZero == nil {
		return out
	}

	before := series.Before(*newTimeZero)
	for i := 1; i < len(before); i++ {
		prev, cur := before[i-1], before[i]
		if prev.Flow >= TransitionGate && cur.Flow < TransitionGate {
			out.ExhaleToInhale = append(out.ExhaleToInhale, cur)
		}
		if prev.Flow <= -TransitionGate && cur.Flow > -TransitionGate {
			out.InhaleToExhale = append(out.InhaleToExhale, cur)
		}
	}
	return out
}

// Len returns the total number of crossings.
func (t Transitions) Len() int {
	return len(t.ExhaleToInhale) + len(t.InhaleToExhale)
}

// Points merges both lists into one time-ordered, direction-tagged list.
func (t Transitions) Points() []TransitionPoint {
	points := make([]TransitionPoint, 0, t.Len())
	for _, s := range t.ExhaleToInhale {
		points = append(points, TransitionPoint{Sample: s, Direction: ExhaleToInhale})
	}
	for _, s := range t.InhaleToExhale {
		points = append(points, TransitionPoint{Sample: s, Direction: InhaleToExhale})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})
	return points
}
