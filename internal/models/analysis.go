package models

import (
	"time"

	"github.com/miradorstack/mirador-spiro/internal/spiro"
)

// Trial identifies the maneuver a series was recorded for.
type Trial struct {
	ID      string `json:"id,omitempty"`
	Subject string `json:"subject,omitempty"`
	Visit   string `json:"visit,omitempty"`
	Number  int    `json:"number,omitempty"`
}

// AnalysisRequest carries one recorded maneuver.
type AnalysisRequest struct {
	Trial   Trial          `json:"trial"`
	Samples []spiro.Sample `json:"samples"`
	// TimeUnit is optional; the service default applies when empty.
	TimeUnit string `json:"time_unit,omitempty"`
}

// AnalysisResult summarises a completed analysis.
type AnalysisResult struct {
	AnalysisID      string              `json:"analysis_id"`
	Trial           Trial               `json:"trial"`
	TimeUnit        spiro.TimeUnit      `json:"time_unit"`
	SampleCount     int                 `json:"sample_count"`
	Metrics         spiro.MetricsResult `json:"metrics"`
	Transitions     spiro.Transitions   `json:"transitions"`
	PeakFlow        *spiro.Sample       `json:"peak_flow,omitempty"`
	FlowRebounds    []spiro.Sample      `json:"flow_rebounds"`
	Recommendations []string            `json:"recommendations"`
	Cached          bool                `json:"cached"`
	CreatedAt       time.Time           `json:"created_at"`
}
