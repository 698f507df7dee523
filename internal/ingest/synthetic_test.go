package ingest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-spiro/internal/ingest"
	"github.com/miradorstack/mirador-spiro/internal/spiro"
)

func TestSynthesizeCleanManeuver(t *testing.T) {
	samples := ingest.Synthesize(ingest.DefaultSyntheticManeuver())
	series := spiro.NewSeries(samples)
	require.NoError(t, series.Validate())

	analysis := spiro.Analyze(series, spiro.Options{})
	m := analysis.Metrics
	require.NotNil(t, m.FVC)
	assert.InDelta(t, 4.0, *m.FVC, 0.01)
	require.NotNil(t, m.NewTimeZero)
	assert.InDelta(t, 6.0, *m.NewTimeZero, 0.02)
	assert.Equal(t, spiro.VerdictPass, m.EVCheck)
	assert.Equal(t, spiro.VerdictPass, m.FlowTimingCheck)
	assert.GreaterOrEqual(t, analysis.Transitions.Len(), 3)
}

func TestSynthesizeHesitantStartFailsEV(t *testing.T) {
	m := ingest.DefaultSyntheticManeuver()
	m.StartDelay = 1.0

	analysis := spiro.Analyze(spiro.NewSeries(ingest.Synthesize(m)), spiro.Options{})
	require.NotNil(t, analysis.Metrics.EV)
	assert.Equal(t, spiro.VerdictFail, analysis.Metrics.EVCheck)
}
