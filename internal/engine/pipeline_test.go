package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-spiro/internal/cache"
	"github.com/miradorstack/mirador-spiro/internal/models"
	"github.com/miradorstack/mirador-spiro/internal/spiro"
	"github.com/miradorstack/mirador-spiro/internal/utils"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lateBlastSamples passes the EV check and fails the peak-flow timing check.
func lateBlastSamples() []spiro.Sample {
	return []spiro.Sample{
		{Time: 0, Volume: 0, Flow: 0},
		{Time: 1, Volume: 1, Flow: 2},
		{Time: 2, Volume: 2, Flow: 1},
	}
}

type failingCache struct {
	cache.NoopProvider
	sets int
}

func (f *failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (f *failingCache) Set(context.Context, string, []byte, time.Duration) error {
	f.sets++
	return errors.New("connection refused")
}

func TestPipelineAnalyze(t *testing.T) {
	rules, err := ParseRules([]byte(`rules:
  - id: late-peak
    match:
      check: flow_timing
      verdict: fail
    recommendations: ["Coach a harder blast"]
`), quietLogger())
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}

	pipeline := NewPipeline(quietLogger(), rules, nil, PipelineOptions{})
	pipeline.newID = func() string { return "analysis-1" }

	result, err := pipeline.Analyze(context.Background(), models.AnalysisRequest{
		Trial:   models.Trial{ID: "trial-7"},
		Samples: lateBlastSamples(),
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if result.AnalysisID != "analysis-1" || result.Trial.ID != "trial-7" {
		t.Fatalf("unexpected identity %+v", result)
	}
	if result.TimeUnit != spiro.Seconds {
		t.Fatalf("expected default seconds, got %s", result.TimeUnit)
	}
	if result.SampleCount != 3 {
		t.Fatalf("expected 3 samples, got %d", result.SampleCount)
	}
	if result.Metrics.FVC == nil || *result.Metrics.FVC != 2 {
		t.Fatalf("unexpected FVC %v", result.Metrics.FVC)
	}
	if result.Metrics.EVCheck != spiro.VerdictPass || result.Metrics.FlowTimingCheck != spiro.VerdictFail {
		t.Fatalf("unexpected verdicts %s/%s", result.Metrics.EVCheck, result.Metrics.FlowTimingCheck)
	}
	if len(result.Recommendations) != 1 || result.Recommendations[0] != "Coach a harder blast" {
		t.Fatalf("unexpected recommendations %v", result.Recommendations)
	}
	if result.PeakFlow == nil || result.PeakFlow.Flow != 2 {
		t.Fatalf("unexpected peak flow %v", result.PeakFlow)
	}
	if result.Cached {
		t.Fatalf("first analysis must not be served from cache")
	}
}

func TestPipelineDefaultRecommendations(t *testing.T) {
	pipeline := NewPipeline(quietLogger(), nil, nil, PipelineOptions{})

	result, err := pipeline.Analyze(context.Background(), models.AnalysisRequest{Samples: lateBlastSamples()})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(result.Recommendations) != 1 || !strings.Contains(result.Recommendations[0], "Peak flow reached late") {
		t.Fatalf("unexpected default recommendations %v", result.Recommendations)
	}

	empty, err := pipeline.Analyze(context.Background(), models.AnalysisRequest{})
	if err != nil {
		t.Fatalf("empty series must analyze without error: %v", err)
	}
	if empty.Metrics.FVC != nil || empty.Metrics.EVCheck != spiro.VerdictUnknown {
		t.Fatalf("unexpected metrics for empty series %+v", empty.Metrics)
	}
	if len(empty.Recommendations) != 1 || !strings.Contains(empty.Recommendations[0], "repeat the maneuver") {
		t.Fatalf("unexpected recommendations for empty series %v", empty.Recommendations)
	}
}

func TestPipelineRejectsInvalidInput(t *testing.T) {
	pipeline := NewPipeline(quietLogger(), nil, nil, PipelineOptions{MaxSamples: 2})
	ctx := context.Background()

	cases := map[string]models.AnalysisRequest{
		"time unit":  {TimeUnit: "fortnights"},
		"too large":  {Samples: lateBlastSamples()},
		"decreasing": {Samples: []spiro.Sample{{Time: 1}, {Time: 0}}},
		"nan":        {Samples: []spiro.Sample{{Time: 0, Volume: math.NaN()}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pipeline.Analyze(ctx, req)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !utils.IsAppError(err) {
				t.Fatalf("expected AppError, got %T", err)
			}
		})
	}
}

func TestPipelineCachesResults(t *testing.T) {
	provider := cache.NewMemoryProvider()
	pipeline := NewPipeline(quietLogger(), nil, provider, PipelineOptions{CacheTTL: time.Minute})
	ctx := context.Background()
	req := models.AnalysisRequest{Trial: models.Trial{ID: "a"}, Samples: lateBlastSamples()}

	first, err := pipeline.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	if _, err := provider.Get(ctx, digestKey(spiro.Seconds, req.Samples)); err != nil {
		t.Fatalf("expected cached entry: %v", err)
	}

	req.Trial.ID = "b"
	second, err := pipeline.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if !second.Cached {
		t.Fatalf("expected cache hit")
	}
	if second.Trial.ID != "b" {
		t.Fatalf("trial must come from the request, got %s", second.Trial.ID)
	}
	if second.AnalysisID == first.AnalysisID {
		t.Fatalf("each analysis must get its own id")
	}
	if *second.Metrics.NewTimeZero != *first.Metrics.NewTimeZero {
		t.Fatalf("cached metrics differ")
	}
}

func TestPipelineToleratesCacheFailure(t *testing.T) {
	provider := &failingCache{}
	pipeline := NewPipeline(quietLogger(), nil, provider, PipelineOptions{})

	result, err := pipeline.Analyze(context.Background(), models.AnalysisRequest{Samples: lateBlastSamples()})
	if err != nil {
		t.Fatalf("analyze must succeed when the cache is down: %v", err)
	}
	if result.Cached || provider.sets != 1 {
		t.Fatalf("unexpected cache interaction cached=%v sets=%d", result.Cached, provider.sets)
	}
}

func TestDigestKeyDependsOnUnitAndSamples(t *testing.T) {
	samples := lateBlastSamples()
	base := digestKey(spiro.Seconds, samples)
	if base != digestKey(spiro.Seconds, lateBlastSamples()) {
		t.Fatalf("digest must be deterministic")
	}
	if base == digestKey(spiro.Milliseconds, samples) {
		t.Fatalf("digest must depend on time unit")
	}
	samples[1].Flow = 2.0000001
	if base == digestKey(spiro.Seconds, samples) {
		t.Fatalf("digest must depend on sample values")
	}
}
