package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-spiro/internal/cache"
	"github.com/miradorstack/mirador-spiro/internal/metrics"
	"github.com/miradorstack/mirador-spiro/internal/models"
	"github.com/miradorstack/mirador-spiro/internal/spiro"
	"github.com/miradorstack/mirador-spiro/internal/utils"
)

const cacheKeyPrefix = "mirador-spiro:analysis:"

// PipelineOptions tunes request defaults and limits.
type PipelineOptions struct {
	DefaultTimeUnit spiro.TimeUnit
	// MaxSamples rejects larger requests; zero disables the limit.
	MaxSamples int
	CacheTTL   time.Duration
}

// Pipeline validates a maneuver, runs the analysis and attaches
// recommendations. Results are cached by sample digest.
type Pipeline struct {
	logger *slog.Logger
	rules  *RuleEngine
	cache  cache.Provider
	opts   PipelineOptions

	now   func() time.Time
	newID func() string
}

// NewPipeline constructs a new analysis pipeline. A nil provider disables
// result caching.
func NewPipeline(logger *slog.Logger, rules *RuleEngine, provider cache.Provider, opts PipelineOptions) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if opts.DefaultTimeUnit == "" {
		opts.DefaultTimeUnit = spiro.Seconds
	}
	return &Pipeline{
		logger: logger,
		rules:  rules,
		cache:  provider,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

// Analyze runs one maneuver through validation, analysis and the rule pack.
// Input problems are returned as *utils.AppError.
func (p *Pipeline) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	unit, err := p.timeUnit(req.TimeUnit)
	if err != nil {
		return models.AnalysisResult{}, utils.NewAppError("analyze", "invalid time unit", err)
	}
	if p.opts.MaxSamples > 0 && len(req.Samples) > p.opts.MaxSamples {
		return models.AnalysisResult{}, utils.NewAppError("analyze",
			fmt.Sprintf("%d samples exceeds limit of %d", len(req.Samples), p.opts.MaxSamples), nil)
	}

	series := spiro.NewSeries(req.Samples)
	if err := series.Validate(); err != nil {
		return models.AnalysisResult{}, utils.NewAppError("analyze", "invalid samples", err)
	}

	key := digestKey(unit, req.Samples)
	result, hit := p.lookup(ctx, key)
	if !hit {
		analysis := spiro.Analyze(series, spiro.Options{TimeUnit: unit})
		result = models.AnalysisResult{
			TimeUnit:        unit,
			SampleCount:     series.Len(),
			Metrics:         analysis.Metrics,
			Transitions:     analysis.Transitions,
			PeakFlow:        analysis.PeakFlow,
			FlowRebounds:    analysis.FlowRebounds,
			Recommendations: p.recommend(analysis),
		}
		p.store(ctx, key, result)
	}

	metrics.ObserveCheck(CheckEV, string(result.Metrics.EVCheck))
	metrics.ObserveCheck(CheckFlowTiming, string(result.Metrics.FlowTimingCheck))

	result.AnalysisID = p.newID()
	result.Trial = req.Trial
	result.Cached = hit
	result.CreatedAt = p.now()

	p.logger.Debug("analysis complete",
		slog.String("analysis_id", result.AnalysisID),
		slog.String("trial", req.Trial.ID),
		slog.Int("samples", result.SampleCount),
		slog.String("ev_check", string(result.Metrics.EVCheck)),
		slog.String("flow_timing_check", string(result.Metrics.FlowTimingCheck)),
		slog.Bool("cached", hit),
	)
	return result, nil
}

func (p *Pipeline) timeUnit(value string) (spiro.TimeUnit, error) {
	if value == "" {
		return p.opts.DefaultTimeUnit, nil
	}
	return spiro.ParseTimeUnit(value)
}

func (p *Pipeline) recommend(analysis spiro.Analysis) []string {
	if p.rules != nil {
		if recs := p.rules.Recommend(analysis); len(recs) > 0 {
			return recs
		}
	}
	return defaultRecommendations(analysis.Metrics)
}

func defaultRecommendations(m spiro.MetricsResult) []string {
	recs := make([]string, 0, 2)
	if m.EVCheck == spiro.VerdictFail {
		recs = append(recs, "Back-extrapolated volume too large: coach a faster, more forceful start")
	}
	if m.FlowTimingCheck == spiro.VerdictFail {
		recs = append(recs, "Peak flow reached late: coach a maximal blast from full inspiration")
	}
	if m.EVCheck == spiro.VerdictUnknown || m.FlowTimingCheck == spiro.VerdictUnknown {
		recs = append(recs, "Start of test could not be resolved: repeat the maneuver")
	}
	return recs
}

func (p *Pipeline) lookup(ctx context.Context, key string) (models.AnalysisResult, bool) {
	var result models.AnalysisResult
	if err := cache.GetJSON(ctx, p.cache, key, &result); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.logger.Warn("result cache lookup failed", slog.Any("error", err))
		}
		metrics.ObserveCacheLookup(false)
		return models.AnalysisResult{}, false
	}
	metrics.ObserveCacheLookup(true)
	return result, true
}

func (p *Pipeline) store(ctx context.Context, key string, result models.AnalysisResult) {
	if err := cache.SetJSON(ctx, p.cache, key, result, p.opts.CacheTTL); err != nil {
		p.logger.Warn("failed to cache result", slog.Any("error", err))
	}
}

// digestKey hashes the time unit and the exact bit patterns of every sample.
func digestKey(unit spiro.TimeUnit, samples []spiro.Sample) string {
	h := sha256.New()
	h.Write([]byte(unit))
	var buf [24]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(s.Time))
		binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(s.Volume))
		binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(s.Flow))
		h.Write(buf[:])
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
