package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-spiro/internal/api"
	"github.com/miradorstack/mirador-spiro/internal/metrics"
	"github.com/miradorstack/mirador-spiro/internal/models"
	"github.com/miradorstack/mirador-spiro/internal/utils"
)

// Pipeline runs a single analysis; *engine.Pipeline satisfies it.
type Pipeline interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error)
}

// AnalysisService implements the gRPC Analyzer service and the REST handler
// backend on top of the analysis pipeline.
type AnalysisService struct {
	logger    *slog.Logger
	pipeline  Pipeline
	latencies *utils.LatencyTracker
}

// NewAnalysisService constructs the service facade.
func NewAnalysisService(logger *slog.Logger, pipeline Pipeline) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		logger:    logger,
		pipeline:  pipeline,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// AnalyzeManeuver runs the pipeline and records latency and outcome.
func (s *AnalysisService) AnalyzeManeuver(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if s.pipeline == nil {
		return models.AnalysisResult{}, fmt.Errorf("pipeline not configured")
	}

	s.logger.Debug("AnalyzeManeuver called", slog.String("trial", req.Trial.ID), slog.Int("samples", len(req.Samples)))

	start := time.Now()
	result, err := s.pipeline.Analyze(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		if utils.IsAppError(err) {
			s.logger.Warn("analysis rejected", slog.String("trial", req.Trial.ID), slog.Any("error", err))
		} else {
			s.logger.Error("analysis failed", slog.String("trial", req.Trial.ID), slog.Any("error", err))
		}
		return models.AnalysisResult{}, err
	}
	s.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("analysis latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}
	return result, nil
}

// Analyze serves spirometry.v1.Analyzer/Analyze.
func (s *AnalysisService) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	domainReq, err := api.FromStructRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.AnalyzeManeuver(ctx, domainReq)
	if err != nil {
		return nil, toStatus(err)
	}

	doc, err := api.ToStructResult(result)
	if err != nil {
		s.logger.Error("encode result failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return doc, nil
}

// LatencyP95 returns the current p95 analysis latency.
func (s *AnalysisService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func toStatus(err error) error {
	if utils.IsAppError(err) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if st := status.FromContextError(err); st.Code() != codes.Unknown {
		return st.Err()
	}
	return status.Error(codes.Internal, fmt.Sprintf("analysis failed: %v", err))
}
