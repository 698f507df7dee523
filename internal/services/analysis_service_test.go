package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-spiro/internal/api"
	"github.com/miradorstack/mirador-spiro/internal/config"
	"github.com/miradorstack/mirador-spiro/internal/engine"
	"github.com/miradorstack/mirador-spiro/internal/metrics"
	"github.com/miradorstack/mirador-spiro/internal/models"
	"github.com/miradorstack/mirador-spiro/internal/spiro"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func maneuver() []spiro.Sample {
	return []spiro.Sample{
		{Time: 0, Volume: 0, Flow: 0},
		{Time: 1, Volume: 2, Flow: 5},
		{Time: 2, Volume: 2.2, Flow: 0.5},
	}
}

type pipelineStub struct {
	err   error
	calls int
}

func (p *pipelineStub) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	p.calls++
	return models.AnalysisResult{AnalysisID: "stub", Trial: req.Trial}, p.err
}

func newService() *AnalysisService {
	pipeline := engine.NewPipeline(quietLogger(), nil, nil, engine.PipelineOptions{MaxSamples: 100})
	return NewAnalysisService(quietLogger(), pipeline)
}

func TestAnalyzeNilRequest(t *testing.T) {
	service := newService()
	_, err := service.Analyze(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestAnalyzeWithoutPipeline(t *testing.T) {
	service := NewAnalysisService(nil, nil)
	_, err := service.Analyze(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestAnalyzeMapsErrors(t *testing.T) {
	service := newService()
	req, err := api.ToStructRequest(models.AnalysisRequest{TimeUnit: "hours"})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	if _, err := service.Analyze(context.Background(), req); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for bad time unit, got %v", err)
	}

	stub := &pipelineStub{err: errors.New("boom")}
	service = NewAnalysisService(quietLogger(), stub)
	if _, err := service.Analyze(context.Background(), req); status.Code(err) != codes.Internal {
		t.Fatalf("expected internal, got %v", err)
	}

	stub.err = context.DeadlineExceeded
	if _, err := service.Analyze(context.Background(), req); status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAnalyzeOverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	server := api.NewServerWithListener(config.ServerConfig{}, lis, newService())
	go func() { _ = server.Start() }()
	t.Cleanup(func() { server.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.AnalyzerServiceDesc.ServiceName})
	if err != nil || health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected health %v, %v", health, err)
	}

	req, err := api.ToStructRequest(models.AnalysisRequest{Trial: models.Trial{ID: "t-1"}, Samples: maneuver()})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	doc, err := api.NewAnalyzerClient(conn).Analyze(ctx, req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	result, err := api.FromStructResult(doc)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Trial.ID != "t-1" || result.AnalysisID == "" {
		t.Fatalf("unexpected identity %+v", result)
	}
	if result.Metrics.NewTimeZero == nil || *result.Metrics.NewTimeZero != 0 {
		t.Fatalf("unexpected time zero %v", result.Metrics.NewTimeZero)
	}
	if result.Metrics.EVCheck != spiro.VerdictPass {
		t.Fatalf("expected EV pass, got %s", result.Metrics.EVCheck)
	}
}

func TestAnalyzeOverHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register metrics: %v", err)
	}
	srv := api.NewHTTPServer(config.ServerConfig{}, newService(), reg, quietLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(models.AnalysisRequest{Samples: maneuver()})
	resp, err := http.Post(ts.URL+"/api/v1/analyses", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Metrics.FVC == nil || *result.Metrics.FVC != 2.2 {
		t.Fatalf("unexpected FVC %v", result.Metrics.FVC)
	}

	bad, _ := json.Marshal(models.AnalysisRequest{Samples: []spiro.Sample{{Time: 2}, {Time: 1}}})
	resp2, err := http.Post(ts.URL+"/api/v1/analyses", "application/json", bytes.NewReader(bad))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for decreasing time, got %d", resp2.StatusCode)
	}

	metricsResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	payload, _ := io.ReadAll(metricsResp.Body)
	metricsResp.Body.Close()
	if !bytes.Contains(payload, []byte("mirador_spiro_analyses_total")) {
		t.Fatalf("expected analysis counter in metrics output")
	}
}

func TestAnalyzeManeuverPassesTrialThrough(t *testing.T) {
	stub := &pipelineStub{}
	service := NewAnalysisService(quietLogger(), stub)
	result, err := service.AnalyzeManeuver(context.Background(), models.AnalysisRequest{Trial: models.Trial{ID: "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 || result.Trial.ID != "x" {
		t.Fatalf("unexpected result %+v after %d calls", result, stub.calls)
	}
}
