package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/miradorstack/mirador-spiro/internal/config"
)

// Server hosts the Analyzer service next to the standard health service.
type Server struct {
	cfg      config.ServerConfig
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewServer listens on cfg.Address and builds the gRPC server on it.
func NewServer(cfg config.ServerConfig, service AnalyzerServer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return NewServerWithListener(cfg, lis, service, opts...), nil
}

// NewServerWithListener builds the server on an existing listener. Extra
// options are applied after the defaults so callers may override them.
func NewServerWithListener(cfg config.ServerConfig, lis net.Listener, service AnalyzerServer, opts ...grpc.ServerOption) *Server {
	grpc_prometheus.EnableHandlingTimeHistogram()
	grpcServer := grpc.NewServer(append(serverOptions(cfg), opts...)...)

	RegisterAnalyzerServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	s := &Server{cfg: cfg, grpc: grpcServer, health: healthSrv, listener: lis}
	s.SetServing(true)
	return s
}

// serverOptions derives transport limits from cfg. Large maneuvers exceed
// the 4 MiB gRPC default, so the receive limit follows MaxMessageBytes.
func serverOptions(cfg config.ServerConfig) []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	if cfg.MaxMessageBytes > 0 {
		opts = append(opts,
			grpc.MaxRecvMsgSize(cfg.MaxMessageBytes),
			grpc.MaxSendMsgSize(cfg.MaxMessageBytes),
		)
	}
	if cfg.KeepaliveTime > 0 {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTime / 3,
		}))
	}
	return opts
}

// SetServing flips the health status reported for both the server as a
// whole and the Analyzer service.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(AnalyzerServiceDesc.ServiceName, status)
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	if s.grpc == nil || s.listener == nil {
		return errors.New("server not initialised")
	}
	return s.grpc.Serve(s.listener)
}

// Shutdown reports NOT_SERVING, drains in-flight analyses and hard-stops
// once ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpc == nil {
		return
	}
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.grpc.GracefulStop()
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
