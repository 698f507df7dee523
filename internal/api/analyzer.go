package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AnalyzeMethod is the full gRPC method name of the Analyzer service.
const AnalyzeMethod = "/spirometry.v1.Analyzer/Analyze"

// AnalyzerServer serves maneuver analyses over gRPC. Requests and results
// travel as google.protobuf.Struct documents shaped like their JSON forms.
type AnalyzerServer interface {
	Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// AnalyzerServiceDesc describes spirometry.v1.Analyzer for grpc.Server.
var AnalyzerServiceDesc = grpc.ServiceDesc{
	ServiceName: "spirometry.v1.Analyzer",
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "spirometry/v1/analyzer.proto",
}

// RegisterAnalyzerServer attaches srv to the registrar.
func RegisterAnalyzerServer(s grpc.ServiceRegistrar, srv AnalyzerServer) {
	s.RegisterService(&AnalyzerServiceDesc, srv)
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AnalyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AnalyzerClient calls a remote Analyzer.
type AnalyzerClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyzerClient wraps an established connection.
func NewAnalyzerClient(cc grpc.ClientConnInterface) *AnalyzerClient {
	return &AnalyzerClient{cc: cc}
}

// Analyze invokes spirometry.v1.Analyzer/Analyze.
func (c *AnalyzerClient) Analyze(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AnalyzeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
