package nbi

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/allocation-engine/internal/logging"
	"github.com/signalsfoundry/allocation-engine/internal/observability"
)

// NewGRPCServer builds a grpc.Server with tracing, request-id logging and
// RPC metrics, and registers svc on it. metrics may be nil.
func NewGRPCServer(svc AllocationServiceServer, log logging.Logger, metrics *observability.NBICollector, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{RequestIDUnaryServerInterceptor(log)}
	if metrics != nil {
		interceptors = append(interceptors, metrics.UnaryServerInterceptor())
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	RegisterAllocationServiceServer(srv, svc)
	return srv
}
