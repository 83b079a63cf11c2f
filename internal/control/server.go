package control

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/observability"
	"github.com/signalsfoundry/sysviz/internal/sim"
)

// NewServer builds a gRPC server exposing the simulator service and the
// standard health service. metrics may be nil.
func NewServer(registry *sim.Registry, log logging.Logger, metrics *observability.TransportCollector, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			metrics.UnaryServerInterceptor(),
		),
	}
	server := grpc.NewServer(append(base, opts...)...)

	RegisterSimulatorServiceServer(server, NewSimulatorService(registry, log))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}
