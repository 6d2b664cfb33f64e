package grpc

import (
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-gateway/internal/observability"
)

// ServiceName is the health-check service name of the gateway.
const ServiceName = "chat.Gateway"

// HealthServer is the internal gRPC listener used by orchestrators to probe the gateway.
type HealthServer struct {
	srv    *gogrpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealthServer builds the gRPC server. It reports NOT_SERVING until SetServing(true).
func NewHealthServer(logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := gogrpc.NewServer(
		gogrpc.StatsHandler(otelgrpc.NewServerHandler()),
		gogrpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)

	s := &HealthServer{srv: srv, health: h, logger: logger.Named("grpc")}
	s.SetServing(false)
	return s
}

// SetServing flips the reported status of the gateway and the overall server.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks accepting connections on lis.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
	return s.srv.Serve(lis)
}

// GracefulStop marks the server NOT_SERVING and drains in-flight calls.
func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
