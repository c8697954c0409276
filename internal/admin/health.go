// Package admin serves the operator-facing gRPC endpoint. It currently carries
// the standard gRPC health service so orchestrators can check the node.
package admin

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service key reported for the room server.
const ServiceName = "roomserver"

// Server is the admin gRPC server.
type Server struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger

	mu  sync.Mutex
	lis net.Listener
}

// New creates an admin server that will listen on addr. Both the overall
// status and ServiceName start NOT_SERVING.
//
// Precondition: addr must be a "host:port" string; logger must be non-nil.
func New(addr string, logger *zap.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{addr: addr, grpc: gs, health: hs, logger: logger}
}

// Listen binds the listener. Calling it before Start lets callers learn the
// bound address when addr uses port 0.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return s.lis.Addr(), nil
	}
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("admin: listening on %s: %w", s.addr, err)
	}
	s.lis = lis
	return lis.Addr(), nil
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	s.mu.Lock()
	lis := s.lis
	s.mu.Unlock()

	s.logger.Info("admin gRPC server listening", zap.String("addr", addr.String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("admin: serving: %w", err)
	}
	return nil
}

// SetServing flips the overall and ServiceName statuses.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
