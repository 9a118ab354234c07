package health

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer exposes the standard grpc.health.v1 service so orchestrators
// can probe medadmin over gRPC.
type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
	port   int
	logger *zap.Logger
}

// NewGRPCServer creates a gRPC server carrying only the health service.
func NewGRPCServer(port int, logger *zap.Logger) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &GRPCServer{
		server: srv,
		health: hs,
		port:   port,
		logger: logger,
	}
}

// Health returns the health service so a HealthCheck can drive it.
func (s *GRPCServer) Health() *grpchealth.Server {
	return s.health
}

// Start listens on the configured port and serves until Shutdown.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight RPCs until ctx is done.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}
